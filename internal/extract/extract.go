// Package extract parses raw messages tolerantly and derives the plain
// text used for full-text indexing. Parsing never fails: malformed
// input degrades to best-effort values instead of aborting a sync run.
package extract

import (
	"bytes"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message holds the header fields and body parts a sync run needs.
// Both part slices empty means the message had no indexable body.
type Message struct {
	MessageID   string
	Date        time.Time
	FromDisplay string
	FromEmail   string
	ToDisplay   string
	Subject     string
	PlainParts  []string
	HTMLParts   []string
}

// Parse decodes a raw message. Malformed headers yield empty fields,
// an unparseable or missing Date falls back to the current time, and a
// payload that cannot be read as MIME at all is kept as a single plain
// part so it still gets indexed.
func Parse(raw []byte) *Message {
	msg := &Message{Date: time.Now().UTC()}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil || mr == nil {
		msg.PlainParts = append(msg.PlainParts, string(raw))
		return msg
	}
	defer mr.Close()

	h := mr.Header

	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.Date = date.UTC()
	}
	if subject, err := h.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}

	msg.FromDisplay, msg.FromEmail = parseFrom(&h)
	msg.ToDisplay = parseTo(&h)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Stop at the first broken part; keep what we have.
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := inline.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil || len(body) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			msg.PlainParts = append(msg.PlainParts, string(body))
		case strings.HasPrefix(contentType, "text/html"):
			msg.HTMLParts = append(msg.HTMLParts, string(body))
		}
	}

	return msg
}

// BodyText returns the indexable text of a parsed message: joined
// plain-text parts when present, stripped HTML otherwise, and "" when
// the message has neither.
func BodyText(msg *Message) string {
	if len(msg.PlainParts) > 0 {
		parts := make([]string, 0, len(msg.PlainParts))
		for _, p := range msg.PlainParts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		return strings.Join(parts, "\n")
	}

	if len(msg.HTMLParts) > 0 {
		return StripHTML(strings.Join(msg.HTMLParts, "\n"))
	}

	return ""
}

// parseFrom returns the display form and lowercased addr-spec of the
// first From address. A header that fails address parsing keeps its
// raw text as the display form.
func parseFrom(h *mail.Header) (display, email string) {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From")), ""
	}

	from := addrs[0]
	display = from.Name
	if display == "" {
		display = from.Address
	}
	return display, strings.ToLower(from.Address)
}

// parseTo returns a comma-joined display form of the To addresses.
func parseTo(h *mail.Header) string {
	addrs, err := h.AddressList("To")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("To"))
	}

	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, a.Name)
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}
