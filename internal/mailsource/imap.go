package mailsource

import (
	"fmt"
	"slices"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// imapSession implements Session on go-imap v2.
type imapSession struct {
	client *imapclient.Client
}

// DialIMAP connects to an IMAP server and authenticates. TLS dials an
// implicit-TLS port; otherwise STARTTLS is required. Login failure is
// reported as an AuthError.
func DialIMAP(cfg Config) (Session, error) {
	var client *imapclient.Client
	var err error

	if cfg.TLS {
		client, err = imapclient.DialTLS(cfg.Addr(), nil)
	} else {
		client, err = imapclient.DialStartTLS(cfg.Addr(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", cfg.Addr(), err)
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Account: cfg.Username,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	return &imapSession{client: client}, nil
}

func (s *imapSession) SelectReadOnly(folder string) error {
	opts := &imap.SelectOptions{ReadOnly: true}
	if _, err := s.client.Select(folder, opts).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", folder, err)
	}
	return nil
}

func (s *imapSession) UIDsSince(start uint32) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(start), Stop: 0}}},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching UIDs from %d: %w", start, err)
	}

	found := data.AllUIDs()
	uids := make([]uint32, 0, len(found))
	for _, uid := range found {
		uids = append(uids, uint32(uid))
	}
	slices.Sort(uids)
	return uids, nil
}

func (s *imapSession) FetchRaw(uid uint32) ([]byte, error) {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("closing fetch for %d: %w", uid, err)
	}
	return raw, nil
}

func (s *imapSession) Logout() error {
	return s.client.Logout().Wait()
}
