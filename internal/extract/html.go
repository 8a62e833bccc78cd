package extract

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// tagPattern is the crude fallback when tokenizing fails outright.
var tagPattern = regexp.MustCompile(`<[^>]+>`)

// blockTags are elements that terminate a line of extracted text.
var blockTags = map[string]struct{}{
	"br": {}, "p": {}, "div": {}, "li": {}, "tr": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
}

// StripHTML reduces an HTML fragment to its visible text. Script and
// style contents are dropped, block elements become line breaks, and
// entities are decoded by the tokenizer. If tokenizing fails the tags
// are removed with a regex instead.
func StripHTML(src string) string {
	tok := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	skipDepth := 0

	for {
		switch tok.Next() {
		case html.ErrorToken:
			if tok.Err() == io.EOF {
				return collapse(b.String())
			}
			return collapse(tagPattern.ReplaceAllString(src, " "))

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tok.Text())
			}

		case html.StartTagToken:
			name, _ := tok.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}

		case html.SelfClosingTagToken:
			name, _ := tok.TagName()
			if _, ok := blockTags[string(name)]; ok {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := tok.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte('\n')
			}
		}
	}
}

// collapse normalizes extracted text: runs of spaces become one space,
// blank lines are dropped.
func collapse(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n")
}
