// Package bodytext extracts readable plaintext from HTML email bodies.
//
// Marketing mail is frequently HTML-only; the classifier and index both
// operate on plaintext, so HTML parts are reduced to their visible text.
package bodytext

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements have no user-visible text content.
var skippedElements = map[string]struct{}{
	"script": {},
	"style":  {},
	"head":   {},
	"title":  {},
}

// FromHTML returns the visible text of an HTML document with whitespace
// collapsed. Invalid markup is tolerated; the tokenizer recovers the text
// it can.
func FromHTML(src string) string {
	tz := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	skipDepth := 0
	for {
		switch tz.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have.
			return collapse(b.String())
		case html.StartTagToken:
			name, _ := tz.TagName()
			if _, ok := skippedElements[string(name)]; ok {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			if _, ok := skippedElements[string(name)]; ok && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tz.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// collapse folds runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
