package gmail

import (
	"encoding/base64"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/fyrsmithlabs/inboxd/internal/mail/bodytext"
)

// extractBody returns the plaintext body of a message, preferring a
// text/plain part and falling back to stripped text/html.
func extractBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}

	// Single-part messages carry the body on the payload itself.
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		text := decodePartData(payload.Body.Data)
		if payload.MimeType == "text/html" {
			return bodytext.FromHTML(text)
		}
		return text
	}

	var plain, html string
	collectBodies(payload.Parts, &plain, &html)

	if plain != "" {
		return plain
	}
	return bodytext.FromHTML(html)
}

// collectBodies walks the part tree recording the first text/plain and
// text/html bodies found.
func collectBodies(parts []*gmailapi.MessagePart, plain, html *string) {
	for _, part := range parts {
		if part.Body != nil && part.Body.Data != "" {
			switch part.MimeType {
			case "text/plain":
				if *plain == "" {
					*plain = decodePartData(part.Body.Data)
				}
			case "text/html":
				if *html == "" {
					*html = decodePartData(part.Body.Data)
				}
			}
		}
		if len(part.Parts) > 0 {
			collectBodies(part.Parts, plain, html)
		}
	}
}

// decodePartData decodes a base64url part body. Gmail emits unpadded
// base64url; tolerate padded variants too.
func decodePartData(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}
