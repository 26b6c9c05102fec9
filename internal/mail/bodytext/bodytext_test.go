package bodytext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"simple markup",
			"<html><body><p>Hello <b>world</b></p></body></html>",
			"Hello world",
		},
		{
			"script and style stripped",
			"<html><head><style>p{color:red}</style></head><body><script>alert(1)</script><p>visible</p></body></html>",
			"visible",
		},
		{
			"entities decoded",
			"<p>fish &amp; chips</p>",
			"fish & chips",
		},
		{
			"whitespace collapsed",
			"<div>\n  spread\n\n  out\t text </div>",
			"spread out text",
		},
		{
			"unclosed tags tolerated",
			"<p>first<p>second",
			"first second",
		},
		{
			"plain text passes through",
			"no markup at all",
			"no markup at all",
		},
		{
			"empty input",
			"",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromHTML(tt.in))
		})
	}
}
