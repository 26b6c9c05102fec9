package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub(t *testing.T) {
	s := NewScrubber()

	t.Run("email and phone", func(t *testing.T) {
		in := "Contact me at 555-0199 or test@example.com"
		out, m := s.Scrub(in)

		assert.Contains(t, out, "<PHONE_1>")
		assert.Contains(t, out, "<EMAIL_1>")
		assert.NotContains(t, out, "555-0199")
		assert.NotContains(t, out, "test@example.com")
		assert.Equal(t, 2, m.Len())
	})

	t.Run("repeated value maps to same placeholder", func(t *testing.T) {
		in := "mail a@b.com, then a@b.com again, and also c@d.org"
		out, m := s.Scrub(in)

		assert.Equal(t, "mail <EMAIL_1>, then <EMAIL_1> again, and also <EMAIL_2>", out)
		orig, ok := m.Lookup("<EMAIL_2>")
		require.True(t, ok)
		assert.Equal(t, "c@d.org", orig)
	})

	t.Run("per-label numbering", func(t *testing.T) {
		in := "a@b.com then 555-123-4567 then c@d.org"
		out, _ := s.Scrub(in)

		assert.Contains(t, out, "<EMAIL_1>")
		assert.Contains(t, out, "<PHONE_1>")
		assert.Contains(t, out, "<EMAIL_2>")
	})

	t.Run("ssn", func(t *testing.T) {
		out, _ := s.Scrub("SSN on file: 123-45-6789.")
		assert.Equal(t, "SSN on file: <SSN_1>.", out)
	})

	t.Run("ipv4", func(t *testing.T) {
		out, _ := s.Scrub("login from 192.168.1.50 last night")
		assert.Equal(t, "login from <IP_ADDRESS_1> last night", out)
	})

	t.Run("no pii", func(t *testing.T) {
		in := "see you at the standup tomorrow"
		out, m := s.Scrub(in)
		assert.Equal(t, in, out)
		assert.Equal(t, 0, m.Len())
	})
}

func TestRestore(t *testing.T) {
	s := NewScrubber()

	t.Run("round trip", func(t *testing.T) {
		inputs := []string{
			"Contact me at 555-0199 or test@example.com",
			"twice: a@b.com a@b.com, ssn 123-45-6789, ip 10.0.0.1",
			"call (555) 555-5555 or +1 555 123 4567",
			"nothing sensitive here",
			"",
		}
		for _, in := range inputs {
			out, m := s.Scrub(in)
			assert.Equal(t, in, s.Restore(out, m))
		}
	})

	t.Run("nil mapping is a no-op", func(t *testing.T) {
		assert.Equal(t, "x <EMAIL_1> y", s.Restore("x <EMAIL_1> y", nil))
	})

	t.Run("placeholders survive generation output", func(t *testing.T) {
		// The provider echoes placeholders into new sentence positions;
		// restore must still substitute them.
		_, m := s.Scrub("write to test@example.com")
		answer := "You should email <EMAIL_1> about this."
		assert.Equal(t, "You should email test@example.com about this.", s.Restore(answer, m))
	})
}
