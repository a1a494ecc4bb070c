package utils

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: " \t\n\r  ", want: ""},
		{name: "plain", input: "hello world", want: "hello world"},
		{name: "nul bytes removed", input: "he\x00llo", want: "hello"},
		{name: "control chars become spaces", input: "a\x01b\x7fc", want: "a b c"},
		{name: "vertical tab and form feed", input: "a\x0bb\x0cc", want: "a b c"},
		{name: "whitespace collapsed and trimmed", input: "  lots \n\n of\t\tspace  ", want: "lots of space"},
		{name: "invalid utf8 replaced", input: "ok\xff\xfeok", want: "ok\uFFFDok"},
		{name: "multibyte kept", input: "naïve café — 日本語", want: "naïve café — 日本語"},
		{name: "only controls", input: "\x00\x01\x02", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func randomBytes(r *rand.Rand, n int) []byte {
	alphabet := []byte("ab .!?\x00\x01\x0b\x1f\x7f\t\n\r\xc3\xa9\xff\xe6\x97")
	b := make([]byte, n)
	for i := range b {
		if r.Intn(4) == 0 {
			b[i] = byte(r.Intn(256))
			continue
		}
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return b
}

func TestSanitizeIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		input := string(randomBytes(r, r.Intn(200)))
		once := Sanitize(input)
		assert.Equal(t, once, Sanitize(once), "input %q", input)
	}
}

func TestSanitizeSafety(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		out := SanitizeBytes(randomBytes(r, r.Intn(300)))
		assert.NotContains(t, out, "\x00")
		assert.True(t, utf8.ValidString(out), "invalid utf8 in %q", out)
		assert.Equal(t, strings.TrimSpace(out), out)
		assert.NotContains(t, out, "  ")
	}
}

func TestStripUnsafeKeepsLayout(t *testing.T) {
	assert.Equal(t, "line one\n\n  line two", StripUnsafe("line one\n\n  line\x00 two"))
	assert.Equal(t, "bad \uFFFD byte", StripUnsafe("bad \xff byte"))
	assert.Equal(t, "", StripUnsafe(""))
	assert.Equal(t, "a b\tc\r\nd e f", StripUnsafe("a\x01b\tc\r\nd\x1be\x7ff"))
	assert.Equal(t, "form feed\n \n", StripUnsafe("form feed\n\x0c\n"))
}
