package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSampleDelaySecondsRanges(t *testing.T) {
	for i := 0; i < 1000; i++ {
		fast := SampleDelaySeconds(PacingFast)
		assert.GreaterOrEqual(t, fast, 5)
		assert.LessOrEqual(t, fast, 10)

		slow := SampleDelaySeconds(PacingSlow)
		assert.GreaterOrEqual(t, slow, 10)
		assert.LessOrEqual(t, slow, 15)
	}
}

func TestSampleDelaySecondsDefaultsToFast(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := SampleDelaySeconds(PacingMode("unknown"))
		assert.GreaterOrEqual(t, d, 5)
		assert.LessOrEqual(t, d, 10)
	}
}

func TestSampleTemplatePhrase(t *testing.T) {
	assert.Equal(t, "", SampleTemplatePhrase(TemplateNone))

	for i := 0; i < 100; i++ {
		p1 := SampleTemplatePhrase(Template1)
		assert.Contains(t, template1Phrases, p1)

		p2 := SampleTemplatePhrase(Template2)
		assert.Contains(t, template2Phrases, p2)
	}
}

func TestTemplateListsAreDistinct(t *testing.T) {
	assert.Len(t, template1Phrases, 40)
	assert.Len(t, template2Phrases, 40)

	seen := make(map[string]bool)
	for _, p := range template1Phrases {
		seen[p] = true
	}
	for _, p := range template2Phrases {
		assert.False(t, seen[p], "phrase shared between templates: %s", p)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"colons replaced", "a:b:c", "a,b,c"},
		{"plain text untouched", "sunset over the ocean", "sunset over the ocean"},
		{"whitespace preserved", "  padded  ", "  padded  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeTitle(tt.input))
		})
	}
}

func TestSanitizeTitleTruncates(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := SanitizeTitle(long)
	assert.Len(t, got, 115)
}

func TestSanitizeTitleTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := SanitizeTitle(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 115, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("é", 115), got)
}

func TestSanitizeTitleIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"a:b:c",
		strings.Repeat("y:", 120),
		"already clean title",
		strings.Repeat("z", 115),
	}
	for _, in := range inputs {
		once := SanitizeTitle(in)
		assert.Equal(t, once, SanitizeTitle(once))
	}
}
