package content

import (
	"math/rand"
	"strings"
)

// Template selects which decorative phrase list gets appended to descriptions.
type Template string

const (
	TemplateNone Template = "none"
	Template1    Template = "template1"
	Template2    Template = "template2"
)

// PacingMode controls how long the bot idles between submissions.
type PacingMode string

const (
	PacingFast PacingMode = "fast"
	PacingSlow PacingMode = "slow"
)

// MaxTitleLength is the hard limit Dreamstime enforces on the title field.
const MaxTitleLength = 115

// SampleDelaySeconds returns a human-like delay in whole seconds.
// Fast mode samples uniformly from [5,10], slow mode from [10,15].
func SampleDelaySeconds(mode PacingMode) int {
	if mode == PacingSlow {
		return 10 + rand.Intn(6)
	}
	return 5 + rand.Intn(6)
}

// SampleTemplatePhrase returns a random phrase from the selected template
// list, or an empty string for TemplateNone. The phrase carries its own
// leading separator.
func SampleTemplatePhrase(t Template) string {
	switch t {
	case Template1:
		return template1Phrases[rand.Intn(len(template1Phrases))]
	case Template2:
		return template2Phrases[rand.Intn(len(template2Phrases))]
	default:
		return ""
	}
}

// SanitizeTitle replaces colons with commas and truncates to MaxTitleLength
// characters. Colons break Dreamstime's title validation; nothing else is
// touched. Truncation counts runes so a multi-byte title is never cut
// mid-character.
func SanitizeTitle(title string) string {
	if title == "" {
		return ""
	}
	sanitized := strings.ReplaceAll(title, ":", ",")
	if runes := []rune(sanitized); len(runes) > MaxTitleLength {
		sanitized = string(runes[:MaxTitleLength])
	}
	return sanitized
}

var template1Phrases = []string{
	", high resolution",
	", aesthetic background",
	", stunning visual effect",
	", detailed texture",
	", artistic vibe",
	", captivating background",
	", high quality result",
	", elegant style",
	", mesmerizing view",
	", beautiful background",
	", professional touch",
	", vibrant tone",
	", luxurious feel",
	", cinematic background",
	", colorful theme",
	", minimalist background",
	", vintage charm",
	", futuristic concept",
	", abstract background",
	", modern aesthetic",
	", polished appearance",
	", seamless texture",
	", harmonious background",
	", immersive atmosphere",
	", nature-inspired background",
	", bold composition",
	", intricate background design",
	", glossy reflection",
	", refined elegance",
	", subtle gradient",
	", dreamy concept",
	", expressive background details",
	", creative perspective",
	", layered depth",
	", smooth transitions",
	", timeless background beauty",
	", fresh tone",
	", urban background",
	", artistic arrangement",
	", dynamic background flow",
}

var template2Phrases = []string{
	", glowing background effect",
	", intricate detail",
	", serene vibe",
	", cozy background atmosphere",
	", exotic touch",
	", pastel background tone",
	", bold appearance",
	", surreal background theme",
	", enchanting mood",
	", rustic texture",
	", glossy background finish",
	", monochrome style",
	", geometric background pattern",
	", dynamic flow",
	", dreamy and soft background gradient",
	", playful design",
	", refined background touch",
	", sophisticated detail",
	", urban aesthetic",
	", whimsical background charm",
	", radiant glow",
	", natural elegance",
	", fluid motion",
	", stylish background execution",
	", polished lines",
	", innovative background concept",
	", vibrant highlights",
	", balanced composition",
	", gentle background curves",
	", cool tones",
	", modern simplicity",
	", artistic harmony",
	", textured dimension",
	", vivid saturation",
	", contrasting background elements",
	", fresh composition",
	", subtle details",
	", timeless atmosphere",
	", bright inspiration",
	", dynamic background perspective",
}
