package bot

import (
	"strconv"
	"strings"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/content"
)

// YesNo is a two-state toggle kept in its wire form so request payloads and
// stored run options round-trip without mapping tables.
type YesNo string

const (
	Yes YesNo = "yes"
	No  YesNo = "no"
)

func (y YesNo) Enabled() bool { return y == Yes }

// DuplicatePolicy decides what happens when the portal serves the same item
// twice in a row.
type DuplicatePolicy string

const (
	// DuplicateSkip advances past the repeated item and keeps going.
	DuplicateSkip DuplicatePolicy = "skip"
	// DuplicateStop treats a repeat as the natural end of the queue.
	DuplicateStop DuplicatePolicy = "stop"
)

// EmptyContentPolicy decides how an item with neither title nor description
// is handled.
type EmptyContentPolicy string

const (
	// EmptyDefault defers to the session strategy: interactive logins demand
	// generated content, unattended sessions fall back to placeholders.
	EmptyDefault EmptyContentPolicy = ""
	// EmptySkip leaves the item untouched and moves on.
	EmptySkip EmptyContentPolicy = "skip"
	// EmptyFallback fills placeholder content when generation is
	// unavailable or fails.
	EmptyFallback EmptyContentPolicy = "useGenericFallback"
	// EmptyRequireGeneration skips the item unless generation succeeds.
	EmptyRequireGeneration EmptyContentPolicy = "requireGeneration"
)

// Options is the full per-run configuration. Zero values are filled by
// Normalize, so a partially populated request body is always usable.
type Options struct {
	Template          content.Template   `json:"template"`
	ManualDescription string             `json:"manualDescription"`
	ModelRelease      YesNo              `json:"modelRelease"`
	ExclusiveImage    YesNo              `json:"exclusiveImage"`
	AIImage           YesNo              `json:"aiImage"`
	TitleFromImage    YesNo              `json:"titleFromImage"`
	Delay             content.PacingMode `json:"delay"`
	RepeatCount       int                `json:"repeatCount"`
	PauseAfter        int                `json:"pauseAfter"`
	PauseDuration     int                `json:"pauseDuration"`
	SameIDAction      DuplicatePolicy    `json:"sameIdAction"`
	OnEmptyContent    EmptyContentPolicy `json:"onEmptyContent"`
}

// DefaultOptions returns the stock configuration used when a start request
// omits fields.
func DefaultOptions() Options {
	return Options{
		Template:       content.Template1,
		ModelRelease:   No,
		ExclusiveImage: No,
		AIImage:        Yes,
		TitleFromImage: No,
		Delay:          content.PacingFast,
		RepeatCount:    999,
		PauseAfter:     0,
		PauseDuration:  60,
		SameIDAction:   DuplicateSkip,
		OnEmptyContent: EmptyDefault,
	}
}

// Normalize returns a copy with every field coerced into its valid range.
// Unknown enum values fall back to the defaults rather than failing the run.
func (o Options) Normalize() Options {
	d := DefaultOptions()

	switch o.Template {
	case content.TemplateNone, content.Template1, content.Template2:
	default:
		o.Template = d.Template
	}
	switch o.ModelRelease {
	case Yes, No:
	default:
		o.ModelRelease = d.ModelRelease
	}
	switch o.ExclusiveImage {
	case Yes, No:
	default:
		o.ExclusiveImage = d.ExclusiveImage
	}
	switch o.AIImage {
	case Yes, No:
	default:
		o.AIImage = d.AIImage
	}
	switch o.TitleFromImage {
	case Yes, No:
	default:
		o.TitleFromImage = d.TitleFromImage
	}
	switch o.Delay {
	case content.PacingFast, content.PacingSlow:
	default:
		o.Delay = d.Delay
	}
	switch o.SameIDAction {
	case DuplicateSkip, DuplicateStop:
	default:
		o.SameIDAction = d.SameIDAction
	}
	switch o.OnEmptyContent {
	case EmptyDefault, EmptySkip, EmptyFallback, EmptyRequireGeneration:
	default:
		o.OnEmptyContent = d.OnEmptyContent
	}

	if o.RepeatCount <= 0 {
		o.RepeatCount = d.RepeatCount
	}
	if o.PauseAfter < 0 {
		o.PauseAfter = d.PauseAfter
	}
	if o.PauseDuration <= 0 {
		o.PauseDuration = d.PauseDuration
	}
	o.ManualDescription = strings.TrimSpace(o.ManualDescription)

	return o
}

// OptionsFromMap builds run options from a loosely typed request body.
// Numeric fields arrive as JSON numbers or as strings depending on the
// client; either form is accepted, and unparseable values silently keep the
// default.
func OptionsFromMap(raw map[string]interface{}, defaults Options) Options {
	o := defaults

	if v, ok := stringField(raw, "template"); ok {
		o.Template = content.Template(v)
	}
	if v, ok := stringField(raw, "manualDescription"); ok {
		o.ManualDescription = v
	}
	if v, ok := stringField(raw, "modelRelease"); ok {
		o.ModelRelease = YesNo(v)
	}
	if v, ok := stringField(raw, "exclusiveImage"); ok {
		o.ExclusiveImage = YesNo(v)
	}
	if v, ok := stringField(raw, "aiImage"); ok {
		o.AIImage = YesNo(v)
	}
	if v, ok := stringField(raw, "titleFromImage"); ok {
		o.TitleFromImage = YesNo(v)
	}
	if v, ok := stringField(raw, "delay"); ok {
		o.Delay = content.PacingMode(v)
	}
	if v, ok := stringField(raw, "sameIdAction"); ok {
		o.SameIDAction = DuplicatePolicy(v)
	}
	if v, ok := stringField(raw, "onEmptyContent"); ok {
		o.OnEmptyContent = EmptyContentPolicy(v)
	}

	o.RepeatCount = intField(raw, "repeatCount", o.RepeatCount)
	o.PauseAfter = intField(raw, "pauseAfter", o.PauseAfter)
	o.PauseDuration = intField(raw, "pauseDuration", o.PauseDuration)

	return o.Normalize()
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func intField(raw map[string]interface{}, key string, fallback int) int {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}
