package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/content"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
)

// pageItem is one queued upload as the scripted portal serves it.
type pageItem struct {
	id    string
	title string
	desc  string
}

type fieldWrite struct {
	selector string
	value    string
}

// fakePage simulates the submission portal: a queue of items served in
// order through the edit link, a form for the current item, and a submit
// button that records what went out.
type fakePage struct {
	mu        sync.Mutex
	url       string
	queue     []pageItem
	pos       int
	current   *pageItem
	submitted []string
	writes    []fieldWrite
}

var _ browser.Page = (*fakePage)(nil)

func (p *fakePage) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) Reload() error { return nil }

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Title() (string, error)   { return "Dreamstime Upload", nil }
func (p *fakePage) Content() (string, error) { return "<html><body></body></html>", nil }

func (p *fakePage) Evaluate(script string) (interface{}, error) {
	return "complete", nil
}

func (p *fakePage) WaitForSelector(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == selTitle && p.current == nil {
		return errors.New("timeout waiting for " + selector)
	}
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case selEditLink:
		if p.pos < len(p.queue) {
			item := p.queue[p.pos]
			p.pos++
			p.current = &item
			p.url = BaseURL + "/upload/edit/" + item.id
		}
	case selSubmitButton:
		if p.current != nil {
			p.submitted = append(p.submitted, p.current.id)
			p.current = nil
			p.url = UploadURL
		}
	}
	return nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, fieldWrite{selector, value})
	return nil
}

func (p *fakePage) TypeSlowly(selector, text string, delay time.Duration) error {
	return p.Fill(selector, text)
}

func (p *fakePage) Count(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case selReadyItem, selEditLink:
		if p.pos < len(p.queue) {
			return 1
		}
	case selSubmitButton, selDeleteItem:
		if p.current != nil {
			return 1
		}
	case selNextItem:
		return 1
	}
	return 0
}

func (p *fakePage) Visible(selector string) bool { return false }

func (p *fakePage) InnerText(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == selItemID && p.current != nil {
		return p.current.id, nil
	}
	return "", errors.New("no element for " + selector)
}

func (p *fakePage) InputValue(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", errors.New("no item open")
	}
	switch selector {
	case selTitle:
		return p.current.title, nil
	case selDescription:
		return p.current.desc, nil
	}
	return "", errors.New("no element for " + selector)
}

func (p *fakePage) SelectOption(selector, value string) error { return nil }
func (p *fakePage) DispatchEvent(selector, event string) error {
	return nil
}

func (p *fakePage) SetFieldValueWithEvents(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, fieldWrite{selector, value})
	if p.current != nil {
		switch selector {
		case selTitle:
			p.current.title = value
		case selDescription:
			p.current.desc = value
		}
	}
	return nil
}

func (p *fakePage) Screenshot(selector string) ([]byte, error) {
	return nil, errors.New("screenshot unavailable")
}

func (p *fakePage) Focus(selector string) error { return nil }
func (p *fakePage) KeyDown(key string) error    { return nil }
func (p *fakePage) KeyUp(key string) error      { return nil }
func (p *fakePage) Close() error                { return nil }

func (p *fakePage) wroteValue(selector, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.writes {
		if w.selector == selector && w.value == value {
			return true
		}
	}
	return false
}

func (p *fakePage) submittedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.submitted))
	copy(out, p.submitted)
	return out
}

// fakeSession hands the scripted page to the bot without touching a real
// browser.
type fakeSession struct {
	page browser.Page
	name string
}

func (s *fakeSession) Name() string {
	if s.name == "" {
		return "cookies"
	}
	return s.name
}

func (s *fakeSession) Acquire(ctx context.Context) (browser.Page, func(), error) {
	return s.page, func() {}, nil
}

func (s *fakeSession) Authenticate(ctx context.Context, p browser.Page) error {
	return nil
}

func newTestBot(opts Options, page *fakePage, sessionName string) *Bot {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := guard.New(UploadURL, logger)
	g.BypassHoldCeiling = 5 * time.Millisecond
	g.BypassPollInterval = time.Millisecond
	g.ManualWaitCeiling = 10 * time.Millisecond
	g.ManualPollInterval = time.Millisecond
	g.StabilizeWait = time.Millisecond

	b := New(opts, &fakeSession{page: page, name: sessionName}, g, nil, NewRecorder(logger), logger)
	b.unit = time.Millisecond
	return b
}

func hasEvent(events []Event, status, substr string) bool {
	for _, e := range events {
		if e.Status == status && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunSubmitsPrefilledItems(t *testing.T) {
	page := &fakePage{queue: []pageItem{
		{id: "100", title: "Sunset over the bay", desc: "A warm sunset"},
		{id: "200", desc: "Beach umbrellas at noon"},
	}}
	b := newTestBot(DefaultOptions(), page, "")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "200"}, page.submittedIDs())
	assert.Equal(t, 2, b.State().ProcessedCount)
	assert.Equal(t, 2, b.State().SuccessCount)
	// The second item had no title, so the description stands in for it.
	assert.True(t, page.wroteValue(selTitle, "Beach umbrellas at noon"))

	events := b.Recorder().Snapshot()
	assert.True(t, hasEvent(events, StatusSuccess, "Run completed"))
	assert.True(t, hasEvent(events, StatusSuccess, "No more images"))
}

func TestDuplicateStopPolicyEndsRun(t *testing.T) {
	opts := DefaultOptions()
	opts.SameIDAction = DuplicateStop

	page := &fakePage{queue: []pageItem{
		{id: "A", title: "First", desc: "first"},
		{id: "A", title: "First again", desc: "served twice"},
		{id: "B", title: "Never reached", desc: "never"},
	}}
	b := newTestBot(opts, page, "")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, page.submittedIDs())
	assert.Equal(t, 1, b.State().ProcessedCount)
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusInfo, "Same image served twice"))
}

func TestDuplicateSkipPolicyForceCountsAfterRetries(t *testing.T) {
	opts := DefaultOptions()
	opts.SameIDAction = DuplicateSkip

	page := &fakePage{queue: []pageItem{
		{id: "A", title: "First", desc: "first"},
		{id: "A", title: "Again", desc: "again"},
		{id: "A", title: "Again", desc: "again"},
		{id: "A", title: "Again", desc: "again"},
	}}
	b := newTestBot(opts, page, "")

	err := b.Run(context.Background())
	require.NoError(t, err)

	// One real submission plus one force-counted repeat.
	assert.Equal(t, []string{"A"}, page.submittedIDs())
	assert.Equal(t, 2, b.State().ProcessedCount)
	assert.Equal(t, 1, b.State().SuccessCount)
	assert.Equal(t, 0, b.State().DuplicateRetries)
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusWarning, "kept reappearing"))
}

func TestRepeatCountLimitsRun(t *testing.T) {
	opts := DefaultOptions()
	opts.RepeatCount = 2

	page := &fakePage{queue: []pageItem{
		{id: "1", title: "a", desc: "a"},
		{id: "2", title: "b", desc: "b"},
		{id: "3", title: "c", desc: "c"},
	}}
	b := newTestBot(opts, page, "")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, page.submittedIDs())
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusSuccess, "configured limit"))
}

func TestStopRequestHaltsPromptly(t *testing.T) {
	queue := make([]pageItem, 0, 200)
	for i := 0; i < 200; i++ {
		queue = append(queue, pageItem{id: strconv.Itoa(i), title: "t", desc: "d"})
	}
	page := &fakePage{queue: queue}
	b := newTestBot(DefaultOptions(), page, "")

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- b.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	b.Stop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, guard.ErrStopRequested)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop in time")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusWarning, "stopped by user"))
}

func TestEmptyContentRequireGenerationSkips(t *testing.T) {
	// Interactive sessions default to requiring generated content; with no
	// analyzer configured the item is skipped.
	page := &fakePage{queue: []pageItem{{id: "300"}}}
	b := newTestBot(DefaultOptions(), page, "interactive")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, page.submittedIDs())
	assert.Equal(t, 0, b.State().SuccessCount)
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusWarning, "Could not generate content"))
}

func TestEmptyContentFallbackSubmitsPlaceholder(t *testing.T) {
	// Unattended cookie sessions fall back to placeholder content.
	opts := DefaultOptions()
	opts.Template = content.TemplateNone

	page := &fakePage{queue: []pageItem{{id: "300"}}}
	b := newTestBot(opts, page, "cookies")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"300"}, page.submittedIDs())
	assert.True(t, page.wroteValue(selTitle, "AI Generated Image 300"))
	assert.True(t, page.wroteValue(selDescription, genericDescription))
}

func TestEmptyContentExplicitSkipOverridesDefault(t *testing.T) {
	opts := DefaultOptions()
	opts.OnEmptyContent = EmptySkip

	page := &fakePage{queue: []pageItem{{id: "300"}, {id: "400", title: "ok", desc: "fine"}}}
	b := newTestBot(opts, page, "cookies")

	err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"400"}, page.submittedIDs())
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusInfo, "no title or description"))
}

func TestManualDescriptionAndTemplateAppended(t *testing.T) {
	opts := DefaultOptions()
	opts.Template = content.Template1
	opts.ManualDescription = "studio lighting"

	page := &fakePage{queue: []pageItem{{id: "1", title: "Portrait", desc: "A portrait"}}}
	b := newTestBot(opts, page, "")

	err := b.Run(context.Background())
	require.NoError(t, err)

	page.mu.Lock()
	defer page.mu.Unlock()
	var descWrite string
	for _, w := range page.writes {
		if w.selector == selDescription {
			descWrite = w.value
		}
	}
	require.NotEmpty(t, descWrite)
	assert.True(t, strings.HasPrefix(descWrite, "A portrait studio lighting"))
	assert.Greater(t, len(descWrite), len("A portrait studio lighting"))
}

func TestPaceAddsPauseOnTopOfSampledDelay(t *testing.T) {
	opts := DefaultOptions()
	opts.PauseAfter = 1
	opts.PauseDuration = 5

	b := newTestBot(opts, &fakePage{}, "")
	b.unit = 2 * time.Millisecond
	b.state.ProcessedCount = 1

	start := time.Now()
	require.NoError(t, b.pace())
	elapsed := time.Since(start)

	// The fast sampled delay is at least 5 units; the pause adds 5 more on
	// top rather than replacing it.
	assert.GreaterOrEqual(t, elapsed, 10*b.unit)
	assert.True(t, hasEvent(b.Recorder().Snapshot(), StatusInfo, "Pausing for"))
}

func TestViewingGraceOnlyForHeadfulInteractive(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := guard.New(UploadURL, logger)
	creds := Credentials{Username: "user", Password: "pass"}

	headful := browser.DefaultOptions()
	headful.Headless = false
	b := New(DefaultOptions(), NewInteractiveLogin(creds, headful, g, logger), g, nil, NewRecorder(logger), logger)
	assert.True(t, b.viewingGrace())

	headless := browser.DefaultOptions()
	b = New(DefaultOptions(), NewInteractiveLogin(creds, headless, g, logger), g, nil, NewRecorder(logger), logger)
	assert.False(t, b.viewingGrace())

	b = newTestBot(DefaultOptions(), &fakePage{}, "")
	assert.False(t, b.viewingGrace())
}

func TestOptionsNormalizeFillsDefaults(t *testing.T) {
	o := Options{
		Template:     "bogus",
		Delay:        "warp",
		RepeatCount:  -5,
		SameIDAction: "explode",
	}.Normalize()

	d := DefaultOptions()
	assert.Equal(t, d.Template, o.Template)
	assert.Equal(t, d.Delay, o.Delay)
	assert.Equal(t, d.RepeatCount, o.RepeatCount)
	assert.Equal(t, d.SameIDAction, o.SameIDAction)
	assert.Equal(t, d.OnEmptyContent, o.OnEmptyContent)
	// Image-derived titles are opt-in.
	assert.Equal(t, No, d.TitleFromImage)
	assert.Equal(t, No, o.TitleFromImage)
}

func TestOptionsFromMapCoercesStrings(t *testing.T) {
	raw := map[string]interface{}{
		"template":       "template2",
		"repeatCount":    "25",
		"pauseAfter":     float64(5),
		"pauseDuration":  "not-a-number",
		"sameIdAction":   "stop",
		"titleFromImage": "yes",
	}
	o := OptionsFromMap(raw, DefaultOptions())

	assert.Equal(t, content.Template2, o.Template)
	assert.Equal(t, 25, o.RepeatCount)
	assert.Equal(t, 5, o.PauseAfter)
	assert.Equal(t, DefaultOptions().PauseDuration, o.PauseDuration)
	assert.Equal(t, DuplicateStop, o.SameIDAction)
	assert.Equal(t, Yes, o.TitleFromImage)
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func TestRecorderFansOutToSinks(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), sink)

	rec.Record(1, "first", StatusInfo)
	rec.Record(RunLevelStep, "second", StatusWarning)

	snap := rec.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Event{Step: 1, Message: "first", Status: StatusInfo}, snap[0])

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, snap, sink.events)
}

func TestStateResetClearsEverything(t *testing.T) {
	st := &State{
		LastItemID:       "42",
		DuplicateRetries: 2,
		ConsecutiveStuck: 1,
		ProcessedCount:   7,
		SuccessCount:     5,
	}
	st.RequestStop()

	st.Reset()

	assert.False(t, st.StopRequested())
	assert.Empty(t, st.LastItemID)
	assert.Zero(t, st.DuplicateRetries)
	assert.Zero(t, st.ProcessedCount)
	assert.Zero(t, st.SuccessCount)
}

func TestWaitWithStopReturnsOnStop(t *testing.T) {
	st := &State{}
	st.RequestStop()

	start := time.Now()
	err := waitWithStop(5*time.Second, st)
	require.ErrorIs(t, err, guard.ErrStopRequested)
	assert.Less(t, time.Since(start), time.Second)
}
