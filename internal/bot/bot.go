package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/vision"
)

// Bot drives one submission run against the portal: it acquires a session,
// authenticates, then works through the upload queue item by item.
type Bot struct {
	opts     Options
	session  SessionStrategy
	guard    *guard.Guard
	analyzer *vision.Analyzer
	recorder *Recorder
	state    *State
	logger   *slog.Logger

	// unit scales every second-denominated wait. Production keeps it at one
	// second; tests shrink it to keep scripted runs fast.
	unit time.Duration

	page browser.Page
}

func New(opts Options, session SessionStrategy, g *guard.Guard, analyzer *vision.Analyzer, rec *Recorder, logger *slog.Logger) *Bot {
	b := &Bot{
		opts:     opts.Normalize(),
		session:  session,
		guard:    g,
		analyzer: analyzer,
		recorder: rec,
		state:    &State{},
		logger:   logger.With("component", "bot"),
		unit:     time.Second,
	}
	if binder, ok := session.(runBinder); ok {
		binder.bindRun(rec, b.state)
	}
	return b
}

// SetWaitUnit rescales every second-denominated wait. Anything below a full
// second turns the run into a dry sprint, which is only useful in tests.
func (b *Bot) SetWaitUnit(d time.Duration) {
	if d > 0 {
		b.unit = d
	}
}

func (b *Bot) Options() Options    { return b.opts }
func (b *Bot) State() *State       { return b.state }
func (b *Bot) Recorder() *Recorder { return b.recorder }

// Stop requests a cooperative shutdown. The run winds down at its next
// checkpoint, never mid keystroke.
func (b *Bot) Stop() {
	b.state.RequestStop()
}

// Run executes the full automation flow. A user-requested stop returns
// guard.ErrStopRequested after recording a distinct warning; any other error
// means the run failed before finishing the queue.
func (b *Bot) Run(ctx context.Context) error {
	start := time.Now()
	b.recorder.Record(RunLevelStep, fmt.Sprintf("Starting run using %s session", b.session.Name()), StatusInfo)

	page, cleanup, err := b.session.Acquire(ctx)
	if err != nil {
		b.recorder.Record(RunLevelStep, fmt.Sprintf("Could not start a browser session: %v", err), StatusError)
		return err
	}
	defer cleanup()
	b.page = page

	err = b.runPhases(ctx)
	b.summarize(start)

	switch {
	case errors.Is(err, guard.ErrStopRequested):
		b.recorder.Record(RunLevelStep, "Run stopped by user request", StatusWarning)
		return err
	case err != nil:
		b.recorder.Record(RunLevelStep, fmt.Sprintf("Run failed: %v", err), StatusError)
		return err
	}

	b.recorder.Record(RunLevelStep, "Run completed", StatusSuccess)
	if b.viewingGrace() {
		// Leave the browser up briefly so the operator can inspect the
		// final page before teardown.
		b.waitSeconds(10)
	}
	return nil
}

// viewingGrace reports whether the browser should stay open briefly after a
// successful run. Only a headful interactive session has an operator watching.
func (b *Bot) viewingGrace() bool {
	s, ok := b.session.(*InteractiveLogin)
	return ok && s.browserOpts != nil && !s.browserOpts.Headless
}

func (b *Bot) runPhases(ctx context.Context) error {
	phases := []func(context.Context) error{
		b.navigate,
		b.authenticate,
		b.openUploadQueue,
		b.processItems,
	}
	for _, phase := range phases {
		if b.state.StopRequested() {
			return guard.ErrStopRequested
		}
		if err := phase(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) navigate(ctx context.Context) error {
	b.recorder.Record(1, "Navigating to Dreamstime", StatusInfo)
	if err := b.page.Goto(BaseURL); err != nil {
		return fmt.Errorf("opening %s: %w", BaseURL, err)
	}
	if err := b.waitSeconds(2); err != nil {
		return err
	}
	return b.guard.ResolveChallenge(b.page, b.state.StopRequested)
}

func (b *Bot) authenticate(ctx context.Context) error {
	return b.session.Authenticate(ctx, b.page)
}

// openUploadQueue lands on the submission queue, preferring the on-page
// upload button over a direct navigation so the flow matches a human's.
func (b *Bot) openUploadQueue(ctx context.Context) error {
	b.recorder.Record(5, "Opening the upload queue", StatusInfo)

	if !strings.Contains(b.page.URL(), "/upload") {
		if b.page.Count(selUploadButton) > 0 {
			if err := b.page.Click(selUploadButton); err != nil {
				b.logger.Warn("upload button click failed, navigating directly", "error", err)
				if err := b.page.Goto(UploadURL); err != nil {
					return fmt.Errorf("opening upload queue: %w", err)
				}
			}
		} else if err := b.page.Goto(UploadURL); err != nil {
			return fmt.Errorf("opening upload queue: %w", err)
		}
	}
	if err := b.waitSeconds(3); err != nil {
		return err
	}
	if err := b.guard.ResolveChallenge(b.page, b.state.StopRequested); err != nil {
		return err
	}

	if badge, err := b.page.InnerText(selUploadCount); err == nil {
		if count := strings.TrimSpace(badge); count != "" {
			b.recorder.Record(5, fmt.Sprintf("Upload queue reports %s pending files", count), StatusInfo)
		}
	}
	return nil
}

func (b *Bot) summarize(start time.Time) {
	elapsed := time.Since(start).Round(time.Second)
	b.recorder.Record(RunLevelStep,
		fmt.Sprintf("Processed %d images (%d submitted) in %s",
			b.state.ProcessedCount, b.state.SuccessCount, elapsed),
		StatusInfo)
}

// waitSeconds sleeps for the given number of scaled seconds while honoring
// stop requests.
func (b *Bot) waitSeconds(seconds int) error {
	return waitWithStop(time.Duration(seconds)*b.unit, b.state)
}

// waitWithStop sleeps in short slices so a stop request is noticed within
// roughly a hundred milliseconds.
func waitWithStop(d time.Duration, st *State) error {
	const slice = 100 * time.Millisecond

	deadline := time.Now().Add(d)
	for {
		if st.StopRequested() {
			return guard.ErrStopRequested
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining < slice {
			time.Sleep(remaining)
		} else {
			time.Sleep(slice)
		}
	}
}
