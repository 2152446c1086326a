package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
)

var (
	// ErrStopRequested aborts a guarded wait because the run's stop flag was set.
	ErrStopRequested = errors.New("stop requested")
	// ErrChallengeUnresolved means the challenge outlived both the automated
	// bypass and the manual-intervention window. Run-fatal.
	ErrChallengeUnresolved = errors.New("challenge not resolved")
	// ErrStuckExhausted means recovery attempts hit the retry ceiling. Callers
	// treat this as "skip the current item" outside of session setup.
	ErrStuckExhausted = errors.New("stuck page recovery exhausted")
)

// Page title fragments that indicate an access-denied or challenge page.
var challengeTitleMarkers = []string{"denied", "blocked"}

// Selectors the challenge vendor injects. The press-and-hold control is the
// first one that resolves.
var challengeSelectors = []string{
	"#px-captcha",
	"div.px-captcha-container",
	"iframe[src*='captcha']",
	"iframe[title*='Human verification']",
}

const challengeTextMarker = "Press & Hold"

// Title fragments of Dreamstime's error and interstitial pages.
var errorTitleMarkers = []string{
	"502 bad gateway",
	"504 gateway",
	"service unavailable",
	"problem loading page",
	"page not found",
}

var authenticatedURLMarkers = []string{"/upload", "/member"}

var loginFormSelectors = []string{
	"input.js-login-uname",
	"input.js-login-pass",
	"a.h-login__btn--sign-in",
}

var authenticatedUISelectors = []string{
	"a#js-upload",
	"a.upload-btn",
	"div.h-user__menu",
}

// Guard classifies anomalous page states and drives bounded recovery.
type Guard struct {
	FallbackURL        string
	MaxStuckRetries    int
	BypassHoldCeiling  time.Duration
	BypassPollInterval time.Duration
	ManualWaitCeiling  time.Duration
	ManualPollInterval time.Duration
	StabilizeWait      time.Duration

	logger *slog.Logger
}

func New(fallbackURL string, logger *slog.Logger) *Guard {
	return &Guard{
		FallbackURL:        fallbackURL,
		MaxStuckRetries:    3,
		BypassHoldCeiling:  15 * time.Second,
		BypassPollInterval: 500 * time.Millisecond,
		ManualWaitCeiling:  5 * time.Minute,
		ManualPollInterval: 5 * time.Second,
		StabilizeWait:      2 * time.Second,
		logger:             logger.With("component", "guard"),
	}
}

// DetectChallenge reports whether a verification challenge is on screen.
func (g *Guard) DetectChallenge(p browser.Page) bool {
	if title, err := p.Title(); err == nil {
		lower := strings.ToLower(title)
		for _, marker := range challengeTitleMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}

	for _, selector := range challengeSelectors {
		if p.Count(selector) > 0 {
			return true
		}
	}

	if content, err := p.Content(); err == nil && strings.Contains(content, challengeTextMarker) {
		return true
	}

	return false
}

// BypassChallenge attempts the press-and-hold trick: focus the challenge
// control and hold Enter, polling for the challenge markers to clear.
// Returns true when the challenge disappeared before the hold ceiling.
func (g *Guard) BypassChallenge(p browser.Page) bool {
	control := challengeSelectors[0]
	for _, selector := range challengeSelectors {
		if p.Count(selector) > 0 {
			control = selector
			break
		}
	}

	g.logger.Warn("challenge detected, attempting press-and-hold bypass", "control", control)

	if err := p.Focus(control); err != nil {
		g.logger.Warn("could not focus challenge control", "error", err)
	}
	if err := p.KeyDown("Enter"); err != nil {
		g.logger.Warn("could not hold activation key", "error", err)
		return false
	}
	defer p.KeyUp("Enter")

	deadline := time.Now().Add(g.BypassHoldCeiling)
	for time.Now().Before(deadline) {
		time.Sleep(g.BypassPollInterval)
		if !g.DetectChallenge(p) {
			g.logger.Info("challenge bypassed")
			return true
		}
	}

	g.logger.Warn("press-and-hold bypass did not clear the challenge")
	return false
}

// AwaitManualResolution polls for the challenge to clear, giving a human
// operator time to solve it. The stop flag is checked every cycle.
func (g *Guard) AwaitManualResolution(p browser.Page, stop func() bool) error {
	g.logger.Warn("waiting for manual challenge resolution", "ceiling", g.ManualWaitCeiling)

	deadline := time.Now().Add(g.ManualWaitCeiling)
	for time.Now().Before(deadline) {
		if stop != nil && stop() {
			return ErrStopRequested
		}
		if !g.DetectChallenge(p) {
			g.logger.Info("challenge resolved manually")
			return nil
		}
		time.Sleep(g.ManualPollInterval)
	}

	return ErrChallengeUnresolved
}

// ResolveChallenge runs the full ladder: detect, automated bypass, manual
// wait. Returns nil when no challenge remains.
func (g *Guard) ResolveChallenge(p browser.Page, stop func() bool) error {
	if !g.DetectChallenge(p) {
		return nil
	}
	if g.BypassChallenge(p) {
		return nil
	}
	return g.AwaitManualResolution(p, stop)
}

// DetectStuck reports whether the page is loaded but unresponsive: a blank
// URL, an error interstitial, or a failing readiness probe.
func (g *Guard) DetectStuck(p browser.Page) bool {
	url := p.URL()
	if url == "" || url == "about:blank" {
		return true
	}

	if title, err := p.Title(); err == nil {
		lower := strings.ToLower(title)
		for _, marker := range errorTitleMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}

	state, err := p.Evaluate("document.readyState")
	if err != nil {
		return true
	}
	if s, ok := state.(string); ok {
		return s != "complete" && s != "interactive"
	}
	return true
}

// RecoverStuck drives the reload ladder until the page responds again or the
// attempt counter reaches the ceiling. The counter lives in the caller's run
// state so consecutive failures across calls share one bound; it is reset to
// zero on success. Never recursive.
func (g *Guard) RecoverStuck(p browser.Page, attempts *int) error {
	for {
		if !g.DetectStuck(p) {
			*attempts = 0
			return nil
		}
		if *attempts >= g.MaxStuckRetries {
			return fmt.Errorf("%w after %d attempts", ErrStuckExhausted, *attempts)
		}
		*attempts++
		g.logger.Warn("stuck page detected, recovering", "attempt", *attempts)

		if err := p.Reload(); err != nil {
			url := p.URL()
			if url == "" || url == "about:blank" || p.Goto(url) != nil {
				if err := p.Goto(g.FallbackURL); err != nil {
					g.logger.Warn("fallback navigation failed", "error", err)
				}
			}
		}

		time.Sleep(g.StabilizeWait)
	}
}

// AwaitSelector waits for a selector, running stuck recovery and retrying
// once if the initial wait times out.
func (g *Guard) AwaitSelector(p browser.Page, selector string, timeout time.Duration, attempts *int) error {
	if err := p.WaitForSelector(selector, timeout); err == nil {
		return nil
	}

	if err := g.RecoverStuck(p, attempts); err != nil {
		return err
	}

	if err := p.WaitForSelector(selector, timeout); err != nil {
		return fmt.Errorf("selector %s never appeared: %w", selector, err)
	}
	return nil
}

// DetectAuthenticated reports whether the session is logged in. Ambiguity
// resolves to false.
func (g *Guard) DetectAuthenticated(p browser.Page) bool {
	url := strings.ToLower(p.URL())
	for _, marker := range authenticatedURLMarkers {
		if strings.Contains(url, marker) {
			return true
		}
	}

	for _, selector := range loginFormSelectors {
		if p.Count(selector) > 0 {
			return false
		}
	}

	for _, selector := range authenticatedUISelectors {
		if p.Count(selector) > 0 {
			return true
		}
	}

	return false
}
