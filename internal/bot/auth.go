package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
)

// Credentials is the portal account used by interactive logins.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// SessionStrategy owns how a run obtains an authenticated page. Acquire
// creates the browser session and returns a cleanup that must run after the
// run finishes; Authenticate brings the page to a logged-in state.
type SessionStrategy interface {
	Name() string
	Acquire(ctx context.Context) (browser.Page, func(), error)
	Authenticate(ctx context.Context, p browser.Page) error
}

// runBinder lets the bot hand its per-run recorder and state to a strategy
// before the run begins.
type runBinder interface {
	bindRun(rec *Recorder, st *State)
}

// sessionBase carries the collaborators every strategy needs. The recorder
// and state arrive via bindRun when the owning bot is constructed.
type sessionBase struct {
	browserOpts *browser.Options
	guard       *guard.Guard
	recorder    *Recorder
	state       *State
	logger      *slog.Logger
	unit        time.Duration

	browser *browser.Browser
}

func (s *sessionBase) bindRun(rec *Recorder, st *State) {
	s.recorder = rec
	s.state = st
}

func (s *sessionBase) wait(seconds int) error {
	return waitWithStop(time.Duration(seconds)*s.unit, s.state)
}

func (s *sessionBase) stopFn() func() bool {
	return s.state.StopRequested
}

func (s *sessionBase) launch() (browser.Page, func(), error) {
	b, err := browser.New(s.browserOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("opening page: %w", err)
	}
	s.browser = b
	return page, func() {
		if err := b.Close(); err != nil {
			s.logger.Warn("browser close failed", "error", err)
		}
	}, nil
}

// verifyAuthenticated lands on the upload surface and confirms the session
// is logged in. Ambiguous pages count as not authenticated.
func (s *sessionBase) verifyAuthenticated(p browser.Page) error {
	if !strings.Contains(p.URL(), "/upload") {
		if err := p.Goto(UploadURL); err != nil {
			return fmt.Errorf("navigating to upload page: %w", err)
		}
	}
	if err := s.guard.ResolveChallenge(p, s.stopFn()); err != nil {
		return err
	}
	if !s.guard.DetectAuthenticated(p) {
		return fmt.Errorf("session is not authenticated")
	}
	return nil
}

// InteractiveLogin drives the portal login form with human-paced typing and
// waits out any verification interstitials.
type InteractiveLogin struct {
	sessionBase
	creds Credentials
}

func NewInteractiveLogin(creds Credentials, opts *browser.Options, g *guard.Guard, logger *slog.Logger) *InteractiveLogin {
	return &InteractiveLogin{
		sessionBase: sessionBase{
			browserOpts: opts,
			guard:       g,
			logger:      logger.With("component", "session", "mode", "interactive"),
			unit:        time.Second,
		},
		creds: creds,
	}
}

func (s *InteractiveLogin) Name() string { return "interactive" }

func (s *InteractiveLogin) Acquire(ctx context.Context) (browser.Page, func(), error) {
	if !s.creds.Configured() {
		return nil, nil, fmt.Errorf("username and password are required for interactive login")
	}
	return s.launch()
}

func (s *InteractiveLogin) Authenticate(ctx context.Context, p browser.Page) error {
	if s.guard.DetectAuthenticated(p) {
		s.recorder.Record(2, "Already signed in", StatusInfo)
		return nil
	}
	if err := s.openLoginForm(p); err != nil {
		return err
	}
	if err := s.fillCredentials(p); err != nil {
		return err
	}
	if err := s.submitLogin(p); err != nil {
		return err
	}
	return s.verifyAuthenticated(p)
}

// openLoginForm reveals the credential form, either via the sign-in trigger
// on the home page or by navigating straight to the login page.
func (s *InteractiveLogin) openLoginForm(p browser.Page) error {
	s.recorder.Record(2, "Opening the login form", StatusInfo)

	url := p.URL()
	if strings.Contains(url, "login") {
		return nil
	}
	if p.Count(selSignInTrigger) > 0 {
		if err := p.Click(selSignInTrigger); err == nil {
			if err := s.wait(2); err != nil {
				return err
			}
			return nil
		}
		s.logger.Warn("sign-in trigger click failed, falling back to direct login URL")
	}
	if err := p.Goto(LoginURL); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}
	return s.guard.ResolveChallenge(p, s.stopFn())
}

func (s *InteractiveLogin) fillCredentials(p browser.Page) error {
	s.recorder.Record(3, "Entering credentials", StatusInfo)

	if err := p.WaitForSelector(selUsername, 10*s.unit); err != nil {
		// The form can be hidden behind a verification step that only a
		// human can clear.
		s.recorder.Record(3, "Login form not visible, waiting for manual verification", StatusWarning)
		if err := s.wait(60); err != nil {
			return err
		}
		if err := p.WaitForSelector(selUsername, 10*s.unit); err != nil {
			return fmt.Errorf("login form never appeared: %w", err)
		}
	}

	if err := p.Fill(selUsername, ""); err != nil {
		return fmt.Errorf("clearing username field: %w", err)
	}
	if err := p.TypeSlowly(selUsername, s.creds.Username, 100*time.Millisecond); err != nil {
		return fmt.Errorf("typing username: %w", err)
	}
	if err := p.Fill(selPassword, ""); err != nil {
		return fmt.Errorf("clearing password field: %w", err)
	}
	if err := p.TypeSlowly(selPassword, s.creds.Password, 100*time.Millisecond); err != nil {
		return fmt.Errorf("typing password: %w", err)
	}
	return nil
}

func (s *InteractiveLogin) submitLogin(p browser.Page) error {
	s.recorder.Record(4, "Submitting login", StatusInfo)

	if err := p.Click(selLoginSubmit); err != nil {
		return fmt.Errorf("clicking login submit: %w", err)
	}
	if err := s.wait(5); err != nil {
		return err
	}
	if err := s.guard.ResolveChallenge(p, s.stopFn()); err != nil {
		return err
	}

	// A secure-login interstitial means the portal wants extra verification
	// from the operator. Give them up to a minute.
	if strings.Contains(p.URL(), "securelogin") {
		s.recorder.Record(4, "Secure login verification detected, waiting for manual approval", StatusWarning)
		deadline := time.Now().Add(60 * s.unit)
		for strings.Contains(p.URL(), "securelogin") {
			if time.Now().After(deadline) {
				return fmt.Errorf("secure login verification was not completed")
			}
			if err := s.wait(5); err != nil {
				return err
			}
		}
	}
	return nil
}

// CookieSession restores a saved cookie jar and only falls back to the
// interactive flow when the cookies no longer authenticate.
type CookieSession struct {
	sessionBase
	cookieFile string
	fallback   *InteractiveLogin
}

func NewCookieSession(cookieFile string, creds Credentials, opts *browser.Options, g *guard.Guard, logger *slog.Logger) *CookieSession {
	s := &CookieSession{
		sessionBase: sessionBase{
			browserOpts: opts,
			guard:       g,
			logger:      logger.With("component", "session", "mode", "cookies"),
			unit:        time.Second,
		},
		cookieFile: cookieFile,
	}
	if creds.Configured() {
		s.fallback = NewInteractiveLogin(creds, opts, g, logger)
	}
	return s
}

func (s *CookieSession) Name() string { return "cookies" }

func (s *CookieSession) bindRun(rec *Recorder, st *State) {
	s.sessionBase.bindRun(rec, st)
	if s.fallback != nil {
		s.fallback.bindRun(rec, st)
	}
}

func (s *CookieSession) Acquire(ctx context.Context) (browser.Page, func(), error) {
	page, cleanup, err := s.launch()
	if err != nil {
		return nil, nil, err
	}
	if s.fallback != nil {
		s.fallback.browser = s.browser
	}

	loaded, err := s.browser.LoadCookies(s.cookieFile)
	if err != nil {
		s.logger.Warn("loading cookies failed", "file", s.cookieFile, "error", err)
	} else if loaded {
		s.recorder.Record(2, "Restored saved session cookies", StatusInfo)
	}
	return page, cleanup, nil
}

func (s *CookieSession) Authenticate(ctx context.Context, p browser.Page) error {
	if err := s.verifyAuthenticated(p); err == nil {
		s.saveCookies()
		return nil
	}

	if s.fallback == nil {
		return fmt.Errorf("saved cookies are no longer valid and no credentials are configured")
	}
	s.recorder.Record(2, "Saved cookies expired, falling back to interactive login", StatusWarning)
	if err := s.fallback.Authenticate(ctx, p); err != nil {
		return err
	}
	s.saveCookies()
	return nil
}

func (s *CookieSession) saveCookies() {
	if err := s.browser.SaveCookies(s.cookieFile); err != nil {
		s.logger.Warn("saving cookies failed", "file", s.cookieFile, "error", err)
	}
}

// CDPAttach joins an already running browser over the DevTools protocol and
// assumes the operator's session is logged in.
type CDPAttach struct {
	sessionBase
	endpoint string
}

func NewCDPAttach(endpoint string, opts *browser.Options, g *guard.Guard, logger *slog.Logger) *CDPAttach {
	return &CDPAttach{
		sessionBase: sessionBase{
			browserOpts: opts,
			guard:       g,
			logger:      logger.With("component", "session", "mode", "cdp"),
			unit:        time.Second,
		},
		endpoint: endpoint,
	}
}

func (s *CDPAttach) Name() string { return "cdp" }

func (s *CDPAttach) Acquire(ctx context.Context) (browser.Page, func(), error) {
	b, err := browser.Attach(s.endpoint, s.browserOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("attaching to browser at %s: %w", s.endpoint, err)
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("opening page: %w", err)
	}
	s.browser = b
	return page, func() {
		if err := b.Close(); err != nil {
			s.logger.Warn("detach failed", "error", err)
		}
	}, nil
}

func (s *CDPAttach) Authenticate(ctx context.Context, p browser.Page) error {
	if err := s.verifyAuthenticated(p); err != nil {
		return fmt.Errorf("attached browser session is not logged in: %w", err)
	}
	return nil
}
