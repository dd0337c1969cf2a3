package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/captcha"
	"hwtrack-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_login_debug_screenshot = "login.debug-screenshot"
	report_login_cas              = "login.cas"
	report_login_direct           = "login.direct"
	report_login_harvest          = "login.harvest"
)

// CaptchaSolver is the subset of captcha.Solver the login needs.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) captcha.Outcome
}

type AutomatonOptions struct {
	Launcher  Launcher
	Solver    CaptchaSolver
	Endpoints Endpoints
	Selectors Selectors
	Timing    Timing
	// CaptchaLocator defaults to LastImage.
	CaptchaLocator CaptchaLocator
	// TokenSelector defaults to LastMatch.
	TokenSelector Selector
	// SecretPrefix defaults to DefaultSecretPrefix.
	SecretPrefix string
	// TempDir is the parent of the per-login scratch directory, empty means os.TempDir().
	TempDir string
}

// Automaton drives a fresh browser through the portal's login forms.
type Automaton struct {
	opts AutomatonOptions
	tel  telemetry.API
}

func NewAutomaton(opts AutomatonOptions, tel telemetry.API) Automaton {
	assert.NotNil(opts.Launcher)
	assert.NotNil(opts.Solver)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Endpoints.LoginURL)
	assert.NotEmptyStr(opts.Endpoints.BaseURL)

	if opts.CaptchaLocator.Name == "" {
		opts.CaptchaLocator = LastImage
	}
	if opts.SecretPrefix == "" {
		opts.SecretPrefix = DefaultSecretPrefix
	}
	return Automaton{
		opts: opts,
		tel:  telemetry.NewScopedAPI("portal", tel),
	}
}

// Session is an authenticated browser page. It must be closed by the caller.
type Session struct {
	AccountID string
	Flow      Flow
	Tracker   *Tracker

	driver    Driver
	cookies   []Cookie
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Driver() Driver {
	return s.driver
}

// Cookies returns the session cookies harvested right after login.
func (s *Session) Cookies() []Cookie {
	return append([]Cookie(nil), s.cookies...)
}

// Close releases the browser, it is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close()
	})
	return s.closeErr
}

type loginRun struct {
	driver Driver
	dir    string
}

func (r loginRun) write(name string, contents []byte) string {
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		return ""
	}
	return path
}

// Login authenticates the credentials and returns a session whose internal
// course platform is open. Every failure is an ErrAuthFailure, unreadable
// captchas are reported as ErrCaptchaFailure.
func (a Automaton) Login(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, span := tracer.Start(ctx, "login:Login")
	defer span.End()

	session, err := a.login(ctx, creds)
	if err != nil {
		if !errors.Is(err, ErrAuthFailure) {
			// cancellation and interrupted pauses
			err = fmt.Errorf("%w: %w", ErrAuthFailure, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("flow", session.Flow.Kind.String()))
	return session, nil
}

func (a Automaton) login(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.AccountID == "" {
		return nil, fmt.Errorf("%w: empty account id", ErrAuthFailure)
	}
	secret := creds.ResolveSecret(a.opts.SecretPrefix)

	dir, err := os.MkdirTemp(a.opts.TempDir, "hwtrack-login-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	driver, err := a.opts.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %w", ErrAuthFailure, err)
	}
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		if err := driver.Close(); err != nil {
			a.tel.ReportDebug("failed to close browser", err)
		}
	}()

	run := loginRun{driver: driver, dir: dir}

	flow, err := a.openLogin(ctx, run)
	if err != nil {
		return nil, err
	}

	switch flow.Kind {
	case FlowCAS:
		err = a.loginCAS(ctx, run, creds.AccountID, secret)
		if err != nil {
			a.tel.ReportWarning(report_login_cas, err)
		}
	default:
		err = a.loginDirect(ctx, run, creds.AccountID, secret)
		if err != nil {
			a.tel.ReportWarning(report_login_direct, err)
		}
	}
	if err != nil {
		return nil, err
	}

	cookies, err := a.establish(ctx, run)
	if err != nil {
		a.tel.ReportWarning(report_login_harvest, err)
		return nil, err
	}

	succeeded = true
	return &Session{
		AccountID: creds.AccountID,
		Flow:      flow,
		Tracker: NewTracker(driver, TrackerOptions{
			Timing:   a.opts.Timing,
			Selector: a.opts.TokenSelector,
			Cookies:  cookies,
		}, a.tel),
		driver:  driver,
		cookies: cookies,
	}, nil
}

func (a Automaton) openLogin(ctx context.Context, run loginRun) (Flow, error) {
	err := a.navigate(ctx, run.driver, a.opts.Endpoints.LoginURL)
	if err != nil {
		return Flow{}, fmt.Errorf("%w: open login page: %w", ErrAuthFailure, err)
	}
	if err := run.driver.WaitNetworkIdle(ctx); err != nil {
		a.tel.ReportDebug("network idle wait failed", err)
	}
	if err := sleep(ctx, a.opts.Timing.LoginSettle); err != nil {
		return Flow{}, err
	}

	screenshot, err := run.driver.PageScreenshot(ctx)
	if err != nil {
		a.tel.ReportDebug(report_login_debug_screenshot, err)
	} else {
		a.tel.ReportDebug(report_login_debug_screenshot, run.write("debug_page.png", screenshot))
	}

	current, err := run.driver.URL(ctx)
	if err != nil {
		return Flow{}, fmt.Errorf("%w: read login url: %w", ErrAuthFailure, err)
	}
	flow := DetectFlow(current, a.opts.Endpoints.CASHost)
	a.tel.ReportDebug("login flow detected", flow.Kind.String(), current)
	return flow, nil
}

// navigate opens the url, giving up after the navigation timeout.
func (a Automaton) navigate(ctx context.Context, driver Driver, url string) error {
	timeout := a.opts.Timing.NavigationTimeout
	if timeout <= 0 {
		timeout = DefaultTiming().NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := driver.Navigate(navCtx, url)
	if err != nil && ctx.Err() == nil && navCtx.Err() != nil {
		return fmt.Errorf("navigation to %s timed out after %s: %w", url, timeout, context.DeadlineExceeded)
	}
	return err
}

func (a Automaton) solveCaptcha(ctx context.Context, run loginRun, image Locator) (captcha.Outcome, error) {
	png, err := run.driver.Screenshot(ctx, image)
	if err != nil {
		return captcha.Outcome{}, fmt.Errorf("%w: screenshot captcha: %w", ErrCaptchaFailure, err)
	}
	run.write("captcha.png", png)

	outcome := a.opts.Solver.Solve(ctx, png)
	a.tel.ReportDebug("captcha solved", outcome.Source.String(), len(outcome.Text))
	return outcome, nil
}

func (a Automaton) loginCAS(ctx context.Context, run loginRun, accountID, secret string) error {
	sel := a.opts.Selectors

	if err := run.driver.Fill(ctx, sel.CASUsername, accountID); err != nil {
		return fmt.Errorf("%w: fill username: %w", ErrAuthFailure, err)
	}
	if err := run.driver.Fill(ctx, sel.CASPassword, secret); err != nil {
		return fmt.Errorf("%w: fill password: %w", ErrAuthFailure, err)
	}

	outcome, err := a.solveCaptcha(ctx, run, sel.CASCaptchaImage)
	if err != nil {
		return err
	}
	if err := run.driver.Fill(ctx, sel.CASCaptchaInput, outcome.Text); err != nil {
		return fmt.Errorf("%w: fill captcha: %w", ErrAuthFailure, err)
	}
	if err := run.driver.Click(ctx, sel.CASSubmit); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrAuthFailure, err)
	}

	origin := hostname(a.opts.Endpoints.LoginURL)
	err = a.waitForHost(ctx, run.driver, origin, a.opts.Timing.CASRedirectTimeout)
	if errors.Is(err, context.DeadlineExceeded) {
		if outcome.Empty() {
			return fmt.Errorf("%w: no redirect to %s after submitting an empty captcha", ErrCaptchaFailure, origin)
		}
		return fmt.Errorf("%w: no redirect to %s within %s", ErrAuthFailure, origin, a.opts.Timing.CASRedirectTimeout)
	}
	return err
}

// waitForHost polls the page URL until its host matches or the timeout elapses.
// An elapsed timeout is reported as context.DeadlineExceeded.
func (a Automaton) waitForHost(ctx context.Context, driver Driver, host string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := a.opts.Timing.URLPollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	for {
		current, err := driver.URL(waitCtx)
		if err == nil && domainMatches(hostname(current), host) {
			return nil
		}
		if err := sleep(waitCtx, interval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return context.DeadlineExceeded
		}
	}
}

func (a Automaton) loginDirect(ctx context.Context, run loginRun, accountID, secret string) error {
	sel := a.opts.Selectors

	if err := run.driver.Fill(ctx, sel.DirectUsername, accountID); err != nil {
		return fmt.Errorf("%w: fill username: %w", ErrAuthFailure, err)
	}
	if err := run.driver.Fill(ctx, sel.DirectPassword, secret); err != nil {
		return fmt.Errorf("%w: fill password: %w", ErrAuthFailure, err)
	}
	if err := sleep(ctx, a.opts.Timing.CaptchaLoad); err != nil {
		return err
	}

	outcome, err := a.solveCaptcha(ctx, run, a.opts.CaptchaLocator.Locator)
	if err != nil {
		return err
	}
	if err := run.driver.Fill(ctx, sel.DirectCaptchaInput, outcome.Text); err != nil {
		return fmt.Errorf("%w: fill captcha: %w", ErrAuthFailure, err)
	}
	if err := run.driver.Click(ctx, sel.DirectSubmit); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrAuthFailure, err)
	}
	return sleep(ctx, a.opts.Timing.DirectSettle)
}

// establish opens the internal course platform and keeps the cookies that belong
// to it or to the academic domain.
func (a Automaton) establish(ctx context.Context, run loginRun) ([]Cookie, error) {
	err := a.navigate(ctx, run.driver, a.opts.Endpoints.SessionURL())
	if err != nil {
		return nil, fmt.Errorf("%w: open course platform: %w", ErrAuthFailure, err)
	}
	if err := run.driver.WaitNetworkIdle(ctx); err != nil {
		a.tel.ReportDebug("network idle wait failed", err)
	}
	if err := sleep(ctx, a.opts.Timing.SessionSettle); err != nil {
		return nil, err
	}

	all, err := run.driver.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read cookies: %w", ErrAuthFailure, err)
	}
	kept := []Cookie{}
	for _, c := range all {
		if a.opts.Endpoints.ownsCookie(c) {
			kept = append(kept, c)
		}
	}
	a.tel.ReportDebug("cookies harvested", len(all), len(kept))
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no session cookies after login", ErrAuthFailure)
	}
	return kept, nil
}
