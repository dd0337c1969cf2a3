package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/lib/htmlutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_tracker_discover  = "tracker.discover"
	report_tracker_frames    = "tracker.frames"
	report_tracker_fallback  = "tracker.fallback"
	report_tracker_stabilize = "tracker.stabilize"
)

type TrackerOptions struct {
	Timing Timing
	// Selector defaults to LastMatch.
	Selector Selector
	// Cookies harvested at login, consulted by the fallback chain.
	Cookies []Cookie
}

// Tracker discovers the session token embedded in the portal's page scripts and
// keeps the most recent one.
type Tracker struct {
	driver   Driver
	timing   Timing
	selector Selector
	cookies  []Cookie
	tel      telemetry.API

	documentMatcher Matcher
	frameMatcher    func(script string) string
	looseMatcher    func(script string) string

	mutex sync.Mutex
	token string
}

func NewTracker(driver Driver, opts TrackerOptions, tel telemetry.API) *Tracker {
	assert.NotNil(driver)
	assert.NotNil(tel)
	assert.PositiveDuration(opts.Timing.TokenPollInterval)
	assert.PositiveInt(opts.Timing.TokenStableThreshold)
	assert.PositiveInt(opts.Timing.TokenMaxPolls)

	selector := opts.Selector
	if selector == nil {
		selector = LastMatch
	}
	return &Tracker{
		driver:   driver,
		timing:   opts.Timing,
		selector: selector,
		cookies:  opts.Cookies,
		tel:      tel,

		documentMatcher: Union(DocumentMatchers...),
		frameMatcher:    First(FrameMatchers...),
		looseMatcher:    First(HeaderSet, LooseAssign),
	}
}

// Token returns the most recently discovered token, empty if none was found yet.
func (t *Tracker) Token() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.token
}

func (t *Tracker) set(token string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.token = token
}

// Discover scans the main document and then child frames for a token. It returns
// an empty string when nothing is found, errors only come from reading the main
// document.
func (t *Tracker) Discover(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "tracker:Discover")
	defer span.End()

	document, err := t.driver.DocumentHTML(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read document")
		return "", fmt.Errorf("read document: %w", err)
	}
	scripts, err := htmlutil.InlineScripts(ctx, document)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}

	candidates := collectCandidates(scripts, t.documentMatcher)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	if len(candidates) > 0 {
		if len(candidates) > 1 {
			t.tel.ReportDebug("multiple token candidates", len(candidates))
		}
		return t.selector(candidates), nil
	}

	return t.discoverInFrames(ctx), nil
}

func (t *Tracker) discoverInFrames(ctx context.Context) string {
	frames, err := t.driver.FrameDocuments(ctx)
	if err != nil {
		t.tel.ReportDebug(report_tracker_frames, err)
		return ""
	}
	for _, frame := range frames {
		scripts, err := htmlutil.InlineScripts(ctx, frame)
		if err != nil {
			continue
		}
		for _, script := range scripts {
			if !strings.Contains(script, TokenKey) {
				continue
			}
			if found := t.frameMatcher(script); found != "" {
				return found
			}
		}
	}
	return ""
}

// Refresh rediscovers the token and returns the one to use for the next call.
// When nothing is found and no token is held, the fallback chain runs once.
func (t *Tracker) Refresh(ctx context.Context) string {
	found, err := t.Discover(ctx)
	if err != nil {
		t.tel.ReportWarning(report_tracker_discover, err)
	}
	if found != "" {
		t.set(found)
		return found
	}

	if held := t.Token(); held != "" {
		return held
	}
	if fallback := t.fallback(ctx); fallback != "" {
		t.set(fallback)
		return fallback
	}
	return ""
}

// Stabilize waits for the page scripts to settle and polls until the same token
// is observed TokenStableThreshold times in a row or TokenMaxPolls is reached.
// Without any token it runs the fallback chain and fails with
// ErrSessionTokenUnavailable if that is empty too.
func (t *Tracker) Stabilize(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "tracker:Stabilize")
	defer span.End()

	err := sleep(ctx, t.timing.TokenWarmup)
	if err != nil {
		return "", err
	}
	if err := t.driver.WaitNetworkIdle(ctx); err != nil {
		t.tel.ReportDebug("network idle wait failed", err)
	}

	previous := ""
	stable := 0
	polls := 0
	for polls < t.timing.TokenMaxPolls {
		if err := sleep(ctx, t.timing.TokenPollInterval); err != nil {
			return "", err
		}
		polls++

		found, err := t.Discover(ctx)
		if err != nil {
			t.tel.ReportWarning(report_tracker_discover, err)
		}
		if found != "" {
			t.set(found)
		}

		current := t.Token()
		if current == previous {
			stable++
			if stable >= t.timing.TokenStableThreshold {
				break
			}
			continue
		}
		previous = current
		stable = 0
	}
	t.tel.ReportCount(report_tracker_stabilize, int64(polls))
	span.SetAttributes(attribute.Int("polls", polls))

	if token := t.Token(); token != "" {
		return token, nil
	}

	fallback := t.fallback(ctx)
	if fallback == "" {
		span.SetStatus(codes.Error, "no token")
		return "", ErrSessionTokenUnavailable
	}
	t.set(fallback)
	return fallback, nil
}

const storageScript = `(() => {
	const valid = (v) => typeof v === "string" && /^[A-F0-9]{32}$/i.test(v);
	const stores = [];
	try { stores.push(window.localStorage); } catch (e) {}
	try { stores.push(window.sessionStorage); } catch (e) {}
	for (const store of stores) {
		const direct = store.getItem("sessionId");
		if (valid(direct)) return direct;
	}
	for (const store of stores) {
		for (let i = 0; i < store.length; i++) {
			const value = store.getItem(store.key(i));
			if (valid(value)) return value;
		}
	}
	return "";
})()`

// fallback tries, in order, browser storage, the login cookies, the page URL and
// a loose scan of every script on the page.
func (t *Tracker) fallback(ctx context.Context) string {
	ctx, span := tracer.Start(ctx, "tracker:fallback")
	defer span.End()

	strategies := []struct {
		name string
		run  func(ctx context.Context) string
	}{
		{name: "storage", run: t.fromStorage},
		{name: "cookie", run: t.fromCookies},
		{name: "url", run: t.fromURL},
		{name: "heuristic", run: t.fromHeuristic},
	}
	for _, s := range strategies {
		if token := s.run(ctx); ValidToken(token) {
			span.SetAttributes(attribute.String("strategy", s.name))
			t.tel.ReportDebug("token recovered by fallback", s.name)
			return token
		}
	}

	t.tel.ReportWarning(report_tracker_fallback, ErrSessionTokenUnavailable)
	return ""
}

func (t *Tracker) fromStorage(ctx context.Context) string {
	var token string
	err := t.driver.Evaluate(ctx, storageScript, &token)
	if err != nil {
		t.tel.ReportDebug("storage scan failed", err)
		return ""
	}
	return token
}

func (t *Tracker) fromCookies(context.Context) string {
	for _, c := range t.cookies {
		if c.Name == TokenKey && ValidToken(c.Value) {
			return c.Value
		}
	}
	for _, c := range t.cookies {
		if strings.Contains(strings.ToLower(c.Name), "session") && ValidToken(c.Value) {
			return c.Value
		}
	}
	return ""
}

func (t *Tracker) fromURL(ctx context.Context) string {
	current, err := t.driver.URL(ctx)
	if err != nil {
		return ""
	}
	parsed, err := url.Parse(current)
	if err != nil {
		return ""
	}
	for key, values := range parsed.Query() {
		if !strings.EqualFold(key, TokenKey) {
			continue
		}
		for _, v := range values {
			if ValidToken(v) {
				return v
			}
		}
	}
	return ""
}

func (t *Tracker) fromHeuristic(ctx context.Context) string {
	document, err := t.driver.DocumentHTML(ctx)
	if err != nil {
		return ""
	}
	scripts, err := htmlutil.InlineScripts(ctx, document)
	if err != nil {
		return ""
	}
	for _, script := range scripts {
		if found := t.looseMatcher(script); found != "" {
			return found
		}
	}
	return ""
}
