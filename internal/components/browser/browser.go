package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/portal"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const (
	report_browser_launch = "browser.launch"
	report_browser_idle   = "browser.idle"
	report_browser_close  = "browser.close"
)

// ErrNoElement is returned when a locator matched nothing before the element timeout.
var ErrNoElement = errors.New("no element matched")

// Launcher starts one Chrome process per session.
type Launcher struct {
	opts Options
	tel  telemetry.API
}

func NewLauncher(opts Options, tel telemetry.API) Launcher {
	assert.NotNil(tel)
	return Launcher{
		opts: opts.WithDefaults(),
		tel:  telemetry.NewScopedAPI("browser", tel),
	}
}

// Launch starts a browser with a single page. The browser lives until the
// returned driver is closed, ctx only bounds the startup.
func (l Launcher) Launch(ctx context.Context) (portal.Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(
		context.WithoutCancel(ctx),
		l.opts.AllocatorOptions()...,
	)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	d := &driver{
		ctx:     pageCtx,
		opts:    l.opts,
		tel:     l.tel,
		tracker: newIdleTracker(),
		cancel: func() {
			cancelPage()
			cancelAlloc()
		},
	}
	d.tracker.listen(pageCtx)

	// the first Run allocates the browser and ties it to the context it is given,
	// so it runs on the page context and ctx only aborts the startup
	abort := context.AfterFunc(ctx, d.cancel)
	err := chromedp.Run(pageCtx, network.Enable())
	if !abort() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		d.cancel()
		l.tel.ReportBroken(report_browser_launch, err)
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.tel.ReportDebug("launched browser", l.opts.Headless)
	return d, nil
}

type driver struct {
	ctx     context.Context
	opts    Options
	tel     telemetry.API
	tracker *idleTracker

	closeOnce sync.Once
	cancel    func()
}

// run executes actions on the page, aborting when either ctx or the page ends.
func (d *driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *driver) WaitNetworkIdle(ctx context.Context) error {
	ok, err := d.tracker.wait(ctx, d.opts.QuietPeriod, d.opts.IdleTimeout)
	if err != nil {
		return err
	}
	if !ok {
		// some pages keep polling forever, carry on with whatever has loaded
		d.tel.ReportWarning(report_browser_idle, d.opts.IdleTimeout.String())
	}
	return nil
}

func (d *driver) URL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// resolve waits for the locator to match and returns the chosen node.
func (d *driver) resolve(ctx context.Context, loc portal.Locator) ([]cdp.NodeID, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.ElementTimeout)
	defer cancel()

	by := chromedp.ByQueryAll
	if loc.Kind == portal.ByXPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(loc.Query, &nodes, by))
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, loc)
	}
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, loc)
	}

	node := nodes[0]
	if loc.Last {
		node = nodes[len(nodes)-1]
	}
	return []cdp.NodeID{node.NodeID}, nil
}

func (d *driver) Fill(ctx context.Context, loc portal.Locator, value string) error {
	ids, err := d.resolve(ctx, loc)
	if err != nil {
		return err
	}
	return d.run(
		ctx,
		chromedp.Focus(ids, chromedp.ByNodeID),
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, value, chromedp.ByNodeID),
	)
}

func (d *driver) Click(ctx context.Context, loc portal.Locator) error {
	ids, err := d.resolve(ctx, loc)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.Click(ids, chromedp.ByNodeID))
}

func (d *driver) Screenshot(ctx context.Context, loc portal.Locator) ([]byte, error) {
	ids, err := d.resolve(ctx, loc)
	if err != nil {
		return nil, err
	}
	var buf []byte
	err = d.run(ctx, chromedp.Screenshot(ids, &buf, chromedp.ByNodeID))
	return buf, err
}

func (d *driver) PageScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (d *driver) DocumentHTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// frameScript reads the markup of the document it runs in.
const frameScript = `document.documentElement ? document.documentElement.outerHTML : ""`

// childFrames lists every frame below the root, depth first.
func childFrames(tree *page.FrameTree) []cdp.FrameID {
	var ids []cdp.FrameID
	for _, child := range tree.ChildFrames {
		if child.Frame != nil {
			ids = append(ids, child.Frame.ID)
		}
		ids = append(ids, childFrames(child)...)
	}
	return ids
}

// FrameDocuments evaluates frameScript in an isolated world of every child
// frame, which reaches cross-origin frames too. Frames that cannot be read
// are skipped.
func (d *driver) FrameDocuments(ctx context.Context) ([]string, error) {
	var docs []string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		for _, id := range childFrames(tree) {
			doc, err := frameDocument(ctx, id)
			if err != nil {
				d.tel.ReportDebug("skipped frame", id, err)
				continue
			}
			if doc != "" {
				docs = append(docs, doc)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func frameDocument(ctx context.Context, id cdp.FrameID) (string, error) {
	world, err := page.CreateIsolatedWorld(id).WithWorldName("hwtrack-frames").Do(ctx)
	if err != nil {
		return "", err
	}
	result, exception, err := runtime.Evaluate(frameScript).
		WithContextID(world).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return "", err
	}
	if exception != nil {
		return "", exception
	}
	var doc string
	if err := json.Unmarshal([]byte(result.Value), &doc); err != nil {
		return "", err
	}
	return doc, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (d *driver) Evaluate(ctx context.Context, expression string, out any) error {
	return d.run(ctx, chromedp.Evaluate(expression, out, awaitPromise))
}

func (d *driver) Cookies(ctx context.Context) ([]portal.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]portal.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, portal.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out, nil
}

func (d *driver) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.tel.ReportDebug(report_browser_close)
	})
	return nil
}
