package portal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// fakeDriver is an in-memory page. Navigate and Click move the page to the
// configured URLs, DocumentHTML walks through documents and repeats the last one.
type fakeDriver struct {
	mutex sync.Mutex

	url        string
	redirects  map[string]string
	afterClick map[string]string

	documents    []string
	documentIdx  int
	documentHits int
	frames       []string
	framesErr    error

	evaluate func(expression string, out any) error
	cookies  []Cookie

	fills       map[string]string
	clicks      []string
	screenshots []string
	navigations []string
	closed      bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		redirects:  map[string]string{},
		afterClick: map[string]string{},
		fills:      map[string]string{},
	}
}

var errNoElement = errors.New("no element")

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.navigations = append(d.navigations, url)
	if target, ok := d.redirects[url]; ok {
		d.url = target
		return nil
	}
	d.url = url
	return nil
}

func (d *fakeDriver) WaitNetworkIdle(context.Context) error {
	return nil
}

func (d *fakeDriver) URL(context.Context) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.url, nil
}

func (d *fakeDriver) Fill(_ context.Context, loc Locator, value string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fills[loc.String()] = value
	return nil
}

func (d *fakeDriver) Click(_ context.Context, loc Locator) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.clicks = append(d.clicks, loc.String())
	if target, ok := d.afterClick[loc.String()]; ok {
		d.url = target
	}
	return nil
}

func (d *fakeDriver) Screenshot(_ context.Context, loc Locator) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.screenshots = append(d.screenshots, loc.String())
	return []byte("captcha-png"), nil
}

func (d *fakeDriver) PageScreenshot(context.Context) ([]byte, error) {
	return []byte("page-png"), nil
}

func (d *fakeDriver) DocumentHTML(context.Context) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.documentHits++
	if len(d.documents) == 0 {
		return "<html></html>", nil
	}
	doc := d.documents[d.documentIdx]
	if d.documentIdx < len(d.documents)-1 {
		d.documentIdx++
	}
	return doc, nil
}

func (d *fakeDriver) FrameDocuments(context.Context) ([]string, error) {
	return d.frames, d.framesErr
}

func (d *fakeDriver) Evaluate(_ context.Context, expression string, out any) error {
	if d.evaluate == nil {
		return errors.New("evaluate not supported")
	}
	return d.evaluate(expression, out)
}

func (d *fakeDriver) Cookies(context.Context) ([]Cookie, error) {
	return d.cookies, nil
}

func (d *fakeDriver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.closed
}

// hangingDriver is a page that never finishes loading, Navigate and Evaluate
// return only once ctx ends.
type hangingDriver struct {
	*fakeDriver
}

func (d hangingDriver) Navigate(ctx context.Context, url string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d hangingDriver) Evaluate(ctx context.Context, expression string, out any) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeLauncher struct {
	driver Driver
	err    error
}

func (l fakeLauncher) Launch(context.Context) (Driver, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

// setJSON stores v into out the way a JSON round trip through the page would.
func setJSON(out any, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// parseXhrArgs recovers the arguments embedded into xhrScript.
func parseXhrArgs(expression string) (xhrArgs, error) {
	const marker = "const args = "
	start := strings.Index(expression, marker)
	if start < 0 {
		return xhrArgs{}, errors.New("not an xhr script")
	}
	rest := expression[start+len(marker):]
	end := strings.Index(rest, ";\n")
	if end < 0 {
		return xhrArgs{}, errors.New("unterminated args")
	}
	var args xhrArgs
	err := json.Unmarshal([]byte(rest[:end]), &args)
	return args, err
}

func testTiming() Timing {
	return Timing{
		CASRedirectTimeout:   30 * time.Millisecond,
		URLPollInterval:      time.Millisecond,
		TokenPollInterval:    time.Millisecond,
		TokenStableThreshold: 3,
		TokenMaxPolls:        10,
	}
}

func scriptDoc(scripts ...string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	for _, s := range scripts {
		b.WriteString("<script>")
		b.WriteString(s)
		b.WriteString("</script>")
	}
	b.WriteString("</head><body></body></html>")
	return b.String()
}
