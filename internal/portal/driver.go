package portal

import (
	"context"
	"fmt"
	"strings"
)

type LocatorKind int

const (
	ByCSS LocatorKind = iota
	ByXPath
)

// Locator identifies an element on the current page.
type Locator struct {
	Kind  LocatorKind
	Query string
	// Last selects the last matching element instead of the first one.
	Last bool
}

func CSS(query string) Locator {
	return Locator{Kind: ByCSS, Query: query}
}

func XPath(query string) Locator {
	return Locator{Kind: ByXPath, Query: query}
}

// LastMatch returns a copy of the locator that selects the last match.
func (l Locator) LastMatch() Locator {
	l.Last = true
	return l
}

func (l Locator) String() string {
	position := "first"
	if l.Last {
		position = "last"
	}
	kind := "css"
	if l.Kind == ByXPath {
		kind = "xpath"
	}
	return fmt.Sprintf("%s(%s)[%s]", kind, l.Query, position)
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}

// Placeholder locates the input whose placeholder contains text.
func Placeholder(text string) Locator {
	return XPath(fmt.Sprintf(`//input[contains(@placeholder, %s)]`, xpathLiteral(text)))
}

// ButtonLabel locates a button (or submit input) whose label contains any of labels.
func ButtonLabel(labels ...string) Locator {
	textConds := make([]string, len(labels))
	valueConds := make([]string, len(labels))
	for i, l := range labels {
		textConds[i] = fmt.Sprintf("contains(normalize-space(.), %s)", xpathLiteral(l))
		valueConds[i] = fmt.Sprintf("contains(@value, %s)", xpathLiteral(l))
	}
	return XPath(fmt.Sprintf(
		`//button[%s] | //input[@type="submit" and (%s)]`,
		strings.Join(textConds, " or "),
		strings.Join(valueConds, " or "),
	))
}

type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Driver is a live browser page. Every method acts on the single page the driver owns.
//
// note: fault injection point
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitNetworkIdle blocks until the page has had no in-flight requests for the
	// driver's quiet period.
	WaitNetworkIdle(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Fill(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error
	Screenshot(ctx context.Context, loc Locator) ([]byte, error)
	PageScreenshot(ctx context.Context) ([]byte, error)
	DocumentHTML(ctx context.Context) (string, error)
	// FrameDocuments returns the markup of every accessible child frame, inaccessible
	// frames are skipped.
	FrameDocuments(ctx context.Context) ([]string, error)
	// Evaluate runs the expression in the page, awaiting it if it is a promise, and
	// decodes the JSON result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	// Cookies returns the cookies of every domain the browser holds.
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}
