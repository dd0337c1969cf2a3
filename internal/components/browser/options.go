package browser

import (
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

type Options struct {
	Headless bool `json:"headless"`
	// ExecPath overrides the Chrome binary chromedp would otherwise look up.
	ExecPath  string `json:"execPath"`
	UserAgent string `json:"userAgent"`
	// Args are extra Chrome switches, "name" or "name=value", with or without
	// the leading dashes.
	Args         []string `json:"args"`
	WindowWidth  int      `json:"windowWidth"`
	WindowHeight int      `json:"windowHeight"`

	// QuietPeriod is how long the page must go without in-flight requests to
	// count as idle.
	QuietPeriod time.Duration `json:"quietPeriod"`
	// IdleTimeout bounds a single network idle wait.
	IdleTimeout time.Duration `json:"idleTimeout"`
	// ElementTimeout bounds the wait for an element to appear.
	ElementTimeout time.Duration `json:"elementTimeout"`
}

func (o Options) WithDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1280
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 800
	}
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = 500 * time.Millisecond
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 15 * time.Second
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 10 * time.Second
	}
	return o
}

// parseArg splits a Chrome switch into the flag name and its value, true for
// switches without one.
func parseArg(arg string) (string, any) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return name, true
	}
	return name, value
}

// AllocatorOptions translates the options into chromedp allocator options.
func (o Options) AllocatorOptions() []chromedp.ExecAllocatorOption {
	o = o.WithDefaults()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		// cross-origin frames stay in the page process and its frame tree
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
	)
	if !o.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	for _, arg := range o.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}
