package portal

import (
	"context"
	"net/url"
	"strings"
	"time"
)

type Endpoints struct {
	// LoginURL is the student login entry point, it may redirect to CAS.
	LoginURL string
	// CASHost is the host of the central authentication service.
	CASHost string
	// BaseURL is the root of the internal course platform API.
	BaseURL string
	// AcademicDomain is the parent domain whose cookies belong to the session.
	AcademicDomain string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		LoginURL:       "https://bksy.bjtu.edu.cn/login_introduce_s.html",
		CASHost:        "cas.bjtu.edu.cn",
		BaseURL:        "http://123.121.147.7:88/ve",
		AcademicDomain: "bjtu.edu.cn",
	}
}

// SessionURL is the course platform index, visiting it establishes the internal session.
func (e Endpoints) SessionURL() string {
	return e.BaseURL + "/back/coursePlatform/coursePlatform.shtml?method=toCoursePlatformIndex"
}

func hostname(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func domainMatches(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ownsCookie reports whether the cookie belongs to the internal API host or the
// academic domain.
func (e Endpoints) ownsCookie(c Cookie) bool {
	domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if domain == hostname(e.BaseURL) {
		return true
	}
	return domainMatches(domain, e.AcademicDomain)
}

type Selectors struct {
	CASUsername     Locator
	CASPassword     Locator
	CASCaptchaImage Locator
	CASCaptchaInput Locator
	CASSubmit       Locator

	DirectUsername     Locator
	DirectPassword     Locator
	DirectCaptchaInput Locator
	DirectSubmit       Locator
}

func DefaultSelectors() Selectors {
	return Selectors{
		CASUsername:     CSS("#id_loginname"),
		CASPassword:     CSS("#id_password"),
		CASCaptchaImage: CSS("img.captcha"),
		CASCaptchaInput: CSS("#id_captcha_1"),
		CASSubmit:       CSS(`button[type="submit"]`),

		DirectUsername:     Placeholder("学号"),
		DirectPassword:     Placeholder("密码"),
		DirectCaptchaInput: Placeholder("验证码"),
		DirectSubmit:       ButtonLabel("登录", "登 录"),
	}
}

// CaptchaLocator is a named strategy for finding the captcha image on the direct
// login page.
type CaptchaLocator struct {
	Name    string
	Locator Locator
}

// LastImage picks the last <img> on the page, the direct login form renders its
// captcha after every decorative image.
var LastImage = CaptchaLocator{Name: "last-image", Locator: CSS("img").LastMatch()}

// Timing holds every fixed wait and polling bound of the login and token protocols.
type Timing struct {
	// NavigationTimeout bounds every page navigation.
	NavigationTimeout  time.Duration
	LoginSettle        time.Duration
	CaptchaLoad        time.Duration
	DirectSettle       time.Duration
	CASRedirectTimeout time.Duration
	URLPollInterval    time.Duration
	SessionSettle      time.Duration

	TokenWarmup          time.Duration
	TokenPollInterval    time.Duration
	TokenStableThreshold int
	TokenMaxPolls        int
}

func DefaultTiming() Timing {
	return Timing{
		NavigationTimeout:  30 * time.Second,
		LoginSettle:        2 * time.Second,
		CaptchaLoad:        time.Second,
		DirectSettle:       3 * time.Second,
		CASRedirectTimeout: 10 * time.Second,
		URLPollInterval:    250 * time.Millisecond,
		SessionSettle:      5 * time.Second,

		TokenWarmup:          5 * time.Second,
		TokenPollInterval:    time.Second,
		TokenStableThreshold: 3,
		TokenMaxPolls:        10,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type FlowKind int

const (
	FlowDirect FlowKind = iota
	FlowCAS
)

func (k FlowKind) String() string {
	if k == FlowCAS {
		return "cas"
	}
	return "direct"
}

// Flow is the login form variant the entry point resolved to.
type Flow struct {
	Kind FlowKind
	URL  string
}

// DetectFlow resolves the page URL reached after opening the login entry point.
func DetectFlow(pageURL, casHost string) Flow {
	host := hostname(pageURL)
	if host == "" {
		if casHost != "" && strings.Contains(strings.ToLower(pageURL), strings.ToLower(casHost)) {
			return Flow{Kind: FlowCAS, URL: pageURL}
		}
		return Flow{Kind: FlowDirect, URL: pageURL}
	}
	if domainMatches(host, casHost) {
		return Flow{Kind: FlowCAS, URL: pageURL}
	}
	return Flow{Kind: FlowDirect, URL: pageURL}
}

const DefaultSecretPrefix = "Bjtu@"

type Credentials struct {
	AccountID string
	Secret    string
}

// ResolveSecret returns the secret, or prefix+AccountID when it is empty.
func (c Credentials) ResolveSecret(prefix string) string {
	if c.Secret != "" {
		return c.Secret
	}
	return prefix + c.AccountID
}
