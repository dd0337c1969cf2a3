package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"hwtrack-backend/internal/cache"
	"hwtrack-backend/internal/captcha"
	"hwtrack-backend/internal/components/browser"
	"hwtrack-backend/internal/portal"
	"hwtrack-backend/lib/configutil"
	"hwtrack-backend/lib/telemetry"

	"github.com/PuerkitoBio/purell"
)

// FileName is the config file looked up from the working directory upwards,
// hwtrack.local.json5 next to it overrides it.
const FileName = "hwtrack.json5"

type PortalConfig struct {
	LoginURL       string `json:"loginUrl"`
	CASHost        string `json:"casHost"`
	BaseURL        string `json:"baseUrl"`
	AcademicDomain string `json:"academicDomain"`
	SecretPrefix   string `json:"secretPrefix"`

	RequestsPerSecond float64  `json:"requestsPerSecond"`
	RequestTimeout    Duration `json:"requestTimeout"`
	// CoursePause is waited before querying each course.
	CoursePause Duration `json:"coursePause"`
	// TempDir holds the per-login scratch directories.
	TempDir string `json:"tempDir"`
}

type TimingConfig struct {
	NavigationTimeout  Duration `json:"navigationTimeout"`
	LoginSettle        Duration `json:"loginSettle"`
	CaptchaLoad        Duration `json:"captchaLoad"`
	DirectSettle       Duration `json:"directSettle"`
	CASRedirectTimeout Duration `json:"casRedirectTimeout"`
	URLPollInterval    Duration `json:"urlPollInterval"`
	SessionSettle      Duration `json:"sessionSettle"`

	TokenWarmup          Duration `json:"tokenWarmup"`
	TokenPollInterval    Duration `json:"tokenPollInterval"`
	TokenStableThreshold int      `json:"tokenStableThreshold"`
	TokenMaxPolls        int      `json:"tokenMaxPolls"`
}

type BrowserConfig struct {
	// Headless defaults to true.
	Headless       *bool    `json:"headless"`
	ExecPath       string   `json:"execPath"`
	UserAgent      string   `json:"userAgent"`
	Args           []string `json:"args"`
	QuietPeriod    Duration `json:"quietPeriod"`
	IdleTimeout    Duration `json:"idleTimeout"`
	ElementTimeout Duration `json:"elementTimeout"`
}

type OcrEndpoint struct {
	BaseURL string   `json:"baseUrl"`
	Charset string   `json:"charset"`
	Timeout  Duration  `json:"timeout"`
}

type OcrConfig struct {
	Primary OcrEndpoint `json:"primary"`
	// Fallback is optional, its output is restricted to letters and digits.
	Fallback OcrEndpoint `json:"fallback"`
}

type CacheConfig struct {
	Dir    string   `json:"dir"`
	MaxAge Duration `json:"maxAge"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type Account struct {
	AccountID string `json:"accountId"`
	// Secret is optional, the derived default password is used when empty.
	Secret string `json:"secret"`
}

type RefreshConfig struct {
	// Cron is a robfig/cron spec, empty disables scheduled refreshes.
	Cron     string    `json:"cron"`
	Accounts []Account `json:"accounts"`
	// Timeout bounds one login and aggregation run, 0 means 5m.
	Timeout  Duration  `json:"timeout"`
}

type RunLogConfig struct {
	// Dsn is a sqlite file path or a libsql url, empty disables the run log.
	Dsn string `json:"dsn"`
}

type Config struct {
	Timezone string              `json:"timezone"`
	Portal   PortalConfig        `json:"portal"`
	Timing   TimingConfig        `json:"timing"`
	Browser  BrowserConfig       `json:"browser"`
	Ocr      OcrConfig           `json:"ocr"`
	Cache    CacheConfig         `json:"cache"`
	Server   ServerConfig        `json:"server"`
	Log      telemetry.LogConfig `json:"log"`
	Refresh  RefreshConfig       `json:"refresh"`
	RunLog   RunLogConfig        `json:"runLog"`
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	normalized, err := purell.NormalizeURLString(
		raw,
		purell.FlagsSafe|purell.FlagRemoveDotSegments|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveFragment,
	)
	if err != nil {
		return raw
	}
	return normalized
}

func (c Config) WithDefaults() Config {
	endpoints := portal.DefaultEndpoints()
	if c.Portal.LoginURL == "" {
		c.Portal.LoginURL = endpoints.LoginURL
	}
	if c.Portal.CASHost == "" {
		c.Portal.CASHost = endpoints.CASHost
	}
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = endpoints.BaseURL
	}
	if c.Portal.AcademicDomain == "" {
		c.Portal.AcademicDomain = endpoints.AcademicDomain
	}
	if c.Portal.SecretPrefix == "" {
		c.Portal.SecretPrefix = portal.DefaultSecretPrefix
	}
	if c.Portal.RequestTimeout == 0 {
		c.Portal.RequestTimeout = Duration(portal.DefaultRequestTimeout)
	}
	if c.Portal.CoursePause == 0 {
		c.Portal.CoursePause = Duration(2 * time.Second)
	}
	c.Portal.LoginURL = normalizeURL(c.Portal.LoginURL)
	c.Portal.BaseURL = strings.TrimSuffix(normalizeURL(c.Portal.BaseURL), "/")
	c.Portal.CASHost = strings.ToLower(c.Portal.CASHost)

	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}

	c.Ocr.Primary.BaseURL = normalizeURL(c.Ocr.Primary.BaseURL)
	c.Ocr.Fallback.BaseURL = normalizeURL(c.Ocr.Fallback.BaseURL)

	if c.Cache.Dir == "" {
		c.Cache.Dir = "cache"
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = Duration(cache.DefaultMaxAge)
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

func (c Config) Validate() error {
	if c.Ocr.Primary.BaseURL == "" {
		return fmt.Errorf("ocr.primary.baseUrl is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	for i, a := range c.Refresh.Accounts {
		if strings.TrimSpace(a.AccountID) == "" {
			return fmt.Errorf("refresh.accounts[%d] has no accountId", i)
		}
	}
	if c.Refresh.Cron != "" && len(c.Refresh.Accounts) == 0 {
		return fmt.Errorf("refresh.cron is set but refresh.accounts is empty")
	}
	return nil
}

// Load reads the config at path, or looks FileName up from the working
// directory when path is empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if path == "" {
		cfg, err = configutil.ReadRecursively[Config](FileName)
	} else {
		cfg, err = configutil.ReadConfig[Config](path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return Config{}.WithDefaults(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Endpoints() portal.Endpoints {
	return portal.Endpoints{
		LoginURL:       c.Portal.LoginURL,
		CASHost:        c.Portal.CASHost,
		BaseURL:        c.Portal.BaseURL,
		AcademicDomain: c.Portal.AcademicDomain,
	}
}

func (c Config) PortalTiming() portal.Timing {
	d := portal.DefaultTiming()
	t := c.Timing

	out := portal.Timing{
		NavigationTimeout:    t.NavigationTimeout.or(d.NavigationTimeout),
		LoginSettle:          t.LoginSettle.or(d.LoginSettle),
		CaptchaLoad:          t.CaptchaLoad.or(d.CaptchaLoad),
		DirectSettle:         t.DirectSettle.or(d.DirectSettle),
		CASRedirectTimeout:   t.CASRedirectTimeout.or(d.CASRedirectTimeout),
		URLPollInterval:      t.URLPollInterval.or(d.URLPollInterval),
		SessionSettle:        t.SessionSettle.or(d.SessionSettle),
		TokenWarmup:          t.TokenWarmup.or(d.TokenWarmup),
		TokenPollInterval:    t.TokenPollInterval.or(d.TokenPollInterval),
		TokenStableThreshold: t.TokenStableThreshold,
		TokenMaxPolls:        t.TokenMaxPolls,
	}
	if out.TokenStableThreshold <= 0 {
		out.TokenStableThreshold = d.TokenStableThreshold
	}
	if out.TokenMaxPolls <= 0 {
		out.TokenMaxPolls = d.TokenMaxPolls
	}
	return out
}

func (c Config) APIOptions() portal.APIOptions {
	return portal.APIOptions{
		RequestsPerSecond: c.Portal.RequestsPerSecond,
		TimeoutMillis:     c.Portal.RequestTimeout.Std().Milliseconds(),
	}
}

func (c Config) BrowserOptions() browser.Options {
	headless := true
	if c.Browser.Headless != nil {
		headless = *c.Browser.Headless
	}
	return browser.Options{
		Headless:       headless,
		ExecPath:       c.Browser.ExecPath,
		UserAgent:      c.Browser.UserAgent,
		Args:           c.Browser.Args,
		QuietPeriod:    c.Browser.QuietPeriod.Std(),
		IdleTimeout:    c.Browser.IdleTimeout.Std(),
		ElementTimeout: c.Browser.ElementTimeout.Std(),
	}.WithDefaults()
}

func (e OcrEndpoint) Options() captcha.OcrOptions {
	return captcha.OcrOptions{
		BaseURL: e.BaseURL,
		Charset: e.Charset,
		Timeout: e.Timeout.Std(),
	}
}
