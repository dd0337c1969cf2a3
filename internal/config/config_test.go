package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hwtrack-backend/internal/portal"

	"github.com/stretchr/testify/require"
	"github.com/titanous/json5"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		input  string
		expect time.Duration
	}{
		{input: `{"d": "1500ms"}`, expect: 1500 * time.Millisecond},
		{input: `{d: '2s'}`, expect: 2 * time.Second},
		{input: `{"d": 250}`, expect: 250 * time.Millisecond},
		{input: `{"d": null}`, expect: 0},
	}
	for _, test := range cases {
		t.Run(test.input, func(t *testing.T) {
			var out struct {
				D Duration `json:"d"`
			}
			require.NoError(t, json5.Unmarshal([]byte(test.input), &out))
			require.Equal(t, test.expect, out.D.Std())
		})
	}

	var out struct {
		D Duration `json:"d"`
	}
	require.Error(t, json5.Unmarshal([]byte(`{"d": "soon"}`), &out))
}

func TestLoadMergesLocal(t *testing.T) {
	dir := t.TempDir()
	base := `{
		// shared settings
		portal: { baseUrl: "HTTP://123.121.147.7:88/ve/", coursePause: "500ms" },
		ocr: { primary: { baseUrl: "http://ocr:8000" } },
		timing: { tokenWarmup: "1s", tokenMaxPolls: 4 },
		refresh: { cron: "0 */6 * * *", accounts: [{ accountId: "22301001" }] },
	}`
	local := `{
		server: { port: 8080 },
		browser: { headless: false },
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hwtrack.json5"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hwtrack.local.json5"), []byte(local), 0o644))

	cfg, err := Load(filepath.Join(dir, "hwtrack.json5"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "http://123.121.147.7:88/ve", cfg.Portal.BaseURL)
	require.Equal(t, 500*time.Millisecond, cfg.Portal.CoursePause.Std())
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.BrowserOptions().Headless)
	require.Equal(t, 24*time.Hour, cfg.Cache.MaxAge.Std())
	require.Equal(t, "cache", cfg.Cache.Dir)

	endpoints := cfg.Endpoints()
	require.Equal(t, portal.DefaultEndpoints().LoginURL, endpoints.LoginURL)
	require.Equal(t, "cas.bjtu.edu.cn", endpoints.CASHost)

	timing := cfg.PortalTiming()
	require.Equal(t, time.Second, timing.TokenWarmup)
	require.Equal(t, 4, timing.TokenMaxPolls)
	require.Equal(t, portal.DefaultTiming().LoginSettle, timing.LoginSettle)
	require.Equal(t, portal.DefaultTiming().TokenStableThreshold, timing.TokenStableThreshold)
}

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "hwtrack.json5"))
	require.NoError(t, err)
	require.Equal(t, 3001, cfg.Server.Port)
	require.True(t, cfg.BrowserOptions().Headless)
	require.Equal(t, portal.DefaultSecretPrefix, cfg.Portal.SecretPrefix)
	require.Equal(t, portal.DefaultRequestTimeout.Milliseconds(), cfg.APIOptions().TimeoutMillis)
	require.Equal(t, portal.DefaultTiming().NavigationTimeout, cfg.PortalTiming().NavigationTimeout)
	require.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Config{Ocr: OcrConfig{Primary: OcrEndpoint{BaseURL: "http://ocr"}}}.WithDefaults()
	require.NoError(t, cfg.Validate())

	withCron := cfg
	withCron.Refresh.Cron = "@hourly"
	require.Error(t, withCron.Validate())

	blank := cfg
	blank.Refresh.Accounts = []Account{{AccountID: " "}}
	require.Error(t, blank.Validate())
}
