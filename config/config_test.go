package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"API_KEY", "API_SECRET", "API_SYMBOL", "API_QTY", "API_EDGE_BPS", "API_TICK_SIZE", "API_REQUOTE_BPS"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"key":"k1","secret":"s1","symbol":"btcusdt","qty":"0.001","tick_size":"0.5"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "k1", cfg.Key)
	assert.Equal(t, "s1", cfg.Secret)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.True(t, cfg.Qty.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, cfg.TickSize.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(10), cfg.EdgeBps)
	assert.True(t, cfg.RequoteBps.IsZero())
	assert.Equal(t, DefaultRestURL, cfg.RestURL)
	assert.Equal(t, DefaultWSURL, cfg.WSURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Refresh)
	assert.Equal(t, 20*time.Second, cfg.PingInterval)
	assert.Equal(t, "orderbook.1.BTCUSDT", cfg.Topic())
}

func TestEnvironmentOverlay(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"key":"file-key","secret":"s1","symbol":"BTCUSDT","qty":"0.001"}`)
	t.Setenv("API_KEY", "env-key")
	t.Setenv("API_EDGE_BPS", "25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Key)
	assert.Equal(t, int64(25), cfg.EdgeBps)
}

func TestEnvironmentOnly(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("API_KEY", "k")
	t.Setenv("API_SECRET", "s")
	t.Setenv("API_SYMBOL", "ETHUSDT")
	t.Setenv("API_QTY", "0.01")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.True(t, cfg.TickSize.IsZero())
}

func TestMissingFieldsAreFatal(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"symbol":"BTCUSDT","qty":"1"}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "key")
	assert.Contains(t, err.Error(), "secret")
	assert.NotContains(t, err.Error(), "symbol")
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"zero qty":     `{"key":"k","secret":"s","symbol":"BTCUSDT","qty":"0"}`,
		"bad qty":      `{"key":"k","secret":"s","symbol":"BTCUSDT","qty":"abc"}`,
		"negative bps": `{"key":"k","secret":"s","symbol":"BTCUSDT","qty":"1","requote_bps":"-1"}`,
		"edge range":   `{"key":"k","secret":"s","symbol":"BTCUSDT","qty":"1","edge_bps":10000}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLogValueRedactsCredentials(t *testing.T) {
	cfg := Config{Key: "very-secret-key", Secret: "very-secret", Symbol: "BTCUSDT"}
	out := cfg.LogValue().String()
	assert.NotContains(t, out, "very-secret")
	assert.Contains(t, out, "BTCUSDT")
}
