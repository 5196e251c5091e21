package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "USD", cfg.Display.FiatCurrency)
	assert.Equal(t, 31*time.Second, cfg.Quotes.MaxRefreshCap.Std())
	assert.Equal(t, 5*time.Second, cfg.Quotes.RefreshThreshold.Std())
	require.Len(t, cfg.Networks.ETH.Tokens, 1)
	assert.Equal(t, "USDC", cfg.Networks.ETH.Tokens[0].Symbol)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
display:
  fiat_currency: EUR
fees:
  fallback_sats_per_byte: 5
quotes:
  refresh_threshold: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EUR", cfg.Display.FiatCurrency)
	assert.Equal(t, uint64(5), cfg.Fees.FallbackSatsPerByte)
	assert.Equal(t, 10*time.Second, cfg.Quotes.RefreshThreshold.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, 31*time.Second, cfg.Quotes.MaxRefreshCap.Std())
	assert.Equal(t, uint64(2000), cfg.Fees.MaxSatsPerByte)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fees: ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("fallback above max", func(t *testing.T) {
		cfg := Defaults()
		cfg.Fees.FallbackSatsPerByte = 5000
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero refresh cap", func(t *testing.T) {
		cfg := Defaults()
		cfg.Quotes.MaxRefreshCap = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("no retry budget", func(t *testing.T) {
		cfg := Defaults()
		cfg.Quotes.RetryAttempts = 0
		assert.Error(t, cfg.Validate())
	})
}
