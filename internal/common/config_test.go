package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Dirs: DirConfig{
			Input:      "input",
			Output:     "output",
			Duplicates: "duplicates",
			TripSheets: "trip_sheets",
		},
		Vision: VisionConfig{
			APIKey:   "sk-test",
			Model:    "gpt-4o-mini",
			Timeout:  45 * time.Second,
			RetryMax: 1,
		},
		Pipeline: PipelineConfig{
			Workers:          4,
			FallbackInFlight: 3,
			FallbackRPS:      2,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate(true))
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Vision.APIKey = ""

	err := cfg.Validate(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	// A text-only run does not need credentials.
	assert.NoError(t, cfg.Validate(false))
}

func TestValidateMissingInputDir(t *testing.T) {
	cfg := validConfig()
	cfg.Dirs.Input = ""
	assert.ErrorIs(t, cfg.Validate(false), ErrConfig)
}

func TestValidateFallbackBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.FallbackInFlight = 0
	assert.ErrorIs(t, cfg.Validate(false), ErrConfig)

	cfg = validConfig()
	cfg.Vision.RetryMax = 0
	assert.ErrorIs(t, cfg.Validate(false), ErrConfig)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("INVOICE_INPUT_DIR", "")
	t.Setenv("INVOICE_OUTPUT_DIR", "")
	t.Setenv("FALLBACK_RETRY_MAX", "")
	t.Setenv("FALLBACK_IN_FLIGHT", "")

	cfg := LoadConfig()

	assert.Equal(t, "input", cfg.Dirs.Input)
	assert.Equal(t, "output", cfg.Dirs.Output)
	assert.Equal(t, 1, cfg.Vision.RetryMax)
	assert.Equal(t, 3, cfg.Pipeline.FallbackInFlight)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("INVOICE_INPUT_DIR", "/tmp/in")
	t.Setenv("FALLBACK_RETRY_MAX", "3")
	t.Setenv("OPENAI_TIMEOUT", "90s")

	cfg := LoadConfig()

	assert.Equal(t, "/tmp/in", cfg.Dirs.Input)
	assert.Equal(t, 3, cfg.Vision.RetryMax)
	assert.Equal(t, 90*time.Second, cfg.Vision.Timeout)
}
