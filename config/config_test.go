package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyListenAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ListenAddress = ""

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveSerialTunables(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"poll interval", func(c *Config) { c.Serial.PollIntervalMs = 0 }},
		{"ring capacity", func(c *Config) { c.Serial.RingCapacity = 0 }},
		{"max frame length", func(c *Config) { c.Serial.MaxFrameLength = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"

	require.Error(t, cfg.Validate())
}

func TestDefaultConfigPathsAreNonEmpty(t *testing.T) {
	assert.NotEmpty(t, DefaultConfigPath())
}
