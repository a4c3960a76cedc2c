package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.APIEndpoint)
	assert.Equal(t, TransportHTTP, c.Transport)
	assert.Equal(t, 10<<20, c.SizeLimit)
	assert.Equal(t, 500*time.Millisecond, c.StagingRetryInterval)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg := LoadConfig([]string{"upload", "a.txt"})

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	var want Config
	want.LoadDefaults()
	assert.Empty(t, cmp.Diff(&want, cfg))
}

func TestBindFlags_OverridesLoadedValues(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.CacheDir = "/from/json"

	fs := pflag.NewFlagSet("rsctl", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-c", "ignored.json",
		"--transport", "grpc",
		"--size-limit", "1024",
		"--staging-retry", "2s",
		"-t", "tok",
		"-v",
	}))

	want := &Config{}
	want.LoadDefaults()
	want.CacheDir = "/from/json"
	want.Transport = TransportGRPC
	want.SizeLimit = 1024
	want.StagingRetryInterval = 2 * time.Second
	want.SessionToken = "tok"
	want.Verbose = true

	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "transport", mutate: func(c *Config) { c.Transport = "carrier-pigeon" }},
		{name: "size limit", mutate: func(c *Config) { c.SizeLimit = 0 }},
		{name: "cache dir", mutate: func(c *Config) { c.CacheDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
