package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-m", ":9091", "-g", ":9092", "-l", "http://media.local",
			"-o", "/srv/media", "-s", "secret", "-k", "mediakey", "-t", "1", "-w", "3", "-x", "2048", "-f=false",
			"-u", "user", "-p", "password", "-b", "bucket", "-r", "us-west-1", "-e", "http://endpoint",
		}, expected: &Config{
			HTTPAddr:            "127.0.0.1:9090",
			MediaAddr:           ":9091",
			GRPCAddr:            ":9092",
			MediaPublicURL:      "http://media.local",
			MediaRoot:           "/srv/media",
			SecretKey:           "secret",
			MediaSignKey:        "mediakey",
			AccessTokenValidity: 1 * time.Minute,
			SignatureValidity:   3 * time.Minute,
			MaxUploadSize:       2048,
			FileTransferEnabled: false,
			S3RootUser:          "user",
			S3RootPassword:      "password",
			S3Bucket:            "bucket",
			S3Region:            "us-west-1",
			S3BaseEndpoint:      "http://endpoint",
		}},
		{name: "unrelated flags are ignored", args: []string{"cmd", "-test.v", "-q", "1", "-a", ":1"},
			expected: &Config{HTTPAddr: ":1"}},
		{name: "malformed number panics", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
