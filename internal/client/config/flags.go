package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BindFlags registers the CLI flags on fs with the current values of c as
// defaults, so flags given on the command line override the JSON file.
//
// The -c/--config flag is registered only so it parses; its value is read
// earlier by LoadConfig.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a JSON config file")

	fs.StringVarP(&c.APIEndpoint, "endpoint", "a", c.APIEndpoint, "API endpoint issuing credentials and signatures")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "address of the gRPC credential service")
	fs.StringVar(&c.Transport, "transport", c.Transport, "credential transport: http or grpc")
	fs.StringVar(&c.CacheDir, "cache-dir", c.CacheDir, "disk cache directory")
	fs.IntVar(&c.SizeLimit, "size-limit", c.SizeLimit, "largest accepted upload in bytes")
	fs.DurationVar(&c.StagingRetryInterval, "staging-retry", c.StagingRetryInterval, "interval between staging checks")
	fs.IntVar(&c.StagingMaxAttempts, "staging-attempts", c.StagingMaxAttempts, "staging checks before an upload is dropped")
	fs.StringVar(&c.MediaHostPrefix, "media-prefix", c.MediaHostPrefix, "host prefix of the media storage")
	fs.IntVar(&c.ResourceCacheCapacity, "resource-cache", c.ResourceCacheCapacity, "in-memory resource cache entries")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "timeout of direct storage requests")
	fs.StringVar(&c.IndexDSN, "index", c.IndexDSN, "SQLite file keeping completed uploads")
	fs.StringVarP(&c.SessionToken, "token", "t", c.SessionToken, "session token")
	fs.StringVar(&c.FilesCenterPath, "files-center", c.FilesCenterPath, "credential path of the files storage")
	fs.StringVar(&c.MediaCenterPath, "media-center", c.MediaCenterPath, "credential path of the media storage")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "debug logging")
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportGRPC:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SizeLimit <= 0 {
		return fmt.Errorf("size limit must be positive, got %d", c.SizeLimit)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache dir is required")
	}
	return nil
}
