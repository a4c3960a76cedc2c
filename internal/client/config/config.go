package config

import "time"

// Config holds runtime settings for the remote storage CLI.
//
// Units: SizeLimit is in bytes and inclusive; intervals are time.Duration.
type Config struct {
	APIEndpoint string
	GRPCAddr    string
	// Transport selects the credential channel: "http" or "grpc".
	Transport string

	CacheDir              string
	SizeLimit             int
	StagingRetryInterval  time.Duration
	StagingMaxAttempts    int
	MediaHostPrefix       string
	ResourceCacheCapacity int
	HTTPTimeout           time.Duration
	// IndexDSN is a SQLite file for the upload index; empty keeps it in memory.
	IndexDSN string

	SessionToken    string
	FilesCenterPath string
	MediaCenterPath string
	Verbose         bool
}

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIEndpoint = "http://127.0.0.1:8080"
	c.GRPCAddr = "127.0.0.1:50051"
	c.Transport = TransportHTTP
	c.CacheDir = ".remotestorage"
	c.SizeLimit = 10 << 20
	c.StagingRetryInterval = 500 * time.Millisecond
	c.StagingMaxAttempts = 20
	c.MediaHostPrefix = "media"
	c.ResourceCacheCapacity = 256
	c.HTTPTimeout = 2 * time.Minute
	c.IndexDSN = ""
	c.FilesCenterPath = "/api/credentials/files"
	c.MediaCenterPath = "/api/credentials/media"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the JSON file named by -c/-config in args (if any). Command-line flags are
// applied afterwards by binding the result with BindFlags.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	return cfg
}
