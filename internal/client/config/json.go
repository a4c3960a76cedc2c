package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/remotestorage/internal/flagx"
	"github.com/dmitrijs2005/remotestorage/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from a zero value, so a partial file only
// overrides what it names.
type JsonConfig struct {
	APIEndpoint           *string         `json:"api_endpoint"`
	GRPCAddr              *string         `json:"grpc_addr"`
	Transport             *string         `json:"transport"`
	CacheDir              *string         `json:"cache_dir"`
	SizeLimit             *int            `json:"size_limit"`
	StagingRetryInterval  *timex.Duration `json:"staging_retry_interval"`
	StagingMaxAttempts    *int            `json:"staging_max_attempts"`
	MediaHostPrefix       *string         `json:"media_host_prefix"`
	ResourceCacheCapacity *int            `json:"resource_cache_capacity"`
	HTTPTimeout           *timex.Duration `json:"http_timeout"`
	IndexDSN              *string         `json:"index_dsn"`
	SessionToken          *string         `json:"session_token"`
	FilesCenterPath       *string         `json:"files_center_path"`
	MediaCenterPath       *string         `json:"media_center_path"`
}

// parseJson overlays cfg with the JSON file given by -c/-config in args.
// It panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set(&cfg.APIEndpoint, jc.APIEndpoint)
	set(&cfg.GRPCAddr, jc.GRPCAddr)
	set(&cfg.Transport, jc.Transport)
	set(&cfg.CacheDir, jc.CacheDir)
	set(&cfg.SizeLimit, jc.SizeLimit)
	set(&cfg.StagingMaxAttempts, jc.StagingMaxAttempts)
	set(&cfg.MediaHostPrefix, jc.MediaHostPrefix)
	set(&cfg.ResourceCacheCapacity, jc.ResourceCacheCapacity)
	set(&cfg.IndexDSN, jc.IndexDSN)
	set(&cfg.SessionToken, jc.SessionToken)
	set(&cfg.FilesCenterPath, jc.FilesCenterPath)
	set(&cfg.MediaCenterPath, jc.MediaCenterPath)

	if jc.StagingRetryInterval != nil {
		cfg.StagingRetryInterval = jc.StagingRetryInterval.Duration
	}
	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
