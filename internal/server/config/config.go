// Package config handles configuration for the development credential
// issuer, including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the issuer.
//
// Fields:
//   - HTTPAddr / MediaAddr / GRPCAddr: bind addresses of the credential API,
//     the media host and the gRPC credential service.
//   - MediaPublicURL: base URL clients use to reach the media host.
//   - MediaRoot: directory holding media uploads.
//   - SecretKey: HMAC secret for session JWTs (HS256). Do not use test defaults in prod.
//   - MediaSignKey: key for media URL signatures.
//   - AccessTokenValidity / SignatureValidity / CredentialValidity: lifetimes.
//   - MaxUploadSize: largest accepted upload in bytes, inclusive.
//   - FileTransferEnabled: feature flag; when off media credentials are refused.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint:
//     S3-compatible backend of the files storage.
type Config struct {
	HTTPAddr            string
	MediaAddr           string
	GRPCAddr            string
	MediaPublicURL      string
	MediaRoot           string
	SecretKey           string
	MediaSignKey        string
	AccessTokenValidity time.Duration
	SignatureValidity   time.Duration
	CredentialValidity  time.Duration
	MaxUploadSize       int64
	FileTransferEnabled bool
	S3RootUser          string
	S3RootPassword      string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.MediaAddr = ":8090"
	c.GRPCAddr = ":50051"
	c.MediaPublicURL = "http://127.0.0.1:8090"
	c.MediaRoot = "media-data"
	c.SecretKey = "secretKey"
	c.MediaSignKey = "mediaSignKey"
	c.AccessTokenValidity = 24 * time.Hour
	c.SignatureValidity = 15 * time.Minute
	c.CredentialValidity = 15 * time.Minute
	c.MaxUploadSize = 10 << 20
	c.FileTransferEnabled = true
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "uploads"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
