package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/remotestorage/internal/flagx"
	"github.com/dmitrijs2005/remotestorage/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Durations use timex.Duration, so both "15m" and integer nanoseconds
// are accepted. After unmarshalling, its fields are copied into Config.
type JsonConfig struct {
	HTTPAddr            string         `json:"http_addr"`
	MediaAddr           string         `json:"media_addr"`
	GRPCAddr            string         `json:"grpc_addr"`
	MediaPublicURL      string         `json:"media_public_url"`
	MediaRoot           string         `json:"media_root"`
	SecretKey           string         `json:"secret_key"`
	MediaSignKey        string         `json:"media_sign_key"`
	AccessTokenValidity timex.Duration `json:"access_token_validity"`
	SignatureValidity   timex.Duration `json:"signature_validity"`
	CredentialValidity  timex.Duration `json:"credential_validity"`
	MaxUploadSize       int64          `json:"max_upload_size"`
	FileTransferEnabled *bool          `json:"file_transfer_enabled"`
	S3RootUser          string         `json:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket"`
	S3Region            string         `json:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing is loaded. Keys missing
// from the file keep their current values. The function panics if the file
// cannot be read or holds invalid JSON.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	overlay(&config.HTTPAddr, c.HTTPAddr)
	overlay(&config.MediaAddr, c.MediaAddr)
	overlay(&config.GRPCAddr, c.GRPCAddr)
	overlay(&config.MediaPublicURL, c.MediaPublicURL)
	overlay(&config.MediaRoot, c.MediaRoot)
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.MediaSignKey, c.MediaSignKey)
	overlay(&config.AccessTokenValidity, c.AccessTokenValidity.Duration)
	overlay(&config.SignatureValidity, c.SignatureValidity.Duration)
	overlay(&config.CredentialValidity, c.CredentialValidity.Duration)
	overlay(&config.MaxUploadSize, c.MaxUploadSize)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.FileTransferEnabled != nil {
		config.FileTransferEnabled = *c.FileTransferEnabled
	}
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
