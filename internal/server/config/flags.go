package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   credential API bind address (e.g., ":8080")
//	-m string   media host bind address
//	-g string   gRPC bind address
//	-l string   public URL of the media host
//	-o string   media storage directory
//	-s string   JWT HMAC secret key
//	-k string   media signature key
//	-t int      access token validity, minutes
//	-w int      media signature validity, minutes
//	-x int      max upload size, bytes
//	-f bool     file transfer enabled
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000")
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-g", "-l", "-o", "-s", "-k", "-t", "-w", "-x", "-f", "-u", "-p", "-b", "-r", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port of the credential API")
	fs.StringVar(&config.MediaAddr, "m", config.MediaAddr, "address and port of the media host")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port of the gRPC service")
	fs.StringVar(&config.MediaPublicURL, "l", config.MediaPublicURL, "public URL of the media host")
	fs.StringVar(&config.MediaRoot, "o", config.MediaRoot, "media storage directory")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.MediaSignKey, "k", config.MediaSignKey, "media signature key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidity.Minutes()), "access token validity (in minutes)")
	signatureValidity := fs.Int("w", int(config.SignatureValidity.Minutes()), "media signature validity (in minutes)")

	fs.Int64Var(&config.MaxUploadSize, "x", config.MaxUploadSize, "max upload size in bytes")
	fs.BoolVar(&config.FileTransferEnabled, "f", config.FileTransferEnabled, "file transfer enabled")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidity = time.Duration(*accessTokenValidity) * time.Minute
	config.SignatureValidity = time.Duration(*signatureValidity) * time.Minute
}
