// Package common contains constants and sentinel errors shared by the SDK
// side and the development issuer.
package common

// AuthorizationHeaderName carries the session token on credential requests,
// both as an HTTP header and as gRPC metadata (lower-cased there).
const AuthorizationHeaderName = "Authorization"

// RequestIDHeaderName tags every outgoing API request with a fresh id.
const RequestIDHeaderName = "X-Request-Id"

// MetadataHeaderName carries the opaque media metadata on media uploads.
const MetadataHeaderName = "X-Metadata"

// Query parameter names of signed media URLs.
const (
	SignParam   = "sign"
	TSParam     = "ts"
	ThumbParam  = "thumb"
	WidthParam  = "width"
	PublicParam = "public"
)

// FileTransferDisabled is the error_list code the issuer returns when file
// transfer is switched off for the account.
const FileTransferDisabled = "filetransfer_disabled"
