package remotestorage

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrUnableToSign         = errors.New("unable to sign url")
	ErrUnableToDecode       = errors.New("unable to decode response")
	ErrNotFromCloudStorage  = errors.New("resource is not from cloud storage")
	ErrCannotPrepare        = errors.New("cannot prepare upload")
	ErrSizeLimit            = errors.New("file exceeds size limit")
	ErrFileTransferDisabled = errors.New("file transfer disabled")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPossibleMalware      = errors.New("possible malware")
	ErrInvalidRequestURL    = errors.New("invalid request url")
	ErrBadRequest           = errors.New("bad request")
	ErrUnknown              = errors.New("unknown error")
)

// UnknownError is the catch-all of every taxonomy. StatusCode is zero when no
// HTTP response was received.
type UnknownError struct {
	StatusCode int
	Cause      error
}

func (e *UnknownError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("unknown error (status %d): %v", e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("unknown error (status %d)", e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("unknown error: %v", e.Cause)
	default:
		return ErrUnknown.Error()
	}
}

func (e *UnknownError) Is(target error) bool {
	return target == ErrUnknown
}

func (e *UnknownError) Unwrap() error {
	return e.Cause
}

func unknown(status int, cause error) error {
	return &UnknownError{StatusCode: status, Cause: cause}
}

// downloadError maps a failed download or signing response.
func downloadError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return unknown(status, nil)
	}
}

// metaError maps a failed HEAD response.
func metaError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return unknown(status, nil)
	}
}

// uploadError maps a failed object-store transfer.
func uploadError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return ErrSizeLimit
	case http.StatusUnsupportedMediaType:
		return ErrUnsupportedMediaType
	case http.StatusUnavailableForLegalReasons:
		return ErrPossibleMalware
	default:
		return unknown(status, nil)
	}
}
