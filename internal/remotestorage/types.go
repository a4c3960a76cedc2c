package remotestorage

import (
	"fmt"
	"net/url"
	"time"
)

// Target identifies an upload slot, e.g. the attachment area of one chat.
type Target struct {
	Purpose string
	Context string
}

// Quality selects the rendition of a remote resource.
type Quality struct {
	Preview bool
	Width   int
}

var QualityOriginal = Quality{}

func QualityPreview(width int) Quality {
	return Quality{Preview: true, Width: width}
}

func (q Quality) String() string {
	if !q.Preview {
		return "original"
	}
	return fmt.Sprintf("preview-%d", q.Width)
}

type Caching int

const (
	CachingEnabled Caching = iota
	CachingDisabled
)

// Access is the object ACL requested for an upload.
type Access string

const (
	AccessPrivate    Access = "private"
	AccessPublicRead Access = "public-read"
)

// File is the payload of an upload.
type File struct {
	Name         string
	Mime         string
	Contents     []byte
	Access       Access
	Downloadable bool
	MediaType    string
	Duration     time.Duration
	Width        int
	Height       int
	// Params are passed verbatim to the credential request.
	Params map[string]string
}

type ResourceState int

const (
	StateWaiting ResourceState = iota
	StateReady
	StateFailed
)

type ResourceKind int

const (
	KindBinary ResourceKind = iota
	KindImage
	KindVideo
)

func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "binary"
	}
}

// Resource is one state of a download: waiting, a local file ready to use,
// or a typed failure in Err.
type Resource struct {
	State  ResourceState
	Kind   ResourceKind
	Path   string
	Mime   string
	Origin *url.URL
	// Width and Height are set for images whose format could be decoded.
	Width  int
	Height int
	Err    error
}

// FileInfo is what a HEAD on a remote resource tells about it.
type FileInfo struct {
	Name string
}

// UploadedMeta is the result of a completed upload.
type UploadedMeta struct {
	UploadID   string
	Target     Target
	Name       string
	Mime       string
	Size       int
	Key        string
	Link       string
	UploadedAt time.Time
}

// PendingUpload is a snapshot of a queued item for progress displays.
type PendingUpload struct {
	ID     string
	Target Target
	Name   string
	Mime   string
	Size   int
	Staged bool
	Active bool
}

type UploadingStatus int

const (
	StatusPreparing UploadingStatus = iota
	StatusUploading
)

func (s UploadingStatus) String() string {
	if s == StatusUploading {
		return "uploading"
	}
	return "preparing"
}

// Engine selects the upload variant of a Center.
type Engine int

const (
	EngineFiles Engine = iota
	EngineMedia
)

// Auth is the credential attached to credential negotiation requests.
type Auth struct {
	Token string
}

func (a Auth) header() string {
	if a.Token == "" {
		return ""
	}
	return "Bearer " + a.Token
}

// Center tells where credentials for a target are issued.
type Center struct {
	Engine Engine
	Path   string
	Auth   Auth
}

// SessionContext exposes the identity of the current user session.
type SessionContext interface {
	CurrentSessionToken() (string, bool)
}

// SignEndpointBuilder builds the media signing endpoint for an API endpoint.
type SignEndpointBuilder interface {
	SignEndpoint(endpoint string) (*url.URL, bool)
}

// CenterProvider resolves the credential center of an upload target.
type CenterProvider interface {
	Center(target Target) (Center, bool)
}

// CenterProviderFunc adapts a function to CenterProvider.
type CenterProviderFunc func(target Target) (Center, bool)

func (f CenterProviderFunc) Center(target Target) (Center, bool) {
	return f(target)
}
