// Package issuer is a development credential issuer for the remote storage
// SDK. It answers credential requests for the files storage (presigned S3
// POST forms) and for the media host (signed PUTs), signs media download
// URLs, and hosts the media objects themselves.
package issuer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	sc "github.com/dmitrijs2005/remotestorage/internal/server/config"
)

// Credential kinds, matching the last segment of the credential center path.
const (
	KindFiles = "files"
	KindMedia = "media"
	KindSign  = "sign"
)

const (
	accessPublicRead = "public-read"
	accessPrivate    = "private"
)

// FilesCredentials is the access credential of a files storage upload.
type FilesCredentials struct {
	URL           string `json:"url"`
	Key           string `json:"key"`
	Date          string `json:"date"`
	Policy        string `json:"policy"`
	Credential    string `json:"credential"`
	Algorithm     string `json:"algorithm"`
	Signature     string `json:"signature"`
	SecurityToken string `json:"security_token,omitempty"`
}

type filesResponse struct {
	AccessCredential FilesCredentials `json:"access_credential"`
}

// MediaCredentials authorize one signed PUT to the media host.
type MediaCredentials struct {
	URL       string   `json:"url,omitempty"`
	Metadata  string   `json:"metadata,omitempty"`
	Sign      string   `json:"sign,omitempty"`
	TS        int64    `json:"ts,omitempty"`
	ErrorList []string `json:"error_list,omitempty"`
}

// Signature answers a media URL signing request.
type Signature struct {
	Sign string `json:"sign"`
	TS   int64  `json:"ts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// mediaMetadata travels base64url-encoded in the X-Metadata header.
type mediaMetadata struct {
	Session   string `json:"sid"`
	Name      string `json:"name"`
	Mime      string `json:"mime"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type,omitempty"`
	Access    string `json:"access"`
}

func encodeMetadata(m mediaMetadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeMetadata(s string) (mediaMetadata, error) {
	var m mediaMetadata
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Issuer answers credential and signing requests.
type Issuer struct {
	config    *sc.Config
	signer    *Signer
	presigner *Presigner
	now       func() time.Time
	logger    logging.Logger
}

func New(config *sc.Config, logger logging.Logger) *Issuer {
	return &Issuer{
		config:    config,
		signer:    NewSigner(config.MediaSignKey),
		presigner: NewPresigner(config),
		now:       time.Now,
		logger:    logger.With("module", "issuer"),
	}
}

// Signer exposes the media signer shared with the media host.
func (i *Issuer) Signer() *Signer {
	return i.signer
}

// Issue answers a request of the given kind made by the session subject.
// It returns an HTTP status and a JSON-encodable body.
func (i *Issuer) Issue(ctx context.Context, subject, kind string, query map[string]string) (int, any) {
	var (
		status int
		body   any
	)
	switch kind {
	case KindFiles:
		status, body = i.issueFiles(ctx, query)
	case KindMedia:
		status, body = i.issueMedia(subject, query)
	case KindSign:
		status, body = i.issueSignature(query)
	default:
		status, body = http.StatusNotFound, errorResponse{Error: "unknown credential kind"}
	}
	i.logger.Info(ctx, "credential request", "kind", kind, "subject", subject, "status", status)
	return status, body
}

type uploadRequest struct {
	name         string
	size         int64
	mime         string
	access       string
	mediaType    string
	downloadable bool
}

func parseUploadRequest(query map[string]string) (uploadRequest, bool) {
	r := uploadRequest{
		name:         query["name"],
		mime:         query["mime"],
		access:       query["access"],
		mediaType:    query["media_type"],
		downloadable: query["downloadable"] == "true",
	}
	if r.access == "" {
		r.access = accessPublicRead
	}
	if r.mime == "" {
		r.mime = "application/octet-stream"
	}
	size, err := strconv.ParseInt(query["size"], 10, 64)
	if err != nil || size < 0 || r.name == "" {
		return r, false
	}
	if r.access != accessPublicRead && r.access != accessPrivate {
		return r, false
	}
	r.size = size
	return r, true
}

func (i *Issuer) issueFiles(ctx context.Context, query map[string]string) (int, any) {
	req, ok := parseUploadRequest(query)
	if !ok {
		return http.StatusBadRequest, errorResponse{Error: "malformed upload request"}
	}
	if req.size > i.config.MaxUploadSize {
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"}
	}

	post, err := i.presigner.PresignPost(ctx, postPolicy{
		Key:          StorageKey(i.now(), req.name),
		Access:       req.access,
		Mime:         req.mime,
		Downloadable: req.downloadable,
		MaxSize:      i.config.MaxUploadSize,
		Expires:      i.config.CredentialValidity,
	})
	if err != nil {
		i.logger.Error(ctx, "presign failed", "error", err)
		return http.StatusInternalServerError, errorResponse{Error: "cannot prepare upload"}
	}

	return http.StatusOK, filesResponse{AccessCredential: FilesCredentials{
		URL:           post.URL,
		Key:           post.Values["key"],
		Date:          post.Values["X-Amz-Date"],
		Policy:        post.Values["policy"],
		Credential:    post.Values["X-Amz-Credential"],
		Algorithm:     post.Values["X-Amz-Algorithm"],
		Signature:     post.Values["X-Amz-Signature"],
		SecurityToken: post.Values["X-Amz-Security-Token"],
	}}
}

func (i *Issuer) issueMedia(subject string, query map[string]string) (int, any) {
	if !i.config.FileTransferEnabled {
		return http.StatusOK, MediaCredentials{ErrorList: []string{common.FileTransferDisabled}}
	}

	req, ok := parseUploadRequest(query)
	if !ok {
		return http.StatusBadRequest, errorResponse{Error: "malformed upload request"}
	}
	if req.size > i.config.MaxUploadSize {
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"}
	}

	metadata, err := encodeMetadata(mediaMetadata{
		Session:   subject,
		Name:      req.name,
		Mime:      req.mime,
		Size:      req.size,
		MediaType: req.mediaType,
		Access:    req.access,
	})
	if err != nil {
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}

	ts := i.now().Add(i.config.CredentialValidity).Unix()
	return http.StatusOK, MediaCredentials{
		URL:      i.config.MediaPublicURL,
		Metadata: metadata,
		Sign:     i.signer.Sign(uploadResource(req.name, metadata), ts),
		TS:       ts,
	}
}

func (i *Issuer) issueSignature(query map[string]string) (int, any) {
	u, err := url.Parse(query["file"])
	if err != nil || u.Path == "" || u.Path == "/" {
		return http.StatusBadRequest, errorResponse{Error: "file must be an object URL"}
	}

	ts := i.now().Add(i.config.SignatureValidity).Unix()
	return http.StatusOK, Signature{Sign: i.signer.Sign(readResource(u.Path), ts), TS: ts}
}
