package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/filex"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	sc "github.com/dmitrijs2005/remotestorage/internal/server/config"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sidecarName = ".object.json"

// eicarMarker identifies the standard antivirus test file.
var eicarMarker = []byte("EICAR-STANDARD-ANTIVIRUS-TEST-FILE")

// objectInfo is stored next to every media object.
type objectInfo struct {
	Mime     string    `json:"mime"`
	Access   string    `json:"access"`
	Session  string    `json:"sid"`
	Uploaded time.Time `json:"uploaded"`
}

// MediaHost stores media objects under root/<id>/<name> and serves them
// back, optionally scaled down as previews.
type MediaHost struct {
	root   string
	config *sc.Config
	signer *Signer
	now    func() time.Time
	logger logging.Logger
}

func NewMediaHost(config *sc.Config, signer *Signer, logger logging.Logger) (*MediaHost, error) {
	root, err := filex.EnsureDir(config.MediaRoot)
	if err != nil {
		return nil, err
	}
	return &MediaHost{
		root:   root,
		config: config,
		signer: signer,
		now:    time.Now,
		logger: logger.With("module", "media_host"),
	}, nil
}

// Routes mounts PUT /:name for signed uploads and GET|HEAD /:id/:name.
func (h *MediaHost) Routes(r gin.IRouter) {
	r.PUT("/:name", h.put)
	r.GET("/:id/:name", h.get)
	r.HEAD("/:id/:name", h.get)
}

// NewMediaHandler builds the gin engine serving the media host.
func NewMediaHandler(h *MediaHost) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Routes(r)
	return r
}

func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && !strings.ContainsAny(name, `/\`)
}

func signatureParams(c *gin.Context) (string, int64) {
	ts, _ := strconv.ParseInt(c.Query(common.TSParam), 10, 64)
	return c.Query(common.SignParam), ts
}

func (h *MediaHost) put(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")
	if !validName(name) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid object name"})
		return
	}

	metadata := c.GetHeader(common.MetadataHeaderName)
	sign, ts := signatureParams(c)
	if err := h.signer.Verify(uploadResource(name, metadata), sign, ts, h.now()); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	meta, err := decodeMetadata(metadata)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed metadata"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, h.config.MaxUploadSize+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if int64(len(data)) > h.config.MaxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	if bytes.Contains(data, eicarMarker) {
		h.logger.Warn(ctx, "malware rejected", "name", name, "subject", meta.Session)
		c.AbortWithStatusJSON(http.StatusUnavailableForLegalReasons, gin.H{"error": "possible malware"})
		return
	}

	if !allowedMime(mimetype.Detect(data)) {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type"})
		return
	}

	access := meta.Access
	if _, public := c.GetQuery(common.PublicParam); public {
		access = accessPublicRead
	}

	contentType := c.ContentType()
	if contentType == "" {
		contentType = meta.Mime
	}

	id := uuid.New().String()
	if err := h.store(id, name, data, objectInfo{
		Mime:     contentType,
		Access:   access,
		Session:  meta.Session,
		Uploaded: h.now().UTC(),
	}); err != nil {
		h.logger.Error(ctx, "store failed", "name", name, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cannot store object"})
		return
	}

	location := "/" + id + "/" + name
	h.logger.Info(ctx, "media stored", "location", location, "size", len(data))
	c.Header("Location", location)
	c.Status(http.StatusCreated)
}

func allowedMime(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		base, _, _ := strings.Cut(m.String(), ";")
		switch {
		case strings.HasPrefix(base, "image/"),
			strings.HasPrefix(base, "video/"),
			strings.HasPrefix(base, "audio/"),
			base == "application/pdf",
			base == "text/plain":
			return true
		}
	}
	return false
}

func (h *MediaHost) store(id, name string, data []byte, info objectInfo) error {
	dir := filepath.Join(h.root, id)
	if err := filex.WriteAtomic(filepath.Join(dir, name), data); err != nil {
		return err
	}
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return filex.WriteAtomic(filepath.Join(dir, sidecarName), b)
}

func (h *MediaHost) load(id, name string) ([]byte, objectInfo, error) {
	var info objectInfo
	dir := filepath.Join(h.root, id)

	b, err := os.ReadFile(filepath.Join(dir, sidecarName))
	if err != nil {
		return nil, info, err
	}
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, info, err
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	return data, info, err
}

func (h *MediaHost) get(c *gin.Context) {
	id, name := c.Param("id"), c.Param("name")
	if !validName(id) || !validName(name) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	if status := h.authorizeRead(c, "/"+id+"/"+name); status != http.StatusOK {
		c.AbortWithStatus(status)
		return
	}

	data, info, err := h.load(id, name)
	if errors.Is(err, fs.ErrNotExist) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error(c.Request.Context(), "load failed", "id", id, "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if info.Access == accessPrivate && c.Query(common.SignParam) == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	contentType := info.Mime
	if _, thumb := c.GetQuery(common.ThumbParam); thumb {
		width, err := strconv.Atoi(c.Query(common.WidthParam))
		if err != nil {
			width = defaultPreviewWidth
		}
		preview, previewType, err := h.preview(c.Request.Context(), data, width)
		if err == nil {
			data, contentType = preview, previewType
		}
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Header("Content-Length", strconv.Itoa(len(data)))
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// authorizeRead checks the signature when one is given. Unsigned reads are
// left to the object's access level.
func (h *MediaHost) authorizeRead(c *gin.Context, path string) int {
	sign, ts := signatureParams(c)
	if sign == "" {
		return http.StatusOK
	}
	if err := h.signer.Verify(readResource(path), sign, ts, h.now()); err != nil {
		return http.StatusForbidden
	}
	return http.StatusOK
}

func (h *MediaHost) preview(ctx context.Context, data []byte, width int) ([]byte, string, error) {
	out, contentType, err := scaleImage(data, width)
	if err != nil {
		h.logger.Debug(ctx, "preview unavailable", "error", err)
	}
	return out, contentType, err
}

