// Package netx wraps the direct object-store HTTP calls: presigned PUTs,
// presigned POST forms and plain GET/HEAD requests, all returning a small
// Result with the status code, headers and a size-bounded body.
package netx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MaxResponseSize bounds bodies of credential and error responses.
const MaxResponseSize = 8 << 20

// ErrResponseTooLarge is returned when a body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewHTTPClient returns a client with connection pooling tuned for many
// small transfers to a handful of hosts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// JoinURL builds endpoint+path with the given query. An endpoint without a
// scheme is treated as an https host.
func JoinURL(endpoint, path string, query map[string]string) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		q := base.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		base.RawQuery = q.Encode()
	}
	return base, nil
}

// ReadBody reads at most limit bytes of body.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// Do executes req and collects the response. The body is read in full up to
// limit; a zero limit means MaxResponseSize.
func Do(client *http.Client, req *http.Request, limit int64) (*Result, error) {
	if limit <= 0 {
		limit = MaxResponseSize
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := ReadBody(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Method, err)
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Get fetches rawURL with the given limit on the body size.
func Get(ctx context.Context, client *http.Client, rawURL string, limit int64) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return Do(client, req, limit)
}

// Head issues a HEAD request; only status and headers are meaningful.
func Head(ctx context.Context, client *http.Client, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return Do(client, req, 0)
}

// PutObject uploads data to a presigned PUT URL.
func PutObject(ctx context.Context, client *http.Client, rawURL, contentType string, headers map[string]string, data []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.ContentLength = int64(len(data))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(client, req, 0)
}

// Field is one text field of a multipart form, sent in order.
type Field struct {
	Name  string
	Value string
}

// FilePart is the file field of a multipart form.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// PostForm submits a presigned POST form: the text fields in order, then the
// file part last, as object stores require.
func PostForm(ctx context.Context, client *http.Client, rawURL string, fields []Field, file FilePart) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.FileName))
	h.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return Do(client, req, 0)
}
