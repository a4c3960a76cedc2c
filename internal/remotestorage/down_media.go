package remotestorage

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"golang.org/x/sync/singleflight"
)

type signedURL struct {
	url     *url.URL
	expires time.Time
}

type signature struct {
	Sign string `json:"sign"`
	TS   int64  `json:"ts"`
}

// mediaResolver signs media URLs with short-lived tokens and keeps the
// signatures until they expire.
type mediaResolver struct {
	session   SessionContext
	endpoints SignEndpointBuilder
	client    *http.Client
	now       func() time.Time
	logger    logging.Logger

	mu     sync.Mutex
	signed map[string]signedURL
	metas  map[string]FileInfo

	signing singleflight.Group
	heads   singleflight.Group
}

func newMediaResolver(session SessionContext, endpoints SignEndpointBuilder, client *http.Client, now func() time.Time, logger logging.Logger) *mediaResolver {
	return &mediaResolver{
		session:   session,
		endpoints: endpoints,
		client:    client,
		now:       now,
		logger:    logger,
		signed:    make(map[string]signedURL),
		metas:     make(map[string]FileInfo),
	}
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}

func (r *mediaResolver) cachedURL(origin *url.URL, q Quality) *url.URL {
	key := resourceKey(origin, q)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.signed[key]
	if !ok {
		return nil
	}
	if !r.now().Before(entry.expires) {
		delete(r.signed, key)
		return nil
	}
	return cloneURL(entry.url)
}

// resolveURL returns a live signed URL, signing when needed. Without a
// session or a sign endpoint, or when signing fails, the unsigned origin is
// returned so local flows can degrade.
func (r *mediaResolver) resolveURL(ctx context.Context, endpoint string, origin *url.URL, q Quality) *url.URL {
	if u := r.cachedURL(origin, q); u != nil {
		return u
	}

	token, hasToken := r.session.CurrentSessionToken()
	signEndpoint, hasEndpoint := r.endpoints.SignEndpoint(endpoint)
	if !hasToken || !hasEndpoint {
		r.logger.Debug(ctx, "signing unavailable, using origin", "origin", origin.String())
		return origin
	}

	key := resourceKey(origin, q)
	v, err, shared := r.signing.Do(key, func() (any, error) {
		sig, err := r.requestSignature(ctx, signEndpoint, token, origin)
		if err != nil {
			return nil, err
		}

		expires := time.Unix(sig.TS, 0)
		if !r.now().Before(expires) {
			return nil, ErrUnableToSign
		}

		u := signedResourceURL(origin, q, sig)
		r.mu.Lock()
		r.signed[key] = signedURL{url: u, expires: expires}
		r.mu.Unlock()
		return u, nil
	})
	if err != nil {
		r.logger.Warn(ctx, "signing failed, using origin", "origin", origin.String(), "error", err)
		return origin
	}
	if shared {
		r.logger.Debug(ctx, "shared signing result", "key", key)
	}
	return cloneURL(v.(*url.URL))
}

func (r *mediaResolver) requestSignature(ctx context.Context, endpoint *url.URL, token string, origin *url.URL) (signature, error) {
	u := cloneURL(endpoint)
	q := u.Query()
	q.Set("file", origin.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return signature{}, err
	}
	req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	res, err := netx.Do(r.client, req, netx.MaxResponseSize)
	if err != nil {
		return signature{}, unknown(0, err)
	}
	if res.StatusCode != http.StatusOK {
		return signature{}, downloadError(res.StatusCode)
	}

	var sig signature
	if err := json.Unmarshal(res.Body, &sig); err != nil || sig.Sign == "" || sig.TS == 0 {
		return signature{}, ErrUnableToDecode
	}
	return sig, nil
}

// signedResourceURL appends sign and ts (and the preview parameters) to origin.
func signedResourceURL(origin *url.URL, q Quality, sig signature) *url.URL {
	u := cloneURL(origin)

	var parts []string
	if u.RawQuery != "" {
		parts = append(parts, u.RawQuery)
	}
	parts = append(parts,
		common.SignParam+"="+url.QueryEscape(sig.Sign),
		common.TSParam+"="+strconv.FormatInt(sig.TS, 10),
	)
	if q.Preview {
		parts = append(parts, common.ThumbParam, common.WidthParam+"="+strconv.Itoa(q.Width))
	}

	u.RawQuery = strings.Join(parts, "&")
	return u
}

func (r *mediaResolver) fetchMeta(ctx context.Context, endpoint string, origin *url.URL, caching Caching) (FileInfo, error) {
	key := origin.String()

	if caching == CachingEnabled {
		r.mu.Lock()
		info, ok := r.metas[key]
		r.mu.Unlock()
		if ok {
			return info, nil
		}
	}

	v, err, _ := r.heads.Do(key, func() (any, error) {
		signed := r.resolveURL(ctx, endpoint, origin, QualityOriginal)

		res, err := netx.Head(ctx, r.client, signed.String())
		if err != nil {
			return nil, unknown(0, err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, metaError(res.StatusCode)
		}

		name, ok := fileNameFromDisposition(res.Header.Get("Content-Disposition"))
		if !ok {
			return nil, ErrUnableToDecode
		}

		info := FileInfo{Name: name}
		r.mu.Lock()
		r.metas[key] = info
		r.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return FileInfo{}, err
	}
	return v.(FileInfo), nil
}

// fileNameFromDisposition extracts the file name of a Content-Disposition
// header, preferring the RFC 5987 filename* form.
func fileNameFromDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name, true
		}
	}

	for _, marker := range []string{"filename*=", "filename="} {
		i := strings.Index(header, marker)
		if i < 0 {
			continue
		}
		v := header[i+len(marker):]
		if j := strings.IndexByte(v, ';'); j >= 0 {
			v = v[:j]
		}
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		if k := strings.Index(v, "''"); k >= 0 {
			v = v[k+2:]
		}
		if v == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
		return v, true
	}

	return "", false
}
