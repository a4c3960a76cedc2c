package remotestorage

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/diskcache"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/webp"
)

// resolver is the variant-specific half of a downloader: how a resource URL
// becomes fetchable and how its metadata is read.
type resolver interface {
	resolveURL(ctx context.Context, endpoint string, origin *url.URL, q Quality) *url.URL
	cachedURL(origin *url.URL, q Quality) *url.URL
	fetchMeta(ctx context.Context, endpoint string, origin *url.URL, caching Caching) (FileInfo, error)
}

type downOptions struct {
	dir      string
	capacity int
	timeout  time.Duration
	maxSize  int64
}

// downloader fetches remote resources once per (URL, quality), stores them in
// the disk cache and fans the result out to every waiter.
type downloader struct {
	opts      downOptions
	cache     *diskcache.Cache
	client    *http.Client
	resources *lru.Cache[string, Resource]
	flights   *flightTable[string, Resource]
	resolver  resolver
	logger    logging.Logger
}

func newDownloader(r resolver, cache *diskcache.Cache, client *http.Client, opts downOptions, logger logging.Logger) (*downloader, error) {
	resources, err := lru.New[string, Resource](opts.capacity)
	if err != nil {
		return nil, fmt.Errorf("resource cache: %w", err)
	}
	return &downloader{
		opts:      opts,
		cache:     cache,
		client:    client,
		resources: resources,
		flights:   newFlightTable[string, Resource](),
		resolver:  r,
		logger:    logger,
	}, nil
}

func resourceKey(origin *url.URL, q Quality) string {
	return origin.String() + "#" + q.String()
}

func failed(origin *url.URL, err error) Resource {
	return Resource{State: StateFailed, Origin: origin, Err: err}
}

func (d *downloader) resolveURL(ctx context.Context, endpoint string, origin *url.URL, q Quality) *url.URL {
	if origin == nil || !origin.IsAbs() {
		return nil
	}
	return d.resolver.resolveURL(ctx, endpoint, origin, q)
}

func (d *downloader) cachedURL(origin *url.URL, q Quality) *url.URL {
	if origin == nil || !origin.IsAbs() {
		return nil
	}
	return d.resolver.cachedURL(origin, q)
}

func (d *downloader) fetchMeta(ctx context.Context, endpoint string, origin *url.URL, caching Caching) (FileInfo, error) {
	if origin == nil || !origin.IsAbs() {
		return FileInfo{}, ErrNotFound
	}
	return d.resolver.fetchMeta(ctx, endpoint, origin, caching)
}

// fetch returns a cached Ready resource, or Waiting after registering fn for
// the terminal result. Only the first waiter of a key starts a transfer.
func (d *downloader) fetch(endpoint string, origin *url.URL, q Quality, caching Caching, on Executor, fn func(Resource)) Resource {
	if origin == nil || !origin.IsAbs() {
		return failed(origin, ErrUnableToSign)
	}

	key := resourceKey(origin, q)

	var lookup func() (Resource, bool)
	if caching == CachingEnabled {
		lookup = func() (Resource, bool) { return d.cachedResource(key) }
	}

	res, cached, first := d.flights.resolveOrAwait(key, lookup, waiter[Resource]{on: on, fn: fn})
	if cached {
		return res
	}

	if first {
		go d.run(endpoint, origin, q, key)
	} else {
		d.logger.Debug(context.Background(), "joined in-flight fetch", "key", key)
	}

	return Resource{State: StateWaiting, Origin: origin}
}

// cachedResource returns the remembered resource of key while its file is
// still on disk. An entry whose file is gone is evicted.
func (d *downloader) cachedResource(key string) (Resource, bool) {
	res, ok := d.resources.Get(key)
	if !ok {
		return Resource{}, false
	}
	if _, err := os.Stat(res.Path); err != nil {
		d.resources.Remove(key)
		return Resource{}, false
	}
	return res, true
}

// cleanup removes files of this variant older than olderThan and forgets
// every remembered resource.
func (d *downloader) cleanup(olderThan time.Time) {
	d.cache.Cleanup(d.opts.dir, olderThan)
	d.resources.Purge()
}

func (d *downloader) run(endpoint string, origin *url.URL, q Quality, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.timeout)
	defer cancel()

	res := d.retrieve(ctx, endpoint, origin, q, key)

	var store func()
	if res.State == StateReady {
		store = func() { d.resources.Add(key, res) }
	} else {
		d.logger.Warn(ctx, "fetch failed", "key", key, "error", res.Err)
	}

	n := d.flights.settle(key, res, store)
	d.logger.Debug(ctx, "fetch settled", "key", key, "waiters", n)
}

func (d *downloader) retrieve(ctx context.Context, endpoint string, origin *url.URL, q Quality, key string) Resource {
	bin := diskcache.Hashed(d.opts.dir, key, "bin")
	mimeItem := bin.WithExt("mime")

	if _, ok := d.cache.ExistingPath(bin); ok {
		if m, ok := d.cache.ReadBytes(mimeItem); ok {
			return d.classify(origin, bin, string(m))
		}
	}

	signed := d.resolveURL(ctx, endpoint, origin, q)
	if signed == nil {
		return failed(origin, ErrUnableToSign)
	}

	data, mimeType, err := d.download(ctx, signed)
	if err != nil {
		return failed(origin, err)
	}

	if _, err := d.cache.Write(bin, data); err != nil {
		return failed(origin, unknown(0, err))
	}
	if _, err := d.cache.Write(mimeItem, []byte(mimeType)); err != nil {
		d.logger.Warn(ctx, "mime sidecar not written", "key", key, "error", err)
	}

	return d.classify(origin, bin, mimeType)
}

func (d *downloader) download(ctx context.Context, u *url.URL) ([]byte, string, error) {
	res, err := netx.Get(ctx, d.client, u.String(), d.opts.maxSize)
	if err != nil {
		return nil, "", unknown(0, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, "", downloadError(res.StatusCode)
	}
	return res.Body, detectMime(res.Header.Get("Content-Type"), res.Body), nil
}

// detectMime trusts a specific Content-Type and sniffs the bytes otherwise.
func detectMime(header string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, err := mime.ParseMediaType(mimetype.Detect(body).String())
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

func kindOf(mimeType string) ResourceKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	default:
		return KindBinary
	}
}

func extensionFor(mimeType string, origin *url.URL) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if ext := path.Ext(origin.Path); len(ext) > 1 && len(ext) <= 6 {
		return strings.ToLower(ext)
	}
	return "bin"
}

func (d *downloader) classify(origin *url.URL, bin diskcache.Item, mimeType string) Resource {
	res := Resource{State: StateReady, Kind: kindOf(mimeType), Mime: mimeType, Origin: origin}

	p, err := d.cache.Link(bin.WithExt(extensionFor(mimeType, origin)), bin)
	if err != nil {
		d.logger.Warn(context.Background(), "extension alias failed", "file", bin.FileName(), "error", err)
		p, _ = d.cache.ExistingPath(bin)
	}
	res.Path = p

	if res.Kind == KindImage {
		res.Width, res.Height = imageSize(p)
	}
	return res
}

func imageSize(p string) (int, int) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// filesResolver serves public URLs as they are.
type filesResolver struct{}

func (filesResolver) resolveURL(_ context.Context, _ string, origin *url.URL, _ Quality) *url.URL {
	return origin
}

func (filesResolver) cachedURL(origin *url.URL, _ Quality) *url.URL {
	return origin
}

func (filesResolver) fetchMeta(context.Context, string, *url.URL, Caching) (FileInfo, error) {
	return FileInfo{}, ErrNotFromCloudStorage
}
