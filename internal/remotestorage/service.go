package remotestorage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/diskcache"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
)

// Options tunes the service. Zero fields take the DefaultOptions values.
type Options struct {
	// CacheNamespace is the disk cache subdirectory owned by the service.
	CacheNamespace string
	// MediaHostPrefix routes URLs whose host starts with it to the Media variant.
	MediaHostPrefix string
	// SizeLimit is the largest accepted upload in bytes, inclusive.
	SizeLimit             int
	StagingRetryInterval  time.Duration
	StagingMaxAttempts    int
	ResourceCacheCapacity int
	DownloadTimeout       time.Duration
	UploadTimeout         time.Duration
	MaxDownloadSize       int64
}

func DefaultOptions() Options {
	return Options{
		CacheNamespace:        "remote-storage",
		MediaHostPrefix:       "media",
		SizeLimit:             10 << 20,
		StagingRetryInterval:  500 * time.Millisecond,
		StagingMaxAttempts:    20,
		ResourceCacheCapacity: 256,
		DownloadTimeout:       2 * time.Minute,
		UploadTimeout:         5 * time.Minute,
		MaxDownloadSize:       256 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CacheNamespace == "" {
		o.CacheNamespace = d.CacheNamespace
	}
	if o.MediaHostPrefix == "" {
		o.MediaHostPrefix = d.MediaHostPrefix
	}
	if o.SizeLimit <= 0 {
		o.SizeLimit = d.SizeLimit
	}
	if o.StagingRetryInterval <= 0 {
		o.StagingRetryInterval = d.StagingRetryInterval
	}
	if o.StagingMaxAttempts <= 0 {
		o.StagingMaxAttempts = d.StagingMaxAttempts
	}
	if o.ResourceCacheCapacity <= 0 {
		o.ResourceCacheCapacity = d.ResourceCacheCapacity
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = d.DownloadTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = d.UploadTimeout
	}
	if o.MaxDownloadSize <= 0 {
		o.MaxDownloadSize = d.MaxDownloadSize
	}
	return o
}

// Deps are the collaborators of a Service. Cache, Session, Channel and Mux
// are required; the Channel must deliver its responses to Mux.
type Deps struct {
	Cache         *diskcache.Cache
	Session       SessionContext
	SignEndpoints SignEndpointBuilder
	Centers       CenterProvider
	Channel       transport.Channel
	Mux           *transport.Mux
	HTTPClient    *http.Client
	Index         UploadIndex
	Logger        logging.Logger
	Now           func() time.Time
}

type noSignEndpoint struct{}

func (noSignEndpoint) SignEndpoint(string) (*url.URL, bool) { return nil, false }

// Service is the facade of the subsystem: it routes every call to the Files
// or the Media variant by the resource host.
type Service struct {
	opts   Options
	cache  *diskcache.Cache
	now    func() time.Time
	logger logging.Logger

	centers CenterProvider

	filesDown *downloader
	mediaDown *downloader
	filesUp   *filesUp
	mediaUp   *mediaUp
	queue     *queue
}

func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("remotestorage: disk cache is required")
	case deps.Session == nil:
		return nil, errors.New("remotestorage: session context is required")
	case deps.Channel == nil || deps.Mux == nil:
		return nil, errors.New("remotestorage: transport channel and mux are required")
	}

	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = netx.NewHTTPClient(opts.DownloadTimeout)
	}
	if deps.Index == nil {
		deps.Index = NewMemoryIndex()
	}
	if deps.SignEndpoints == nil {
		deps.SignEndpoints = noSignEndpoint{}
	}
	if deps.Centers == nil {
		deps.Centers = CenterProviderFunc(func(Target) (Center, bool) { return Center{}, false })
	}

	logger := deps.Logger.With("module", "remote_storage")

	s := &Service{
		opts:    opts,
		cache:   deps.Cache,
		now:     deps.Now,
		logger:  logger,
		centers: deps.Centers,
	}

	var err error
	s.filesDown, err = newDownloader(filesResolver{}, deps.Cache, deps.HTTPClient, s.downOptions("files"), logger.With("variant", "files"))
	if err != nil {
		return nil, err
	}
	media := newMediaResolver(deps.Session, deps.SignEndpoints, deps.HTTPClient, deps.Now, logger.With("variant", "media"))
	s.mediaDown, err = newDownloader(media, deps.Cache, deps.HTTPClient, s.downOptions("media"), logger.With("variant", "media"))
	if err != nil {
		return nil, err
	}

	s.filesUp = newFilesUp(deps.Channel, deps.Mux, deps.HTTPClient, logger.With("engine", "files"))
	s.mediaUp = newMediaUp(deps.Channel, deps.Mux, deps.HTTPClient, logger.With("engine", "media"))

	s.queue = &queue{
		opts: queueOptions{
			sizeLimit:     opts.SizeLimit,
			retryInterval: opts.StagingRetryInterval,
			maxAttempts:   opts.StagingMaxAttempts,
		},
		session:  deps.Session,
		index:    deps.Index,
		stage:    s.stage,
		unstage:  s.unstage,
		activate: s.activate,
		now:      deps.Now,
		logger:   logger.With("component", "upload_queue"),
	}

	return s, nil
}

func (s *Service) downOptions(variant string) downOptions {
	return downOptions{
		dir:      path.Join(s.opts.CacheNamespace, variant),
		capacity: s.opts.ResourceCacheCapacity,
		timeout:  s.opts.DownloadTimeout,
		maxSize:  s.opts.MaxDownloadSize,
	}
}

func (s *Service) isMedia(u *url.URL) bool {
	return u != nil && strings.HasPrefix(strings.ToLower(u.Hostname()), s.opts.MediaHostPrefix)
}

func (s *Service) down(u *url.URL) *downloader {
	if s.isMedia(u) {
		return s.mediaDown
	}
	return s.filesDown
}

// RetrieveURL resolves a fetchable URL for origin and hands it to fn on the
// executor. fn gets nil when origin is not an absolute URL.
func (s *Service) RetrieveURL(endpoint string, origin *url.URL, q Quality, on Executor, fn func(*url.URL)) {
	on = orBackground(on)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DownloadTimeout)
		defer cancel()
		u := s.down(origin).resolveURL(ctx, endpoint, origin, q)
		on.Execute(func() { fn(u) })
	}()
}

// RetrieveCachedURL returns a live signed URL (or the public URL) without
// touching the network, or nil when none is known.
func (s *Service) RetrieveCachedURL(origin *url.URL, q Quality) *url.URL {
	return s.down(origin).cachedURL(origin, q)
}

// RetrieveFile downloads origin into the disk cache. A cached resource is
// returned Ready right away and fn is not called; otherwise the result is
// Waiting and fn later receives the terminal Ready or Failed resource.
func (s *Service) RetrieveFile(endpoint string, origin *url.URL, q Quality, caching Caching, on Executor, fn func(Resource)) Resource {
	return s.down(origin).fetch(endpoint, origin, q, caching, on, fn)
}

// RetrieveMeta reads the file name of a remote resource without downloading it.
func (s *Service) RetrieveMeta(endpoint string, origin *url.URL, caching Caching, on Executor, fn func(FileInfo, error)) {
	on = orBackground(on)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DownloadTimeout)
		defer cancel()
		info, err := s.down(origin).fetchMeta(ctx, endpoint, origin, caching)
		on.Execute(func() { fn(info, err) })
	}()
}

// Upload queues file for target and returns the upload id, or "" when the
// file was rejected right away. fn runs exactly once with the result.
func (s *Service) Upload(endpoint string, target Target, file File, on Executor, fn func(UploadedMeta, error)) string {
	return s.queue.enqueue(endpoint, target, file, on, fn)
}

// UploadingStatus reports the state of the first queued item for target.
func (s *Service) UploadingStatus(target Target) (UploadingStatus, bool) {
	return s.queue.status(target)
}

func (s *Service) FindUpload(uploadID string) (UploadedMeta, bool) {
	return s.queue.findCompleted(uploadID)
}

// CleanupOldResources removes downloaded files not modified within age.
// Staging files of queued uploads are left alone.
func (s *Service) CleanupOldResources(age time.Duration) {
	olderThan := s.now().Add(-age)
	s.filesDown.cleanup(olderThan)
	s.mediaDown.cleanup(olderThan)
}

// SubscribeToUploads calls fn with the pending list now and on every change
// until the returned func is called.
func (s *Service) SubscribeToUploads(on Executor, fn func([]PendingUpload)) func() {
	return s.queue.subscribe(on, fn)
}

// ResolveURL is the blocking form of RetrieveURL.
func (s *Service) ResolveURL(ctx context.Context, endpoint string, origin *url.URL, q Quality) *url.URL {
	return s.down(origin).resolveURL(ctx, endpoint, origin, q)
}

// FetchFile is the blocking form of RetrieveFile. Cancelling ctx stops the
// wait only; the download still completes and is cached.
func (s *Service) FetchFile(ctx context.Context, endpoint string, origin *url.URL, q Quality, caching Caching) (Resource, error) {
	ch := make(chan Resource, 1)
	res := s.RetrieveFile(endpoint, origin, q, caching, Inline, func(r Resource) { ch <- r })
	if res.State != StateWaiting {
		return res, res.Err
	}

	select {
	case res = <-ch:
		return res, res.Err
	case <-ctx.Done():
		return Resource{State: StateFailed, Origin: origin, Err: ctx.Err()}, ctx.Err()
	}
}

// FetchMeta is the blocking form of RetrieveMeta.
func (s *Service) FetchMeta(ctx context.Context, endpoint string, origin *url.URL, caching Caching) (FileInfo, error) {
	return s.down(origin).fetchMeta(ctx, endpoint, origin, caching)
}

// UploadFile is the blocking form of Upload.
func (s *Service) UploadFile(ctx context.Context, endpoint string, target Target, file File) (UploadedMeta, error) {
	type result struct {
		meta UploadedMeta
		err  error
	}
	ch := make(chan result, 1)
	s.Upload(endpoint, target, file, Inline, func(meta UploadedMeta, err error) {
		ch <- result{meta: meta, err: err}
	})

	select {
	case r := <-ch:
		return r.meta, r.err
	case <-ctx.Done():
		return UploadedMeta{}, ctx.Err()
	}
}

func (s *Service) stagingItem(id string) diskcache.Item {
	return diskcache.Named(path.Join(s.opts.CacheNamespace, "staging"), id)
}

func (s *Service) stage(item *Item) (string, error) {
	return s.cache.Write(s.stagingItem(item.ID), item.File.Contents)
}

func (s *Service) unstage(p string) {
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn(context.Background(), "staging file not removed", "path", p, "error", err)
	}
}

// activate starts the active queue item on the engine of its center. The
// result is reported once, by the engine or by the upload timeout.
func (s *Service) activate(item *Item, finish func(UploadedMeta, error)) {
	center, ok := s.centers.Center(item.Target)
	if !ok {
		finish(UploadedMeta{}, ErrInvalidRequestURL)
		return
	}

	var engine upEngine = s.filesUp
	if center.Engine == EngineMedia {
		engine = s.mediaUp
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.UploadTimeout)

	var once sync.Once
	done := func(meta UploadedMeta, err error) {
		once.Do(func() {
			cancel()
			finish(meta, err)
		})
	}
	context.AfterFunc(ctx, func() {
		done(UploadedMeta{}, unknown(0, fmt.Errorf("upload %s: %w", item.ID, ctx.Err())))
	})

	engine.upload(ctx, item.Endpoint, center, item, done)
}
