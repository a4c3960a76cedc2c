package remotestorage

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/diskcache"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilesDownloader(t *testing.T, cache *diskcache.Cache) *downloader {
	t.Helper()
	d, err := newDownloader(filesResolver{}, cache, http.DefaultClient, downOptions{
		dir:      "remote-storage/files",
		capacity: 16,
		timeout:  5 * time.Second,
		maxSize:  1 << 20,
	}, logging.Discard())
	require.NoError(t, err)
	return d
}

func newTestCache(t *testing.T) *diskcache.Cache {
	t.Helper()
	cache, err := diskcache.New(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	return cache
}

func TestFetch_CoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(srv.Close)

	d := newFilesDownloader(t, newTestCache(t))
	origin := mustURL(t, srv.URL+"/doc")

	const callers = 8
	results := make(chan Resource, callers)
	for range callers {
		res := d.fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
		assert.Equal(t, StateWaiting, res.State)
	}
	close(release)

	first := awaitValue(t, results)
	require.Equal(t, StateReady, first.State)
	for range callers - 1 {
		assert.Equal(t, first, awaitValue(t, results))
	}
	assert.EqualValues(t, 1, hits.Load())

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", first.Mime)
	assert.Equal(t, KindBinary, first.Kind)
	assert.True(t, strings.HasSuffix(first.Path, ".txt"), first.Path)

	cached := d.fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(Resource) {
		t.Error("callback must not run for a cached resource")
	})
	assert.Equal(t, first, cached)
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetch_FailuresAreNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("second time lucky"))
	}))
	t.Cleanup(srv.Close)

	d := newFilesDownloader(t, newTestCache(t))
	origin := mustURL(t, srv.URL+"/flaky")

	results := make(chan Resource, 1)
	d.fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
	res := awaitValue(t, results)
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrForbidden)

	d.fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
	res = awaitValue(t, results)
	assert.Equal(t, StateReady, res.State)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetch_DiskHitSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	cache := newTestCache(t)
	origin := mustURL(t, srv.URL+"/report")

	results := make(chan Resource, 1)
	newFilesDownloader(t, cache).fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
	first := awaitValue(t, results)
	require.Equal(t, StateReady, first.State)

	// a fresh downloader has an empty memory cache but shares the disk
	newFilesDownloader(t, cache).fetch("", origin, QualityOriginal, CachingDisabled, Inline, func(r Resource) { results <- r })
	second := awaitValue(t, results)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetch_QualitiesAreCachedSeparately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("bytes"))
	}))
	t.Cleanup(srv.Close)

	d := newFilesDownloader(t, newTestCache(t))
	origin := mustURL(t, srv.URL+"/pic")

	results := make(chan Resource, 2)
	d.fetch("", origin, QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
	original := awaitValue(t, results)
	d.fetch("", origin, QualityPreview(64), CachingEnabled, Inline, func(r Resource) { results <- r })
	preview := awaitValue(t, results)

	assert.NotEqual(t, original.Path, preview.Path)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetch_ClassifiesImages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Type: the bytes are sniffed
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	d := newFilesDownloader(t, newTestCache(t))
	results := make(chan Resource, 1)
	d.fetch("", mustURL(t, srv.URL+"/avatar"), QualityOriginal, CachingEnabled, Inline, func(r Resource) { results <- r })
	res := awaitValue(t, results)

	require.Equal(t, StateReady, res.State)
	assert.Equal(t, KindImage, res.Kind)
	assert.Equal(t, "image/png", res.Mime)
	assert.Equal(t, 3, res.Width)
	assert.Equal(t, 2, res.Height)
	assert.True(t, strings.HasSuffix(res.Path, ".png"), res.Path)
}

func TestFetch_RejectsRelativeOrigin(t *testing.T) {
	d := newFilesDownloader(t, newTestCache(t))

	res := d.fetch("", &url.URL{Path: "relative/file"}, QualityOriginal, CachingEnabled, Inline, func(Resource) {
		t.Error("no callback expected")
	})
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrUnableToSign)

	res = d.fetch("", nil, QualityOriginal, CachingEnabled, Inline, nil)
	assert.ErrorIs(t, res.Err, ErrUnableToSign)
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   []byte
		want   string
	}{
		{name: "header wins", header: "video/mp4", body: []byte("anything"), want: "video/mp4"},
		{name: "parameters dropped", header: "text/html; charset=utf-8", want: "text/html"},
		{name: "octet-stream sniffed", header: "application/octet-stream", body: []byte("%PDF-1.7\n"), want: "application/pdf"},
		{name: "missing header sniffed", body: []byte("plain words"), want: "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectMime(tt.header, tt.body))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindImage, kindOf("image/webp"))
	assert.Equal(t, KindVideo, kindOf("video/quicktime"))
	assert.Equal(t, KindBinary, kindOf("audio/mpeg"))
	assert.Equal(t, KindBinary, kindOf(""))
}

func TestExtensionFor(t *testing.T) {
	origin := mustURL(t, "https://cdn.example.com/files/archive.TAR")

	assert.Equal(t, ".jpg", extensionFor("image/jpeg", origin))
	assert.Equal(t, ".tar", extensionFor("application/x-unknown-thing", origin))
	assert.Equal(t, "bin", extensionFor("application/x-unknown-thing", mustURL(t, "https://cdn.example.com/blob")))
}
