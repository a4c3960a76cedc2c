package remotestorage

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/diskcache"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu    sync.Mutex
	token string
}

func newSession(token string) *fakeSession {
	return &fakeSession{token: token}
}

func (s *fakeSession) CurrentSessionToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *fakeSession) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

type fixedSignEndpoint string

func (e fixedSignEndpoint) SignEndpoint(string) (*url.URL, bool) {
	if e == "" {
		return nil, false
	}
	u, err := url.Parse(string(e))
	return u, err == nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingChannel records every credential request before passing it on.
type countingChannel struct {
	next transport.Channel
	sent atomic.Int32
}

func (c *countingChannel) Send(ctx context.Context, req transport.Request) error {
	c.sent.Add(1)
	return c.next.Send(ctx, req)
}

type testEnv struct {
	svc     *Service
	session *fakeSession
	channel *countingChannel
	cache   *diskcache.Cache
	clock   *clock
}

func newTestEnv(t *testing.T, tweak func(*Deps, *Options)) *testEnv {
	t.Helper()

	logger := logging.Discard()
	cache, err := diskcache.New(t.TempDir(), logger)
	require.NoError(t, err)

	mux := transport.NewMux(logger)
	channel := &countingChannel{next: transport.NewHTTPChannel(http.DefaultClient, mux, logger)}
	env := &testEnv{session: newSession("session-a"), channel: channel, cache: cache, clock: newClock()}

	deps := Deps{
		Cache:   cache,
		Session: env.session,
		Channel: channel,
		Mux:     mux,
		Logger:  logger,
		Now:     env.clock.Now,
	}
	opts := DefaultOptions()
	opts.StagingRetryInterval = 10 * time.Millisecond
	opts.DownloadTimeout = 5 * time.Second
	opts.UploadTimeout = 5 * time.Second
	if tweak != nil {
		tweak(&deps, &opts)
	}

	env.svc, err = NewService(deps, opts)
	require.NoError(t, err)
	return env
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func awaitValue[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		var zero T
		return zero
	}
}

type uploadResult struct {
	meta UploadedMeta
	err  error
}

func collectUpload(ch chan<- uploadResult) func(UploadedMeta, error) {
	return func(meta UploadedMeta, err error) {
		ch <- uploadResult{meta: meta, err: err}
	}
}
