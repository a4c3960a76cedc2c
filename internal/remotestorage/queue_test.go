package remotestorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(session SessionContext, activate func(*Item, func(UploadedMeta, error))) *queue {
	return &queue{
		opts: queueOptions{
			sizeLimit:     10 << 20,
			retryInterval: 5 * time.Millisecond,
			maxAttempts:   100,
		},
		session:  session,
		index:    NewMemoryIndex(),
		stage:    func(item *Item) (string, error) { return "/staging/" + item.ID, nil },
		unstage:  func(string) {},
		activate: activate,
		now:      time.Now,
		logger:   logging.Discard(),
	}
}

func succeed(item *Item, finish func(UploadedMeta, error)) {
	go finish(UploadedMeta{Key: "key/" + item.File.Name}, nil)
}

func TestQueue_SizeLimitIsInclusive(t *testing.T) {
	q := newTestQueue(newSession("session-a"), succeed)
	target := Target{Purpose: "chat-attachment", Context: "chat-1"}
	results := make(chan uploadResult, 2)

	id := q.enqueue("", target, File{Name: "exact.bin", Contents: make([]byte, 10<<20)}, Inline, collectUpload(results))
	require.NotEmpty(t, id)
	res := awaitValue(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, 10<<20, res.meta.Size)

	id = q.enqueue("", target, File{Name: "over.bin", Contents: make([]byte, 10<<20+1)}, Inline, collectUpload(results))
	assert.Empty(t, id)
	res = awaitValue(t, results)
	assert.ErrorIs(t, res.err, ErrSizeLimit)
	_, queued := q.status(target)
	assert.False(t, queued)
}

func TestQueue_RunsOneItemAtATimeInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		order   []string
	)
	q := newTestQueue(newSession("session-a"), func(item *Item, finish func(UploadedMeta, error)) {
		mu.Lock()
		active++
		maxSeen = max(maxSeen, active)
		order = append(order, item.File.Name)
		mu.Unlock()

		go func() {
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			finish(UploadedMeta{}, nil)
		}()
	})

	const n = 10
	results := make(chan uploadResult, n)
	var want []string
	for i := range n {
		name := fmt.Sprintf("file-%02d", i)
		want = append(want, name)
		q.enqueue("", Target{Purpose: "chat-attachment"}, File{Name: name, Contents: []byte(name)}, Background, collectUpload(results))
	}
	for range n {
		require.NoError(t, awaitValue(t, results).err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, want, order)
}

func TestQueue_ConcurrentEnqueuesNeverOverlap(t *testing.T) {
	var active, maxSeen atomic.Int32
	q := newTestQueue(newSession("session-a"), func(item *Item, finish func(UploadedMeta, error)) {
		now := active.Add(1)
		for {
			seen := maxSeen.Load()
			if now <= seen || maxSeen.CompareAndSwap(seen, now) {
				break
			}
		}
		go func() {
			time.Sleep(time.Millisecond)
			active.Add(-1)
			finish(UploadedMeta{}, nil)
		}()
	})

	const n = 20
	results := make(chan uploadResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.enqueue("", Target{Context: fmt.Sprint(i)}, File{Contents: []byte{byte(i)}}, Background, collectUpload(results))
		}()
	}
	wg.Wait()

	for range n {
		require.NoError(t, awaitValue(t, results).err)
	}
	assert.EqualValues(t, 1, maxSeen.Load())
}

func TestQueue_StatusFollowsStaging(t *testing.T) {
	target := Target{Purpose: "chat-attachment", Context: "chat-7"}
	activated := make(chan *Item, 2)
	finishers := make(chan func(UploadedMeta, error), 2)

	q := newTestQueue(newSession("session-a"), func(item *Item, finish func(UploadedMeta, error)) {
		activated <- item
		finishers <- finish
	})
	gate := make(chan struct{})
	q.stage = func(item *Item) (string, error) {
		<-gate
		return "/staging/" + item.ID, nil
	}

	results := make(chan uploadResult, 2)
	first := q.enqueue("", target, File{Name: "a"}, Inline, collectUpload(results))
	second := q.enqueue("", target, File{Name: "b"}, Inline, collectUpload(results))

	status, ok := q.status(target)
	require.True(t, ok)
	assert.Equal(t, StatusPreparing, status)

	close(gate)
	assert.Equal(t, first, awaitValue(t, activated).ID)

	status, ok = q.status(target)
	require.True(t, ok)
	assert.Equal(t, StatusUploading, status)

	awaitValue(t, finishers)(UploadedMeta{Key: "a"}, nil)
	assert.Equal(t, "a", awaitValue(t, results).meta.Key)

	assert.Equal(t, second, awaitValue(t, activated).ID)
	awaitValue(t, finishers)(UploadedMeta{Key: "b"}, nil)
	assert.Equal(t, "b", awaitValue(t, results).meta.Key)

	_, ok = q.status(target)
	assert.False(t, ok)

	meta, ok := q.findCompleted(first)
	require.True(t, ok)
	assert.Equal(t, "a", meta.Key)
	assert.Equal(t, target, meta.Target)
}

func TestQueue_DropsItemsOfEndedSession(t *testing.T) {
	session := newSession("session-a")
	var activations atomic.Int32
	q := newTestQueue(session, func(item *Item, finish func(UploadedMeta, error)) {
		activations.Add(1)
		succeed(item, finish)
	})
	gate := make(chan struct{})
	q.stage = func(item *Item) (string, error) {
		<-gate
		return "/staging/" + item.ID, nil
	}

	results := make(chan uploadResult, 1)
	q.enqueue("", Target{}, File{Name: "old"}, Inline, collectUpload(results))
	session.set("session-b")
	close(gate)

	res := awaitValue(t, results)
	assert.ErrorIs(t, res.err, ErrUnknown)
	assert.ErrorIs(t, res.err, errSessionChanged)
	assert.Zero(t, activations.Load())
}

func TestQueue_SuccessUnderNewSessionFails(t *testing.T) {
	session := newSession("session-a")
	finishers := make(chan func(UploadedMeta, error), 1)
	q := newTestQueue(session, func(_ *Item, finish func(UploadedMeta, error)) {
		finishers <- finish
	})

	results := make(chan uploadResult, 1)
	id := q.enqueue("", Target{}, File{Name: "mid-flight"}, Inline, collectUpload(results))
	finish := awaitValue(t, finishers)

	session.set("")
	finish(UploadedMeta{Key: "k"}, nil)

	assert.ErrorIs(t, awaitValue(t, results).err, errSessionChanged)
	_, ok := q.findCompleted(id)
	assert.False(t, ok)
}

func TestQueue_RejectsWithoutSession(t *testing.T) {
	q := newTestQueue(newSession(""), func(*Item, func(UploadedMeta, error)) {
		t.Error("nothing may be activated")
	})

	results := make(chan uploadResult, 1)
	assert.Empty(t, q.enqueue("", Target{}, File{}, Inline, collectUpload(results)))
	assert.ErrorIs(t, awaitValue(t, results).err, ErrUnknown)
}

func TestQueue_StagingFailures(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		q := newTestQueue(newSession("session-a"), succeed)
		q.stage = func(*Item) (string, error) { return "", errors.New("disk full") }

		results := make(chan uploadResult, 1)
		q.enqueue("", Target{}, File{}, Inline, collectUpload(results))
		assert.ErrorIs(t, awaitValue(t, results).err, ErrCannotPrepare)
	})

	t.Run("never finishes", func(t *testing.T) {
		q := newTestQueue(newSession("session-a"), succeed)
		q.opts.maxAttempts = 2
		gate := make(chan struct{})
		t.Cleanup(func() { close(gate) })
		q.stage = func(item *Item) (string, error) {
			<-gate
			return "/staging/" + item.ID, nil
		}

		results := make(chan uploadResult, 1)
		q.enqueue("", Target{}, File{}, Inline, collectUpload(results))
		assert.ErrorIs(t, awaitValue(t, results).err, ErrCannotPrepare)
	})
}

func TestQueue_SubscribersSeeEveryChange(t *testing.T) {
	q := newTestQueue(newSession("session-a"), succeed)

	var mu sync.Mutex
	var snapshots [][]PendingUpload
	cancel := q.subscribe(Inline, func(p []PendingUpload) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	})
	defer cancel()

	results := make(chan uploadResult, 1)
	q.enqueue("", Target{Purpose: "p"}, File{Name: "shown.txt", Mime: "text/plain", Contents: []byte("x")}, Inline, collectUpload(results))
	require.NoError(t, awaitValue(t, results).err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 3 && len(snapshots[len(snapshots)-1]) == 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, snapshots[0])
	assert.Equal(t, PendingUpload{
		ID:     snapshots[1][0].ID,
		Target: Target{Purpose: "p"},
		Name:   "shown.txt",
		Mime:   "text/plain",
		Size:   1,
	}, snapshots[1][0])
}

func TestQueue_InlineObserverMayEnqueue(t *testing.T) {
	q := newTestQueue(newSession("session-a"), succeed)
	results := make(chan uploadResult, 2)

	var once sync.Once
	cancel := q.subscribe(Inline, func(p []PendingUpload) {
		if len(p) == 0 {
			return
		}
		once.Do(func() {
			q.enqueue("", Target{Purpose: "p"}, File{Name: "follow-up.txt"}, Inline, collectUpload(results))
		})
	})
	defer cancel()

	returned := make(chan string, 1)
	go func() {
		returned <- q.enqueue("", Target{Purpose: "p"}, File{Name: "first.txt"}, Inline, collectUpload(results))
	}()

	assert.NotEmpty(t, awaitValue(t, returned))
	require.NoError(t, awaitValue(t, results).err)
	require.NoError(t, awaitValue(t, results).err)
}

func TestQueue_UnsubscribeStopsUpdates(t *testing.T) {
	q := newTestQueue(newSession("session-a"), succeed)

	var calls atomic.Int32
	cancel := q.subscribe(Inline, func([]PendingUpload) { calls.Add(1) })
	cancel()

	results := make(chan uploadResult, 1)
	q.enqueue("", Target{}, File{}, Inline, collectUpload(results))
	awaitValue(t, results)

	assert.EqualValues(t, 1, calls.Load())
}

func TestMemoryIndex(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, ok, err := idx.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Put(ctx, UploadedMeta{UploadID: "u1", Key: "k"}))
	meta, ok, err := idx.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k", meta.Key)
}
