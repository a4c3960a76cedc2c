package remotestorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/google/uuid"
)

var (
	errNoSession      = errors.New("no active session")
	errSessionChanged = errors.New("session changed before upload completed")
)

// Item is one queued upload. The queue owns it until its completion runs.
type Item struct {
	ID        string
	SessionID string
	Endpoint  string
	Target    Target
	File      File

	// guarded by queue.mu
	stagingPath string
	attempts    int

	on   Executor
	done func(UploadedMeta, error)
}

type queueOptions struct {
	sizeLimit     int
	retryInterval time.Duration
	maxAttempts   int
}

type observer struct {
	on Executor
	fn func([]PendingUpload)
}

// queue runs uploads strictly in arrival order, one at a time.
type queue struct {
	mu           sync.Mutex
	items        []*Item
	active       *Item
	retryPending bool
	observers    map[int]observer
	nextObserver int
	version      uint64
	published    uint64

	opts     queueOptions
	session  SessionContext
	index    UploadIndex
	stage    func(item *Item) (string, error)
	unstage  func(path string)
	activate func(item *Item, finish func(UploadedMeta, error))
	now      func() time.Time
	logger   logging.Logger
}

func (q *queue) enqueue(endpoint string, target Target, file File, on Executor, done func(UploadedMeta, error)) string {
	on = orBackground(on)

	sessionID, ok := q.session.CurrentSessionToken()
	if !ok {
		on.Execute(func() { done(UploadedMeta{}, unknown(0, errNoSession)) })
		return ""
	}
	if len(file.Contents) > q.opts.sizeLimit {
		on.Execute(func() { done(UploadedMeta{}, ErrSizeLimit) })
		return ""
	}

	item := &Item{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Endpoint:  endpoint,
		Target:    target,
		File:      file,
		on:        on,
		done:      done,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	snap, v := q.snapshotLocked()
	q.mu.Unlock()

	q.logger.Debug(context.Background(), "upload queued", "upload_id", item.ID, "size", len(file.Contents))
	q.publish(snap, v)

	go q.stageItem(item)
	q.activateNext(false)
	return item.ID
}

func (q *queue) stageItem(item *Item) {
	path, err := q.stage(item)

	q.mu.Lock()
	queued := q.indexLocked(item) >= 0
	if err == nil && queued {
		item.stagingPath = path
	}
	if err != nil && queued {
		q.removeLocked(item)
	}
	snap, v := q.snapshotLocked()
	q.mu.Unlock()

	switch {
	case err != nil && queued:
		q.logger.Warn(context.Background(), "staging failed", "upload_id", item.ID, "error", err)
		q.deliver(item, UploadedMeta{}, fmt.Errorf("%w: %v", ErrCannotPrepare, err))
	case err == nil && !queued:
		q.unstage(path)
	}

	q.publish(snap, v)
	q.activateNext(false)
}

// activateNext hands the head item to the activation hook when nothing is
// active. Items of an ended session are dropped on the way; an unstaged head
// is re-checked after the retry interval, for at most maxAttempts rounds.
func (q *queue) activateNext(fromRetry bool) {
	var dropped []*Item
	var stale []*Item
	var next *Item

	q.mu.Lock()
	for q.active == nil && len(q.items) > 0 {
		head := q.items[0]

		current, ok := q.session.CurrentSessionToken()
		if !ok || head.SessionID != current {
			q.items = q.items[1:]
			dropped = append(dropped, head)
			continue
		}

		if head.stagingPath == "" {
			if fromRetry {
				head.attempts++
				fromRetry = false
				if head.attempts > q.opts.maxAttempts {
					q.items = q.items[1:]
					stale = append(stale, head)
					continue
				}
			}
			q.scheduleRetryLocked()
			break
		}

		q.active = head
		next = head
	}
	changed := len(dropped) > 0 || len(stale) > 0 || next != nil
	snap, v := q.snapshotLocked()
	q.mu.Unlock()

	ctx := context.Background()
	for _, item := range dropped {
		q.logger.Info(ctx, "upload dropped, session changed", "upload_id", item.ID)
		q.unstage(item.stagingPath)
		q.deliver(item, UploadedMeta{}, unknown(0, errSessionChanged))
	}
	for _, item := range stale {
		q.logger.Warn(ctx, "upload dropped, staging timed out", "upload_id", item.ID, "attempts", item.attempts)
		q.deliver(item, UploadedMeta{}, ErrCannotPrepare)
	}
	if changed {
		q.publish(snap, v)
	}

	if next != nil {
		q.logger.Debug(ctx, "upload activated", "upload_id", next.ID)
		q.activate(next, func(meta UploadedMeta, err error) {
			q.complete(next, meta, err)
		})
	}
}

func (q *queue) scheduleRetryLocked() {
	if q.retryPending {
		return
	}
	q.retryPending = true
	time.AfterFunc(q.opts.retryInterval, func() {
		q.mu.Lock()
		q.retryPending = false
		q.mu.Unlock()
		q.activateNext(true)
	})
}

// complete records the engine's result for the active item. A success under
// a session other than the item's is reported as a failure.
func (q *queue) complete(item *Item, meta UploadedMeta, err error) {
	q.mu.Lock()
	if q.active == item {
		q.active = nil
	}
	q.removeLocked(item)
	current, ok := q.session.CurrentSessionToken()
	snap, v := q.snapshotLocked()
	q.mu.Unlock()

	q.unstage(item.stagingPath)

	ctx := context.Background()
	if err == nil && (!ok || current != item.SessionID) {
		err = unknown(0, errSessionChanged)
	}

	if err != nil {
		q.logger.Warn(ctx, "upload failed", "upload_id", item.ID, "error", err)
		q.deliver(item, UploadedMeta{}, err)
	} else {
		meta.UploadID = item.ID
		meta.Target = item.Target
		meta.Name = item.File.Name
		meta.Mime = item.File.Mime
		meta.Size = len(item.File.Contents)
		meta.UploadedAt = q.now()

		if err := q.index.Put(ctx, meta); err != nil {
			q.logger.Warn(ctx, "upload not indexed", "upload_id", item.ID, "error", err)
		}
		q.logger.Info(ctx, "upload finished", "upload_id", item.ID, "key", meta.Key)
		q.deliver(item, meta, nil)
	}

	q.publish(snap, v)
	q.activateNext(false)
}

func (q *queue) deliver(item *Item, meta UploadedMeta, err error) {
	done := item.done
	item.on.Execute(func() { done(meta, err) })
}

func (q *queue) status(target Target) (UploadingStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.Target != target {
			continue
		}
		if item.stagingPath == "" {
			return StatusPreparing, true
		}
		return StatusUploading, true
	}
	return StatusPreparing, false
}

func (q *queue) findCompleted(uploadID string) (UploadedMeta, bool) {
	meta, ok, err := q.index.Get(context.Background(), uploadID)
	if err != nil {
		q.logger.Warn(context.Background(), "upload index lookup failed", "upload_id", uploadID, "error", err)
		return UploadedMeta{}, false
	}
	return meta, ok
}

// subscribe registers fn for the pending list; it gets the current list
// right away and again after every change. The returned func unsubscribes.
func (q *queue) subscribe(on Executor, fn func([]PendingUpload)) func() {
	on = orBackground(on)

	q.mu.Lock()
	id := q.nextObserver
	q.nextObserver++
	if q.observers == nil {
		q.observers = make(map[int]observer)
	}
	q.observers[id] = observer{on: on, fn: fn}
	snap := q.pendingLocked()
	q.mu.Unlock()

	on.Execute(func() { fn(snap) })

	return func() {
		q.mu.Lock()
		delete(q.observers, id)
		q.mu.Unlock()
	}
}

// publish notifies observers unless a newer snapshot was already sent.
// Callbacks run without the queue lock held, so an observer may call back
// into the queue.
func (q *queue) publish(snap []PendingUpload, v uint64) {
	q.mu.Lock()
	if v <= q.published {
		q.mu.Unlock()
		return
	}
	q.published = v

	observers := make([]observer, 0, len(q.observers))
	for _, o := range q.observers {
		observers = append(observers, o)
	}
	q.mu.Unlock()

	for _, o := range observers {
		fn := o.fn
		o.on.Execute(func() { fn(snap) })
	}
}

func (q *queue) snapshotLocked() ([]PendingUpload, uint64) {
	q.version++
	return q.pendingLocked(), q.version
}

func (q *queue) pendingLocked() []PendingUpload {
	out := make([]PendingUpload, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, PendingUpload{
			ID:     item.ID,
			Target: item.Target,
			Name:   item.File.Name,
			Mime:   item.File.Mime,
			Size:   len(item.File.Contents),
			Staged: item.stagingPath != "",
			Active: item == q.active,
		})
	}
	return out
}

func (q *queue) indexLocked(item *Item) int {
	for i, it := range q.items {
		if it == item {
			return i
		}
	}
	return -1
}

func (q *queue) removeLocked(item *Item) {
	if i := q.indexLocked(item); i >= 0 {
		q.items = append(q.items[:i:i], q.items[i+1:]...)
	}
}
