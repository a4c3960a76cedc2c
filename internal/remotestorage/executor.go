package remotestorage

import "sync"

// Executor runs callbacks on a caller-chosen execution context.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// Background runs each callback on its own goroutine.
var Background Executor = ExecutorFunc(func(fn func()) { go fn() })

// Inline runs callbacks synchronously on the delivering goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

func orBackground(e Executor) Executor {
	if e == nil {
		return Background
	}
	return e
}

// SerialExecutor runs callbacks one at a time in submission order on a
// single goroutine, like a UI thread.
type SerialExecutor struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go e.loop()
	return e
}

func (e *SerialExecutor) Execute(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, fn)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	e.mu.Unlock()
}

// Close stops accepting callbacks, drains the queued ones and waits for them.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.wake)
	e.mu.Unlock()

	<-e.done
}

func (e *SerialExecutor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if _, ok := <-e.wake; !ok {
			e.mu.Lock()
			rest := e.queue
			e.queue = nil
			e.mu.Unlock()
			for _, fn := range rest {
				fn()
			}
			return
		}
	}
}
