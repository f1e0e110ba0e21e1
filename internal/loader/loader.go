// Package loader decodes large case artifacts (geometry, mesh data) off
// the interactive goroutine. Requests run on a bounded worker pool; for
// any one resource path the newest request wins and earlier in-flight
// ones are cancelled. Completion callbacks are delivered by a single
// dispatch goroutine, so they are serialized and never concurrent with
// each other.
package loader

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nextfoam/biprop/internal/events"
	"github.com/nextfoam/biprop/internal/fifo"
)

// DefaultWorkers is the decode pool size when none is configured.
const DefaultWorkers = 4

// Outcome is the terminal state of a load request.
type Outcome int

// Load outcomes. Every request reaches exactly one of these.
const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Decoder turns raw file bytes into a decoded artifact.
type Decoder func(data []byte) (any, error)

// Result is delivered to the completion callback.
// Generation identifies the request; callers that issued several loads
// for one path compare it against their newest handle to spot stale
// callbacks.
type Result struct {
	Path       string
	Generation uint64
	Outcome    Outcome
	Value      any
	Err        error
}

// Callback receives the terminal outcome of a request.
type Callback func(Result)

// Handle identifies one load request and allows cancelling it.
type Handle struct {
	req *request
}

// Path returns the resource path of the request.
func (h *Handle) Path() string { return h.req.path }

// Generation returns the request's per-path generation.
func (h *Handle) Generation() uint64 { return h.req.gen }

// Cancel requests cancellation. Idempotent; a decode already running
// finishes internally and its result is discarded.
func (h *Handle) Cancel() {
	h.req.markCancelled()
}

type request struct {
	path      string
	gen       uint64
	decode    Decoder
	callback  Callback
	loader    *Loader
	once      sync.Once
	cancelled atomic.Bool
}

// markCancelled settles the request as Cancelled if it has no terminal
// outcome yet.
func (r *request) markCancelled() {
	r.cancelled.Store(true)
	r.finish(Result{Path: r.path, Generation: r.gen, Outcome: OutcomeCancelled})
}

// finish records the request's single terminal outcome. Later calls are
// discarded.
func (r *request) finish(res Result) {
	r.once.Do(func() {
		r.loader.settle(r, res)
	})
}

// Option configures a Loader.
type Option func(*Loader)

// WithBus publishes a LoadFinished event for every terminal outcome.
func WithBus(bus events.Bus) Option {
	return func(l *Loader) {
		l.bus = bus
	}
}

// Loader runs background decodes.
type Loader struct {
	mu       sync.Mutex
	work     *fifo.Queue[*request]
	results  *fifo.Queue[delivery]
	inflight map[string]*request
	gens     map[string]uint64
	closed   bool

	bus events.Bus

	workers      sync.WaitGroup
	dispatchDone chan struct{}
}

type delivery struct {
	res Result
	cb  Callback
}

// New creates a Loader with the given pool size. A size of zero or less
// falls back to DefaultWorkers.
func New(workers int, opts ...Option) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	l := &Loader{
		work:         fifo.New[*request](),
		results:      fifo.New[delivery](),
		inflight:     make(map[string]*request),
		gens:         make(map[string]uint64),
		dispatchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go l.worker()
	}
	go l.dispatch()

	return l
}

// Load reads path and decodes it on the worker pool, never on the
// caller's goroutine. If a request for the same path is in flight it is
// cancelled (its callback fires with Cancelled). onDone receives exactly
// one terminal outcome.
func (l *Loader) Load(path string, decode Decoder, onDone Callback) *Handle {
	req := &request{
		path:     path,
		decode:   decode,
		callback: onDone,
		loader:   l,
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		req.gen = 0
		req.cancelled.Store(true)
		// The dispatcher may already be gone; deliver off-goroutine so
		// the caller never runs the callback inline.
		req.once.Do(func() {
			go func() {
				if onDone != nil {
					onDone(Result{Path: path, Outcome: OutcomeCancelled})
				}
			}()
		})
		return &Handle{req: req}
	}

	l.gens[path]++
	req.gen = l.gens[path]
	prev := l.inflight[path]
	l.inflight[path] = req
	l.mu.Unlock()

	if prev != nil {
		prev.markCancelled()
	}

	l.work.Push(req)
	return &Handle{req: req}
}

// Close cancels all in-flight requests, waits for the workers and the
// dispatcher to drain, and releases the pool. Remaining requests settle
// as Cancelled before Close returns.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := make([]*request, 0, len(l.inflight))
	for _, req := range l.inflight {
		pending = append(pending, req)
	}
	l.mu.Unlock()

	for _, req := range pending {
		req.markCancelled()
	}

	l.work.Close()
	l.workers.Wait()
	l.results.Close()
	<-l.dispatchDone
}

// settle removes the request from the in-flight table and queues its
// result for dispatch.
func (l *Loader) settle(req *request, res Result) {
	l.mu.Lock()
	if l.inflight[req.path] == req {
		delete(l.inflight, req.path)
	}
	l.mu.Unlock()

	l.results.Push(delivery{res: res, cb: req.callback})
}

func (l *Loader) worker() {
	defer l.workers.Done()
	for {
		req, ok := l.work.Pop()
		if !ok {
			return
		}
		l.process(req)
	}
}

func (l *Loader) process(req *request) {
	if req.cancelled.Load() {
		return
	}

	data, err := os.ReadFile(req.path)
	if err != nil {
		req.finish(Result{
			Path:       req.path,
			Generation: req.gen,
			Outcome:    OutcomeFailed,
			Err:        fmt.Errorf("read %s: %w", req.path, err),
		})
		return
	}

	if req.cancelled.Load() {
		return
	}

	value, err := req.decode(data)
	if err != nil {
		req.finish(Result{Path: req.path, Generation: req.gen, Outcome: OutcomeFailed, Err: err})
		return
	}
	req.finish(Result{Path: req.path, Generation: req.gen, Outcome: OutcomeCompleted, Value: value})
}

// dispatch delivers callbacks one at a time, in settle order.
func (l *Loader) dispatch() {
	defer close(l.dispatchDone)
	for {
		d, ok := l.results.Pop()
		if !ok {
			return
		}
		if d.cb != nil {
			d.cb(d.res)
		}
		if l.bus != nil {
			l.bus.Publish(events.Event{Type: events.EventTypeLoadFinished, Payload: d.res})
		}
	}
}
