// Package dispatch runs blocking operations on a bounded worker pool so the
// HTTP goroutines that submit them only wait for their own result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrStopped is returned by Do once the dispatcher has been stopped.
var ErrStopped = errors.New("dispatcher stopped")

// Op is a blocking unit of work. The context it receives carries the
// caller's values but is never cancelled.
type Op func(ctx context.Context) (any, error)

// Config contains configuration for the dispatcher.
type Config struct {
	// WorkerCount sizes the shared pool.
	WorkerCount int `json:"workerCount" mapstructure:"workerCount"`
	QueueSize   int `json:"queueSize" mapstructure:"queueSize"`

	// Lanes gives the named operations their own workers and queue. An
	// operation with a lane never runs on, or waits for, the shared pool.
	Lanes map[string]int `json:"lanes" mapstructure:"lanes"`
}

// DefaultWorkers is the shared pool size used by DefaultConfig.
const DefaultWorkers = 40

// DefaultConfig returns 40 shared workers, a queue of 64 and a four-worker
// lane for training.
func DefaultConfig() Config {
	return Config{
		WorkerCount: DefaultWorkers,
		QueueSize:   64,
		Lanes:       map[string]int{"train": 4},
	}
}

// Completion describes one finished operation.
type Completion struct {
	ID         string
	Name       string
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Duration returns how long the operation ran.
func (c Completion) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

type result struct {
	value any
	err   error
}

type task struct {
	id       string
	name     string
	op       Op
	ctx      context.Context
	queuedAt time.Time
	done     chan result
}

// lane is a set of workers fed by one bounded queue.
type lane struct {
	name     string
	queue    chan *task
	workers  int
	inFlight atomic.Int64
}

// Dispatcher executes operations on WorkerCount goroutines fed by a bounded
// queue, plus one reserved lane per configured operation name. It imposes
// no ordering or mutual exclusion between operations.
type Dispatcher struct {
	logger *slog.Logger

	shared    *lane
	lanes     map[string]*lane
	queueSize int

	// done is closed by Stop; finished is closed once every worker returned.
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu         sync.RWMutex
	onComplete []func(Completion)

	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a dispatcher. Call Start before submitting work.
func New(config Config, logger *slog.Logger) *Dispatcher {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	d := &Dispatcher{
		logger:    logger,
		shared:    newLane("shared", config.WorkerCount, config.QueueSize),
		lanes:     make(map[string]*lane, len(config.Lanes)),
		queueSize: config.QueueSize,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	for name, workers := range config.Lanes {
		if workers <= 0 {
			continue
		}
		d.lanes[name] = newLane(name, workers, config.QueueSize)
	}
	return d
}

func newLane(name string, workers, queueSize int) *lane {
	return &lane{
		name:    name,
		queue:   make(chan *task, queueSize),
		workers: workers,
	}
}

// laneFor returns the reserved lane for name, or the shared pool.
func (d *Dispatcher) laneFor(name string) *lane {
	if l, ok := d.lanes[name]; ok {
		return l
	}
	return d.shared
}

// allLanes returns the shared pool followed by the reserved lanes by name.
func (d *Dispatcher) allLanes() []*lane {
	names := make([]string, 0, len(d.lanes))
	for name := range d.lanes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []*lane{d.shared}
	for _, name := range names {
		out = append(out, d.lanes[name])
	}
	return out
}

// OnComplete registers fn to be called after every operation finishes.
func (d *Dispatcher) OnComplete(fn func(Completion)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onComplete = append(d.onComplete, fn)
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for _, l := range d.allLanes() {
		d.logger.Info("Starting dispatch lane",
			"lane", l.name,
			"workers", l.workers,
			"queueSize", d.queueSize,
		)
		for i := 0; i < l.workers; i++ {
			d.wg.Add(1)
			go d.worker(l, i)
		}
	}

	go func() {
		d.wg.Wait()
		close(d.finished)
	}()
}

// Stop stops accepting work, lets running operations finish and fails the
// ones still queued with ErrStopped.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.logger.Info("Stopping dispatcher")
	d.stopOnce.Do(func() { close(d.done) })

	select {
	case <-d.finished:
		d.logger.Info("Dispatcher stopped cleanly")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatcher shutdown timed out after %v", timeout)
	}
}

// Do runs op on a worker and blocks until it finishes. Errors and panics
// raised by op come back as *Failure. If ctx ends first, Do returns ctx.Err()
// while op keeps running to completion and its result is dropped.
func (d *Dispatcher) Do(ctx context.Context, name string, op Op) (any, error) {
	select {
	case <-d.done:
		return nil, ErrStopped
	default:
	}

	t := &task{
		id:       uuid.New().String(),
		name:     name,
		op:       op,
		ctx:      context.WithoutCancel(ctx),
		queuedAt: time.Now(),
		done:     make(chan result, 1),
	}

	l := d.laneFor(name)
	select {
	case l.queue <- t:
		d.logger.Debug("Operation queued", "id", t.id, "op", name, "queueLength", len(l.queue))
	case <-d.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-ctx.Done():
		d.logger.Warn("Caller stopped waiting for operation",
			"id", t.id,
			"op", name,
			"error", ctx.Err().Error(),
		)
		return nil, ctx.Err()
	case <-d.finished:
		// Enqueued after the workers drained the queue.
		select {
		case res := <-t.done:
			return res.value, res.err
		default:
			return nil, ErrStopped
		}
	}
}

// Call is a typed wrapper around Do.
func Call[T any](ctx context.Context, d *Dispatcher, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := d.Do(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

func (d *Dispatcher) worker(l *lane, id int) {
	defer d.wg.Done()

	d.logger.Debug("Dispatch worker started", "lane", l.name, "workerId", id)

	for {
		select {
		case t := <-l.queue:
			// Stop may have closed done while the queue was also ready.
			if !d.IsRunning() {
				t.done <- result{err: ErrStopped}
				continue
			}
			d.process(l, t)
		case <-d.done:
			d.drain(l)
			d.logger.Debug("Dispatch worker stopping", "lane", l.name, "workerId", id)
			return
		}
	}
}

// drain fails whatever is left in the lane's queue.
func (d *Dispatcher) drain(l *lane) {
	for {
		select {
		case t := <-l.queue:
			t.done <- result{err: ErrStopped}
		default:
			return
		}
	}
}

func (d *Dispatcher) process(l *lane, t *task) {
	d.inFlight.Add(1)
	l.inFlight.Add(1)
	defer func() {
		l.inFlight.Add(-1)
		d.inFlight.Add(-1)
	}()

	c := Completion{
		ID:        t.id,
		Name:      t.name,
		QueuedAt:  t.queuedAt,
		StartedAt: time.Now(),
	}

	res := d.run(t)

	c.FinishedAt = time.Now()
	c.Err = res.err

	if res.err != nil {
		d.failed.Add(1)
		d.logger.Error("Operation failed",
			"id", t.id,
			"op", t.name,
			"error", res.err.Error(),
			"duration", c.Duration(),
		)
	} else {
		d.completed.Add(1)
		d.logger.Info("Operation completed",
			"id", t.id,
			"op", t.name,
			"duration", c.Duration(),
		)
	}

	t.done <- res
	d.notify(c)
}

// run executes the operation, turning errors and panics into *Failure.
func (d *Dispatcher) run(t *task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: &Failure{Op: t.name, Panic: r, Stack: debug.Stack()}}
		}
	}()

	v, err := t.op(t.ctx)
	if err != nil {
		return result{err: &Failure{Op: t.name, Err: err}}
	}
	return result{value: v}
}

func (d *Dispatcher) notify(c Completion) {
	d.mu.RLock()
	hooks := d.onComplete
	d.mu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("Completion hook panicked", "id", c.ID, "panic", fmt.Sprint(r))
				}
			}()
			fn(c)
		}()
	}
}

// LaneStats describes one reserved lane.
type LaneStats struct {
	Workers     int   `json:"workers"`
	QueueLength int   `json:"queueLength"`
	InFlight    int64 `json:"inFlight"`
}

// Stats contains dispatcher statistics. The top-level queue and worker
// figures cover the shared pool; reserved lanes are listed separately.
type Stats struct {
	QueueLength   int                  `json:"queueLength"`
	QueueCapacity int                  `json:"queueCapacity"`
	Workers       int                  `json:"workers"`
	InFlight      int64                `json:"inFlight"`
	Completed     int64                `json:"completed"`
	Failed        int64                `json:"failed"`
	Running       bool                 `json:"running"`
	Lanes         map[string]LaneStats `json:"lanes,omitempty"`
}

// Stats returns a snapshot of the dispatcher's counters. InFlight counts
// operations in every lane.
func (d *Dispatcher) Stats() Stats {
	stats := Stats{
		QueueLength:   len(d.shared.queue),
		QueueCapacity: d.queueSize,
		Workers:       d.shared.workers,
		InFlight:      d.inFlight.Load(),
		Completed:     d.completed.Load(),
		Failed:        d.failed.Load(),
		Running:       d.IsRunning(),
	}
	if len(d.lanes) > 0 {
		stats.Lanes = make(map[string]LaneStats, len(d.lanes))
		for name, l := range d.lanes {
			stats.Lanes[name] = LaneStats{
				Workers:     l.workers,
				QueueLength: len(l.queue),
				InFlight:    l.inFlight.Load(),
			}
		}
	}
	return stats
}

// IsRunning returns true until Stop is called.
func (d *Dispatcher) IsRunning() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}
