package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vip/internal/slogutil"
)

func newTestDispatcher(t *testing.T, workers int) *Dispatcher {
	t.Helper()
	d := New(Config{WorkerCount: workers, QueueSize: 16}, slogutil.NewDiscardLogger())
	d.Start()
	t.Cleanup(func() { _ = d.Stop(5 * time.Second) })
	return d
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WorkerCount != DefaultWorkers {
		t.Errorf("WorkerCount = %d, want %d", cfg.WorkerCount, DefaultWorkers)
	}
	if cfg.QueueSize != 64 {
		t.Errorf("QueueSize = %d, want 64", cfg.QueueSize)
	}
	if cfg.Lanes["train"] < 1 {
		t.Errorf("Lanes = %v, want a train lane", cfg.Lanes)
	}
}

func TestLaneKeepsSharedPoolFree(t *testing.T) {
	// One shared worker and one train worker: a stuck training run must
	// leave the shared worker for everything else.
	d := New(Config{WorkerCount: 1, QueueSize: 4, Lanes: map[string]int{"train": 1}}, slogutil.NewDiscardLogger())
	d.Start()

	release := make(chan struct{})
	trainDone := make(chan error, 1)
	go func() {
		_, err := d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		})
		trainDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().Lanes["train"].InFlight != 1 {
		if time.Now().After(deadline) {
			t.Fatal("training never started")
		}
		time.Sleep(time.Millisecond)
	}

	predicted := make(chan error, 1)
	go func() {
		_, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
			return 1, nil
		})
		predicted <- err
	}()

	select {
	case err := <-predicted:
		if err != nil {
			t.Errorf("predict error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("predict waited for the train lane")
	}

	stats := d.Stats()
	if stats.Workers != 1 || stats.Lanes["train"].Workers != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	close(release)
	if err := <-trainDone; err != nil {
		t.Errorf("train error = %v", err)
	}
	if err := d.Stop(time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestZeroLaneUsesSharedPool(t *testing.T) {
	d := New(Config{WorkerCount: 2, QueueSize: 4, Lanes: map[string]int{"train": 0}}, slogutil.NewDiscardLogger())
	if _, ok := d.Stats().Lanes["train"]; ok {
		t.Error("a lane with no workers should not be created")
	}
}

func TestStopFailsQueuedOperations(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := New(Config{WorkerCount: 1, QueueSize: 8}, slogutil.NewDiscardLogger())
		d.Start()

		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_, _ = d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
				close(started)
				<-release
				return nil, nil
			})
		}()
		<-started

		const queued = 4
		var ran atomic.Int64
		errs := make(chan error, queued)
		for j := 0; j < queued; j++ {
			go func() {
				_, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
					ran.Add(1)
					return nil, nil
				})
				errs <- err
			}()
		}

		deadline := time.Now().Add(2 * time.Second)
		for d.Stats().QueueLength != queued {
			if time.Now().After(deadline) {
				t.Fatal("operations never queued")
			}
			time.Sleep(time.Millisecond)
		}

		stopped := make(chan error, 1)
		go func() { stopped <- d.Stop(2 * time.Second) }()
		for d.IsRunning() {
			time.Sleep(time.Millisecond)
		}
		close(release)

		for j := 0; j < queued; j++ {
			if err := <-errs; !errors.Is(err, ErrStopped) {
				t.Fatalf("queued op error = %v, want ErrStopped", err)
			}
		}
		if n := ran.Load(); n != 0 {
			t.Fatalf("%d queued operations ran after Stop", n)
		}
		if err := <-stopped; err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
}

func TestNewAppliesMinimums(t *testing.T) {
	d := New(Config{}, slogutil.NewDiscardLogger())
	stats := d.Stats()
	if stats.Workers != 1 {
		t.Errorf("Workers = %d, want 1", stats.Workers)
	}
	if stats.QueueCapacity != 64 {
		t.Errorf("QueueCapacity = %d, want 64", stats.QueueCapacity)
	}
}

func TestDoReturnsValue(t *testing.T) {
	d := newTestDispatcher(t, 2)

	v, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
		return []int{1}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	got, ok := v.([]int)
	if !ok || len(got) != 1 || got[0] != 1 {
		t.Errorf("Do() = %v, want [1]", v)
	}
}

func TestDoWrapsError(t *testing.T) {
	d := newTestDispatcher(t, 1)
	cause := errors.New("model file not found")

	_, err := d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
		return nil, cause
	})
	if err == nil {
		t.Fatal("Do() expected error")
	}

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error type = %T, want *Failure", err)
	}
	if f.Op != "train" {
		t.Errorf("Op = %q, want train", f.Op)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if err.Error() != "model file not found" {
		t.Errorf("Error() = %q, want the operation's message", err.Error())
	}
	if !IsFailure(err) {
		t.Error("IsFailure() = false")
	}
}

func TestDoRecoversPanic(t *testing.T) {
	d := newTestDispatcher(t, 1)

	_, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
		panic("index out of range")
	})

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error type = %T, want *Failure", err)
	}
	if f.Panic != "index out of range" {
		t.Errorf("Panic = %v", f.Panic)
	}
	if len(f.Stack) == 0 {
		t.Error("Stack should be captured")
	}
	if err.Error() != "panic: index out of range" {
		t.Errorf("Error() = %q", err.Error())
	}

	// The worker that recovered must still serve work.
	v, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("Do() after panic = %v, %v", v, err)
	}
}

func TestSlowOperationDoesNotBlockOthers(t *testing.T) {
	d := newTestDispatcher(t, 2)

	release := make(chan struct{})
	started := make(chan struct{})
	slowDone := make(chan error, 1)

	go func() {
		_, err := d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
		slowDone <- err
	}()

	<-started

	fast := make(chan error, 1)
	go func() {
		_, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
			return 0, nil
		})
		fast <- err
	}()

	select {
	case err := <-fast:
		if err != nil {
			t.Errorf("fast op error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast op blocked behind slow op")
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Errorf("slow op error = %v", err)
	}
}

func TestConcurrentCallsKeepTheirOwnResults(t *testing.T) {
	d := newTestDispatcher(t, 4)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Call(context.Background(), d, "predict", func(ctx context.Context) (int, error) {
				time.Sleep(time.Millisecond)
				return i * 2, nil
			})
			if err != nil {
				errs <- err
				return
			}
			if got != i*2 {
				errs <- errors.New("result delivered to the wrong caller")
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCallerContextCancellation(t *testing.T) {
	d := newTestDispatcher(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	finished := make(chan error, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.Do(ctx, "train", func(opCtx context.Context) (any, error) {
		<-release
		finished <- opCtx.Err()
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}

	// The operation keeps running with an uncancelled context.
	close(release)
	select {
	case opErr := <-finished:
		if opErr != nil {
			t.Errorf("operation context err = %v, want nil", opErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not finish")
	}
}

func TestOnComplete(t *testing.T) {
	d := New(Config{WorkerCount: 1, QueueSize: 4}, slogutil.NewDiscardLogger())

	got := make(chan Completion, 2)
	d.OnComplete(func(c Completion) { got <- c })
	d.OnComplete(func(c Completion) { panic("hook") })
	d.Start()
	defer func() { _ = d.Stop(time.Second) }()

	_, _ = d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	select {
	case c := <-got:
		if c.ID == "" {
			t.Error("ID should be set")
		}
		if c.Name != "train" {
			t.Errorf("Name = %q, want train", c.Name)
		}
		if c.Err == nil || c.Err.Error() != "boom" {
			t.Errorf("Err = %v, want boom", c.Err)
		}
		if c.FinishedAt.Before(c.StartedAt) || c.StartedAt.Before(c.QueuedAt) {
			t.Error("timestamps out of order")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hook not called")
	}

	// A panicking hook must not take the worker down.
	if _, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) { return 1, nil }); err != nil {
		t.Errorf("Do() error = %v", err)
	}
}

func TestStats(t *testing.T) {
	d := newTestDispatcher(t, 2)

	_, _ = d.Do(context.Background(), "ok", func(ctx context.Context) (any, error) { return nil, nil })
	_, _ = d.Do(context.Background(), "bad", func(ctx context.Context) (any, error) { return nil, errors.New("x") })

	stats := d.Stats()
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if !stats.Running {
		t.Error("Running = false")
	}
	if stats.Workers != 2 {
		t.Errorf("Workers = %d, want 2", stats.Workers)
	}
}

func TestDoAfterStop(t *testing.T) {
	d := New(Config{WorkerCount: 1, QueueSize: 4}, slogutil.NewDiscardLogger())
	d.Start()
	if err := d.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if d.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	_, err := d.Do(context.Background(), "predict", func(ctx context.Context) (any, error) {
		t.Error("operation should not run")
		return nil, nil
	})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Do() error = %v, want ErrStopped", err)
	}

	// Stop is idempotent.
	if err := d.Stop(time.Second); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestStopTimeout(t *testing.T) {
	d := New(Config{WorkerCount: 1, QueueSize: 4}, slogutil.NewDiscardLogger())
	d.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = d.Do(context.Background(), "train", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	if err := d.Stop(10 * time.Millisecond); err == nil {
		t.Error("Stop() expected timeout error")
	}
	close(release)
}
