package typing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSignaler struct {
	count atomic.Int32
	err   error
}

func (c *countingSignaler) SignalTyping(_ context.Context, _ string) error {
	c.count.Add(1)
	return c.err
}

func TestTask_SignalsImmediatelyAndRepeats(t *testing.T) {
	sig := &countingSignaler{}
	task := Start(context.Background(), sig, "c1", 10*time.Millisecond, nil)
	defer task.Cancel()

	deadline := time.After(time.Second)
	for sig.count.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 signals, got %d", sig.count.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestTask_NoSignalAfterCancel(t *testing.T) {
	sig := &countingSignaler{}
	task := Start(context.Background(), sig, "c1", 5*time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)

	task.Cancel()
	after := sig.count.Load()
	time.Sleep(30 * time.Millisecond)

	if got := sig.count.Load(); got != after {
		t.Errorf("Expected no signals after cancel, got %d more", got-after)
	}
}

func TestTask_CancelIdempotent(t *testing.T) {
	task := Start(context.Background(), &countingSignaler{}, "c1", time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.Cancel()
		}()
	}
	wg.Wait()
	task.Cancel()

	select {
	case <-task.Done():
	default:
		t.Error("Expected task to be done after cancel")
	}
}

func TestTask_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, &countingSignaler{}, "c1", time.Hour, nil)
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected task to stop when parent context ends")
	}
}

func TestTask_SignalErrorsDoNotStopLoop(t *testing.T) {
	sig := &countingSignaler{err: errors.New("rate limited")}
	task := Start(context.Background(), sig, "c1", 5*time.Millisecond, nil)
	defer task.Cancel()

	time.Sleep(40 * time.Millisecond)
	if sig.count.Load() < 2 {
		t.Errorf("Expected loop to keep signalling after errors, got %d", sig.count.Load())
	}
}

type cancellingSignaler struct {
	cancel     context.CancelFunc
	calls      atomic.Int32
	afterClose atomic.Int32
}

func (c *cancellingSignaler) SignalTyping(ctx context.Context, _ string) error {
	if ctx.Err() != nil {
		c.afterClose.Add(1)
	}
	if c.calls.Add(1) == 1 {
		c.cancel()
		time.Sleep(2 * time.Millisecond)
	}
	return nil
}

func TestTask_NoSignalWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := &countingSignaler{}
	task := Start(ctx, sig, "c1", time.Millisecond, nil)
	<-task.Done()
	if got := sig.count.Load(); got != 0 {
		t.Errorf("Expected no signals for a cancelled context, got %d", got)
	}

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		sig := &cancellingSignaler{cancel: cancel}
		task := Start(ctx, sig, "c1", time.Millisecond, nil)
		<-task.Done()
		if got := sig.afterClose.Load(); got != 0 {
			t.Fatalf("Run %d: expected no signal after cancellation, got %d", i, got)
		}
		if got := sig.calls.Load(); got != 1 {
			t.Fatalf("Run %d: expected exactly one signal, got %d", i, got)
		}
	}
}
