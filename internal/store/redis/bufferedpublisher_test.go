package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perpsignals/internal/model"
)

type fakeSink struct {
	mu    sync.Mutex
	fail  bool
	calls []string
}

func (f *fakeSink) PublishSignal(ctx context.Context, sig model.SignalOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.calls = append(f.calls, sig.Symbol)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSink) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func sigFor(symbol string) model.SignalOutput {
	return model.SignalOutput{Symbol: symbol, Direction: model.Long, TS: time.Now()}
}

func TestBufferedPublisher_PassThrough(t *testing.T) {
	sink := &fakeSink{}
	bp := NewBufferedPublisher(context.Background(), sink, NewCircuitBreaker(3, time.Second), 0)

	if err := bp.PublishSignal(context.Background(), sigFor("BTC")); err != nil {
		t.Fatalf("PublishSignal: %v", err)
	}
	if got := sink.published(); len(got) != 1 || got[0] != "BTC" {
		t.Errorf("sink saw %v, want [BTC]", got)
	}
	if bp.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", bp.PendingCount())
	}
}

func TestBufferedPublisher_BuffersWhileOpenAndReplays(t *testing.T) {
	sink := &fakeSink{fail: true}
	bp := NewBufferedPublisher(context.Background(), sink, NewCircuitBreaker(1, 50*time.Millisecond), 0)

	buffered := 0
	bp.OnBuffer = func() { buffered++ }

	// First failure trips the breaker and is buffered.
	if err := bp.PublishSignal(context.Background(), sigFor("A")); err == nil {
		t.Fatalf("expected failure to surface")
	}
	// Open breaker: rejected calls are buffered silently.
	if err := bp.PublishSignal(context.Background(), sigFor("B")); err != nil {
		t.Fatalf("buffered publish should not error, got %v", err)
	}
	if bp.PendingCount() != 2 || buffered != 2 {
		t.Fatalf("pending = %d, buffered callbacks = %d; want 2 and 2", bp.PendingCount(), buffered)
	}

	// Recover the sink and wait out the reset timeout; the next call is
	// the half-open probe and its success triggers the replay.
	sink.setFail(false)
	time.Sleep(60 * time.Millisecond)
	if err := bp.PublishSignal(context.Background(), sigFor("C")); err != nil {
		t.Fatalf("probe publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(sink.published()) == 3 && bp.PendingCount() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replay incomplete: published %v, pending %d", sink.published(), bp.PendingCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBufferedPublisher_PreFlushKeepsOrder(t *testing.T) {
	// maxFailures high enough that a sporadic failure never trips the
	// breaker; the straggler must still replay before the next signal.
	sink := &fakeSink{fail: true}
	bp := NewBufferedPublisher(context.Background(), sink, NewCircuitBreaker(5, time.Second), 0)

	if err := bp.PublishSignal(context.Background(), sigFor("A")); err == nil {
		t.Fatalf("expected failure to surface")
	}
	if bp.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", bp.PendingCount())
	}

	sink.setFail(false)
	if err := bp.PublishSignal(context.Background(), sigFor("B")); err != nil {
		t.Fatalf("PublishSignal: %v", err)
	}
	got := sink.published()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("sink saw %v, want [A B]", got)
	}
	if bp.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", bp.PendingCount())
	}
}

func TestBufferedPublisher_DropsOldestWhenFull(t *testing.T) {
	sink := &fakeSink{fail: true}
	bp := NewBufferedPublisher(context.Background(), sink, NewCircuitBreaker(10, time.Second), 2)

	for _, s := range []string{"A", "B", "C"} {
		bp.PublishSignal(context.Background(), sigFor(s))
	}
	if bp.PendingCount() != 2 {
		t.Fatalf("pending = %d, want cap 2", bp.PendingCount())
	}

	flushed := 0
	bp.OnFlush = func(n int) { flushed += n }

	sink.setFail(false)
	if err := bp.PublishSignal(context.Background(), sigFor("D")); err != nil {
		t.Fatalf("PublishSignal: %v", err)
	}
	got := sink.published()
	if len(got) != 3 || got[0] != "B" || got[1] != "C" || got[2] != "D" {
		t.Errorf("sink saw %v, want [B C D]", got)
	}
	if flushed != 2 {
		t.Errorf("OnFlush reported %d, want 2", flushed)
	}
}
