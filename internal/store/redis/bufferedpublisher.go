package redis

import (
	"context"
	"log/slog"
	"sync"

	"perpsignals/internal/model"
)

// BufferedPublisher wraps a SignalPublisher with a circuit breaker.
// While the breaker is open, signals are buffered locally and replayed
// once the breaker closes, so a Redis outage delays publication
// instead of losing it.
type BufferedPublisher struct {
	sink model.SignalPublisher
	cb   *CircuitBreaker
	ctx  context.Context // used for replay, which runs off the caller's path

	mu     sync.Mutex
	buffer []model.SignalOutput
	maxBuf int

	OnBuffer func()          // called when a signal is buffered (for metrics)
	OnFlush  func(count int) // called after replaying buffered signals
}

// NewBufferedPublisher wraps sink. When maxBufferSize signals are
// already waiting, the oldest is dropped.
func NewBufferedPublisher(ctx context.Context, sink model.SignalPublisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.SignalOutput, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		slog.Info("redis circuit state change", "from", from.String(), "to", to.String())
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// PublishSignal implements model.SignalPublisher. A rejected call is
// buffered, not lost; a failed call counts against the breaker and is
// buffered as well. Pending signals are replayed once the sink is
// healthy again, oldest first.
func (bp *BufferedPublisher) PublishSignal(ctx context.Context, sig model.SignalOutput) error {
	if bp.PendingCount() > 0 && bp.cb.CurrentState() == StateClosed {
		bp.flush()
	}

	err := bp.cb.Execute(func() error {
		return bp.sink.PublishSignal(ctx, sig)
	})
	if err != nil {
		bp.bufferSignal(sig)
	}
	if err == ErrOpen {
		return nil
	}
	return err
}

func (bp *BufferedPublisher) bufferSignal(sig model.SignalOutput) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, sig)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered signals through the sink, oldest first. If a
// replay fails the remainder goes back on the buffer for next time.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]model.SignalOutput, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for i := range toFlush {
		if err := bp.sink.PublishSignal(bp.ctx, toFlush[i]); err != nil {
			bp.mu.Lock()
			bp.buffer = append(toFlush[i:], bp.buffer...)
			if len(bp.buffer) > bp.maxBuf {
				bp.buffer = bp.buffer[len(bp.buffer)-bp.maxBuf:]
			}
			bp.mu.Unlock()
			slog.Warn("replay interrupted", "replayed", flushed, "requeued", len(toFlush)-flushed, "err", err)
			break
		}
		flushed++
	}

	if flushed > 0 {
		slog.Info("replayed buffered signals", "count", flushed)
		if bp.OnFlush != nil {
			bp.OnFlush(flushed)
		}
	}
}

// PendingCount returns the number of buffered signals waiting for replay.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Close implements model.SignalPublisher.
func (bp *BufferedPublisher) Close() error {
	return bp.sink.Close()
}
