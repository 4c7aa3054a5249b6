package redis

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker. While the
// circuit is open, updates are buffered locally and flushed when it
// closes again, so a Redis outage costs staleness instead of data.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded updates, oldest first
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush the backlog whenever the circuit closes.
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Run reads updates from updateCh and writes them through the breaker.
// Blocks until ctx is cancelled or updateCh is closed.
func (bw *BufferedWriter) Run(ctx context.Context, updateCh <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updateCh:
			if !ok {
				return
			}
			if err := bw.WriteUpdate(u); err != nil {
				log.Errorf("[redis] write error for %s: %v", u.Symbol, err)
			}
		}
	}
}

// WriteUpdate writes one update through the circuit breaker. If the
// circuit is open, the update is buffered locally.
func (bw *BufferedWriter) WriteUpdate(u model.Update) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeUpdate(bw.ctx, u)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(u)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(u model.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Errorf("[redis] buffer marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered updates through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, data := range toFlush {
		var u model.Update
		if json.Unmarshal(data, &u) != nil {
			continue
		}
		if err := bw.writer.writeUpdate(bw.ctx, u); err != nil {
			log.Warnf("[redis] flush write error for %s: %v", u.Symbol, err)
			continue
		}
		flushed++
	}

	log.Infof("[redis] flushed %d buffered updates", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

// Close closes the wrapped writer's client.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
