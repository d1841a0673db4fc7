package logger

import (
	"errors"
	"io"
	"sync"
)

type writeReq struct {
	line    []byte
	flushed chan error
}

// asyncWriter hands formatted lines to a single goroutine that writes them
// to every sink in order. The first sink error sticks and is reported by
// later calls.
type asyncWriter struct {
	queue chan writeReq
	done  chan struct{}
	sinks []io.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

var errWriterClosed = errors.New("logger: writer closed")

func newAsyncWriter(sinks []io.Writer, depth int) *asyncWriter {
	if depth <= 0 {
		depth = 256
	}
	live := make([]io.Writer, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	w := &asyncWriter{
		queue: make(chan writeReq, depth),
		done:  make(chan struct{}),
		sinks: live,
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for req := range w.queue {
		if req.flushed != nil {
			req.flushed <- w.firstErr()
			continue
		}
		for _, s := range w.sinks {
			if _, err := s.Write(req.line); err != nil {
				w.fail(err)
			}
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- writeReq{line: line}
	return nil
}

// Flush waits until every line queued before the call has been written.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.firstErr()
	}
	w.queue <- writeReq{flushed: ack}
	w.mu.RUnlock()
	return <-ack
}

// Close drains the queue and stops the writer goroutine.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
