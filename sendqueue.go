package signalr

import (
	"context"
	"sync"
)

// sendQueue is an ordered, coalescing outbound serialiser, per spec.md
// §4.H/§9. The teacher's send path ("the source contains two drafts, one
// of which is incorrect") is not reused; this is a fresh multi-producer,
// single-consumer design per the spec's corrected note: producers
// enqueue onto a channel, a single worker goroutine drains everything
// currently buffered into one batch and writes it to the transport in one
// call, preserving per-producer FIFO order and failing every waiter of a
// failed batch with the same error.
type sendQueue struct {
	mu        sync.Mutex
	items     chan queuedPayload
	done      chan struct{}
	failed    error
	send      func(ctx context.Context, payload interface{}) error
	binary    bool
	stopped   bool
	sendCtx   context.Context
	cancelCtx context.CancelFunc
}

type queuedPayload struct {
	payload interface{}
	result  chan error
}

// newSendQueue creates a sendQueue that flushes batches through send. If
// binary is true, payloads are concatenated as []byte; otherwise as string
// concatenation of UTF-8 frames (each already record-separator terminated,
// so concatenation needs no extra delimiter).
func newSendQueue(send func(ctx context.Context, payload interface{}) error, binary bool) *sendQueue {
	sendCtx, cancel := context.WithCancel(context.Background())
	q := &sendQueue{
		items:     make(chan queuedPayload, 256),
		done:      make(chan struct{}),
		send:      send,
		binary:    binary,
		sendCtx:   sendCtx,
		cancelCtx: cancel,
	}
	go q.run()
	return q
}

// Send appends payload to the FIFO buffer and returns once it has been
// flushed to the transport, or the queue has failed/stopped, per spec.md
// §4.H.
func (q *sendQueue) Send(ctx context.Context, payload interface{}) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrCancelled
	}
	if q.failed != nil {
		err := q.failed
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()

	result := make(chan error, 1)
	select {
	case q.items <- queuedPayload{payload: payload, result: result}:
	case <-q.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-q.done:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the single background worker. It drains whatever is currently
// buffered into one batch per wakeup - the coalescing semantic - and calls
// send exactly once per batch.
func (q *sendQueue) run() {
	for {
		var first queuedPayload
		select {
		case first = <-q.items:
		case <-q.done:
			return
		}

		batch := []queuedPayload{first}
	drain:
		for {
			select {
			case next := <-q.items:
				batch = append(batch, next)
			default:
				break drain
			}
		}

		payload, err := coalesce(batch, q.binary)
		if err == nil {
			err = q.send(q.sendCtx, payload)
		}
		if err != nil && q.sendCtx.Err() != nil {
			err = ErrCancelled
		}
		if err != nil {
			q.mu.Lock()
			q.failed = err
			q.mu.Unlock()
		}
		for _, item := range batch {
			item.result <- err
		}
	}
}

// coalesce concatenates a batch's payloads in append order, byte-wise.
func coalesce(batch []queuedPayload, binary bool) (interface{}, error) {
	if len(batch) == 1 {
		return batch[0].payload, nil
	}
	if binary {
		var out []byte
		for _, item := range batch {
			b, ok := item.payload.([]byte)
			if !ok {
				return nil, ErrProtocolMismatch
			}
			out = append(out, b...)
		}
		return out, nil
	}
	var out string
	for _, item := range batch {
		s, ok := item.payload.(string)
		if !ok {
			return nil, ErrProtocolMismatch
		}
		out += s
	}
	return out, nil
}

// Stop cancels any in-flight waiters and stops the worker. It does not
// flush anything new, per spec.md §4.H.
func (q *sendQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()
	q.cancelCtx()
	close(q.done)
}
