package main

import (
	"context"
)

func init() {
	RegisterQueue("direct", func(opts map[string]any) (Queue, error) {
		bufSize := optInt(opts, "buffer_size", 1024)
		return NewDirectQueue(bufSize), nil
	})
}

// DirectQueue is an in-process, channel-backed Queue: every appended job
// is handed straight to a receiver in the same process, with no wire
// serialization round-trip needed (it still round-trips through JSON so
// behavior matches the remote queue exactly). Used by the `server`
// subcommand when no remote queue is configured, and by tests.
type DirectQueue struct {
	messages chan Message
}

func NewDirectQueue(bufSize int) *DirectQueue {
	return &DirectQueue{messages: make(chan Message, bufSize)}
}

func (q *DirectQueue) StartBatch(maxBatchLen int) Batch {
	return &directBatch{queue: q}
}

func (q *DirectQueue) ReceiveMessages(ctx context.Context) (<-chan Message, error) {
	return q.messages, nil
}

// Close signals that no more jobs will be appended, so a range loop over
// ReceiveMessages' channel terminates.
func (q *DirectQueue) Close() {
	close(q.messages)
}

type directBatch struct {
	queue *DirectQueue
}

func (b *directBatch) Append(ctx context.Context, job Job) error {
	raw, err := EncodeJob(job)
	if err != nil {
		return err
	}
	body, err := wrapAsMessageBody(raw)
	if err != nil {
		return err
	}
	select {
	case b.queue.messages <- Message{body: body, delete: func(context.Context) error { return nil }}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *directBatch) Flush(ctx context.Context) error { return nil }

// wrapAsMessageBody wraps a single encoded job as the one-element JSON
// array every queue message body is shaped as.
func wrapAsMessageBody(job []byte) ([]byte, error) {
	return append(append([]byte("["), job...), ']'), nil
}
