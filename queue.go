package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is one received queue message: a JSON array of jobs plus the
// means to acknowledge it.
type Message struct {
	body   json.RawMessage
	delete func(ctx context.Context) error
}

func (m Message) Body() json.RawMessage { return m.body }

func (m Message) Delete(ctx context.Context) error {
	if m.delete == nil {
		return nil
	}
	return m.delete(ctx)
}

// Batch buffers jobs for a single append/flush cycle. Append may flush
// internally if adding the next job would overflow the implementation's
// size or count budget.
type Batch interface {
	Append(ctx context.Context, job Job) error
	Flush(ctx context.Context) error
}

// Queue is the transport abstraction: append a batch of serialized jobs,
// receive and acknowledge messages. Grounded on
// original_source/joerd/{dispatcher,queue/sqs}.py.
type Queue interface {
	StartBatch(maxBatchLen int) Batch
	ReceiveMessages(ctx context.Context) (<-chan Message, error)
}

// QueueFactory constructs a Queue from plugin-specific config options.
type QueueFactory func(opts map[string]any) (Queue, error)

var queueRegistry = map[string]QueueFactory{}

func RegisterQueue(name string, f QueueFactory) {
	queueRegistry[name] = f
}

func NewQueue(opts map[string]any) (Queue, error) {
	t, _ := opts["type"].(string)
	f, ok := queueRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown queue type %q", ErrConfig, t)
	}
	return f(opts)
}
