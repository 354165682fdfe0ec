package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

func init() {
	RegisterQueue("sqs", func(opts map[string]any) (Queue, error) {
		return NewSQSQueueFromOptions(opts)
	})
}

// SQSQueue is a Queue backed by Amazon SQS, matching the original's
// boto3 SQS usage including its own inner batching of individual
// messages into SendMessageBatch calls up to MaxBatchLen. Grounded on
// original_source/joerd/queue/sqs.py.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSQueueFromOptions(opts map[string]any) (*SQSQueue, error) {
	queueName := optString(opts, "sqs_queue_name", "")
	queueURL := optString(opts, "queue_url", "")
	region := optString(opts, "region", "")
	if queueName == "" && queueURL == "" {
		return nil, fmt.Errorf("%w: sqs queue requires sqs_queue_name or queue_url", ErrConfig)
	}

	ctx := context.Background()
	configOpts := []func(*config.LoadOptions) error{}
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg)

	if queueURL == "" {
		out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
		if err != nil {
			return nil, fmt.Errorf("resolving queue url for %s: %w", queueName, err)
		}
		queueURL = *out.QueueUrl
	}

	return &SQSQueue{client: client, queueURL: queueURL}, nil
}

func (q *SQSQueue) StartBatch(maxBatchLen int) Batch {
	if maxBatchLen <= 0 || maxBatchLen > DefaultMaxBatchLen {
		maxBatchLen = DefaultMaxBatchLen
	}
	return &sqsBatch{queue: q, maxBatchLen: maxBatchLen}
}

type sqsBatch struct {
	queue       *SQSQueue
	maxBatchLen int
	pending     []types.SendMessageBatchRequestEntry
}

func (b *sqsBatch) Append(ctx context.Context, job Job) error {
	raw, err := EncodeJob(job)
	if err != nil {
		return err
	}
	body, err := wrapAsMessageBody(raw)
	if err != nil {
		return err
	}
	if len(body) > DefaultMaxBytes+1024 {
		return fmt.Errorf("%w: message body (%d bytes) exceeds SQS limits", ErrQueue, len(body))
	}
	b.pending = append(b.pending, types.SendMessageBatchRequestEntry{
		Id:          aws.String(uuid.NewString()),
		MessageBody: aws.String(string(body)),
	})
	if len(b.pending) >= b.maxBatchLen {
		return b.send(ctx)
	}
	return nil
}

func (b *sqsBatch) Flush(ctx context.Context) error {
	return b.send(ctx)
}

func (b *sqsBatch) send(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	_, err := b.queue.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(b.queue.queueURL),
		Entries:  b.pending,
	})
	b.pending = nil
	if err != nil {
		return fmt.Errorf("%w: SendMessageBatch: %v", ErrQueue, err)
	}
	return nil
}

// ReceiveMessages long-polls SQS and streams decoded messages on a
// channel until ctx is cancelled.
func (q *SQSQueue) ReceiveMessages(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(q.queueURL),
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("sqs receive failed", "error", err)
				continue
			}
			for _, m := range resp.Messages {
				receiptHandle := aws.ToString(m.ReceiptHandle)
				msg := Message{
					body: []byte(aws.ToString(m.Body)),
					delete: func(ctx context.Context) error {
						_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
							QueueUrl:      aws.String(q.queueURL),
							ReceiptHandle: aws.String(receiptHandle),
						})
						if err != nil {
							return fmt.Errorf("%w: DeleteMessage: %v", ErrQueue, err)
						}
						return nil
					},
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
