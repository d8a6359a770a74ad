package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// QueueAPI is the subset of the SQS client used by QueueSink and Consumer.
type QueueAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueueSink publishes events as JSON messages to SQS.
type QueueSink struct {
	client   QueueAPI
	queueURL string
}

// NewQueueSink creates a QueueSink.
func NewQueueSink(client QueueAPI, queueURL string) *QueueSink {
	return &QueueSink{client: client, queueURL: queueURL}
}

// Name implements Sink.
func (q *QueueSink) Name() string { return "sqs" }

// Send implements Sink.
func (q *QueueSink) Send(ctx context.Context, ev *domain.CanonicalEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"platform": {DataType: aws.String("String"), StringValue: aws.String(string(ev.Platform))},
			"status":   {DataType: aws.String("String"), StringValue: aws.String(string(ev.Status))},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing to SQS: %w", err)
	}
	return nil
}

// Consumer drains the event queue into a downstream sink. A message is
// deleted once delivered, or when it cannot be decoded; failed deliveries
// stay on the queue for redelivery.
type Consumer struct {
	client   QueueAPI
	queueURL string
	next     Sink
	wait     int32
	backoff  time.Duration
	done     chan struct{}
}

// NewConsumer creates a Consumer delivering to next.
func NewConsumer(client QueueAPI, queueURL string, next Sink) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		next:     next,
		wait:     20,
		backoff:  5 * time.Second,
		done:     make(chan struct{}),
	}
}

// Start begins polling in the background until ctx ends or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("postback queue consumer started", "queue", c.queueURL, "sink", c.next.Name())
	go c.poll(ctx)
}

// Stop ends polling.
func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("SQS receive error", "queue", c.queueURL, "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}
}

// PollOnce receives one batch and delivers it. It returns the number of
// events delivered.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.wait,
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range out.Messages {
		var ev domain.CanonicalEvent
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &ev); err != nil {
			logger.Warn("SQS bad message", "message_id", aws.ToString(msg.MessageId), "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.next.Send(ctx, &ev); err != nil {
			logger.Warn("SQS delivery failed, leaving message for redelivery",
				"event_id", ev.EventID, "error", err)
			continue
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
		delivered++
	}
	return delivered, nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("SQS delete failed", "queue", c.queueURL, "error", err)
	}
}
