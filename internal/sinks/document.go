package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/checkout-router/internal/domain"
)

// ObjectPutter is the subset of the S3 client DocumentSink uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DocumentSink stores each event as a JSON document in S3.
type DocumentSink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewDocumentSink creates a DocumentSink. prefix defaults to "postbacks".
func NewDocumentSink(client ObjectPutter, bucket, prefix string) *DocumentSink {
	if prefix == "" {
		prefix = "postbacks"
	}
	return &DocumentSink{client: client, bucket: bucket, prefix: prefix}
}

// Name implements Sink.
func (s *DocumentSink) Name() string { return "s3_document" }

// DocumentKey returns <prefix>/<platform>/<yyyy/mm/dd>/<event_id>.json, dated by receipt.
func (s *DocumentSink) DocumentKey(ev *domain.CanonicalEvent) string {
	return path.Join(s.prefix, string(ev.Platform), ev.ReceivedTimestamp.UTC().Format("2006/01/02"), ev.EventID+".json")
}

// Send implements Sink.
func (s *DocumentSink) Send(ctx context.Context, ev *domain.CanonicalEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.DocumentKey(ev)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}
