package sinks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ignite/checkout-router/internal/domain"
)

// ItemPutter is the subset of the DynamoDB client JournalSink uses.
type ItemPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DefaultJournalTTL is how long journal items live.
const DefaultJournalTTL = 365 * 24 * time.Hour

// JournalItem is one event in the journal table. Every status change of a
// transaction is a separate item under the same partition key.
type JournalItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.CanonicalEvent
	TTL int64 `dynamodbav:"TTL,omitempty"`
}

// JournalSink appends events to a DynamoDB table.
type JournalSink struct {
	client    ItemPutter
	tableName string
	ttl       time.Duration
}

// NewJournalSink creates a JournalSink. A zero ttl uses DefaultJournalTTL.
func NewJournalSink(client ItemPutter, tableName string, ttl time.Duration) *JournalSink {
	if ttl <= 0 {
		ttl = DefaultJournalTTL
	}
	return &JournalSink{client: client, tableName: tableName, ttl: ttl}
}

// Name implements Sink.
func (s *JournalSink) Name() string { return "dynamodb_journal" }

// NewJournalItem keys ev as PK=EVENT#<platform>#<transaction>, SK=<status>#<event time>.
func NewJournalItem(ev *domain.CanonicalEvent, ttl time.Duration) JournalItem {
	txn := ev.TransactionID
	if txn == "" {
		txn = ev.EventID
	}
	return JournalItem{
		PK:             fmt.Sprintf("EVENT#%s#%s", ev.Platform, txn),
		SK:             fmt.Sprintf("%s#%s", strings.ToUpper(string(ev.Status)), ev.EventTimestamp.UTC().Format(time.RFC3339)),
		CanonicalEvent: *ev,
		TTL:            ev.ReceivedTimestamp.Add(ttl).Unix(),
	}
}

// Send implements Sink.
func (s *JournalSink) Send(ctx context.Context, ev *domain.CanonicalEvent) error {
	av, err := attributevalue.MarshalMap(NewJournalItem(ev, s.ttl))
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}
