package domain

import "time"

// EventStatus is the canonical transaction status of a postback.
type EventStatus string

const (
	StatusPaid       EventStatus = "paid"
	StatusRefunded   EventStatus = "refunded"
	StatusChargeback EventStatus = "chargeback"
	StatusPending    EventStatus = "pending"
	StatusOther      EventStatus = "other"
	StatusUnknown    EventStatus = "unknown"
)

// IsReversal returns true for refunds and chargebacks.
func (s EventStatus) IsReversal() bool {
	return s == StatusRefunded || s == StatusChargeback
}

// CanonicalEvent is a normalized S2S postback. It is built fresh per
// webhook call and treated as read-only afterwards.
type CanonicalEvent struct {
	EventID           string                 `json:"event_id" dynamodbav:"event_id"`
	Platform          Platform               `json:"platform" dynamodbav:"platform"`
	TransactionID     string                 `json:"transaction_id" dynamodbav:"transaction_id"`
	OrderID           string                 `json:"order_id" dynamodbav:"order_id"`
	TrackingID        string                 `json:"tracking_id" dynamodbav:"tracking_id"`
	Status            EventStatus            `json:"status" dynamodbav:"status"`
	TransactionType   string                 `json:"transaction_type" dynamodbav:"transaction_type"`
	ProductSKU        string                 `json:"product_sku" dynamodbav:"product_sku"`
	Amount            float64                `json:"amount" dynamodbav:"amount"`
	Currency          string                 `json:"currency" dynamodbav:"currency"`
	CustomerEmail     string                 `json:"customer_email" dynamodbav:"customer_email"`
	EventTimestamp    time.Time              `json:"event_timestamp" dynamodbav:"event_timestamp"`
	ReceivedTimestamp time.Time              `json:"received_timestamp" dynamodbav:"received_timestamp"`
	GCLID             string                 `json:"gclid,omitempty" dynamodbav:"gclid,omitempty"`
	FBCLID            string                 `json:"fbclid,omitempty" dynamodbav:"fbclid,omitempty"`
	RawPayload        map[string]interface{} `json:"raw_payload" dynamodbav:"raw_payload"`
}
