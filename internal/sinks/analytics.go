package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/httpretry"
)

// DefaultGA4Endpoint is the Measurement Protocol collection endpoint.
const DefaultGA4Endpoint = "https://www.google-analytics.com/mp/collect"

// AnalyticsSink reports paid events as GA4 purchases and reversals as refunds.
// Other statuses are skipped.
type AnalyticsSink struct {
	client        httpretry.HTTPDoer
	endpoint      string
	measurementID string
	apiSecret     string
}

// NewAnalyticsSink creates an AnalyticsSink. client should normally be a
// *httpretry.RetryClient; endpoint defaults to DefaultGA4Endpoint.
func NewAnalyticsSink(client httpretry.HTTPDoer, endpoint, measurementID, apiSecret string) *AnalyticsSink {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	if endpoint == "" {
		endpoint = DefaultGA4Endpoint
	}
	return &AnalyticsSink{client: client, endpoint: endpoint, measurementID: measurementID, apiSecret: apiSecret}
}

// Name implements Sink.
func (s *AnalyticsSink) Name() string { return "ga4" }

type ga4Payload struct {
	ClientID        string     `json:"client_id"`
	UserID          string     `json:"user_id,omitempty"`
	TimestampMicros int64      `json:"timestamp_micros,omitempty"`
	Events          []ga4Event `json:"events"`
}

type ga4Event struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// ga4EventName returns the GA4 event for a status, or "" to skip it.
func ga4EventName(s domain.EventStatus) string {
	switch {
	case s == domain.StatusPaid:
		return "purchase"
	case s.IsReversal():
		return "refund"
	default:
		return ""
	}
}

// buildPayload renders ev as a Measurement Protocol body. ok is false for
// statuses that are not reported.
func buildPayload(ev *domain.CanonicalEvent) (ga4Payload, bool) {
	name := ga4EventName(ev.Status)
	if name == "" {
		return ga4Payload{}, false
	}

	clientID := ev.TrackingID
	for _, c := range []string{ev.GCLID, ev.FBCLID, ev.EventID} {
		if clientID == "" {
			clientID = c
		}
	}

	params := map[string]interface{}{
		"transaction_id": ev.TransactionID,
		"value":          ev.Amount,
		"currency":       ev.Currency,
		"affiliation":    string(ev.Platform),
	}
	if ev.ProductSKU != "" {
		params["items"] = []map[string]interface{}{{"item_id": ev.ProductSKU, "price": ev.Amount, "quantity": 1}}
	}

	p := ga4Payload{
		ClientID: clientID,
		UserID:   ev.TrackingID,
		Events:   []ga4Event{{Name: name, Params: params}},
	}
	if !ev.EventTimestamp.IsZero() {
		p.TimestampMicros = ev.EventTimestamp.UnixMicro()
	}
	return p, true
}

// Send implements Sink.
func (s *AnalyticsSink) Send(ctx context.Context, ev *domain.CanonicalEvent) error {
	payload, ok := buildPayload(ev)
	if !ok {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	q := url.Values{}
	q.Set("measurement_id", s.measurementID)
	q.Set("api_secret", s.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GA4 returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
