package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// ClickBank INS headers.
const (
	HeaderCBSignature = "X-Cb-Signature"
	HeaderCBIV        = "X-Cb-Iv"
)

var clickBankStatus = map[string]domain.EventStatus{
	"SALE":      domain.StatusPaid,
	"TEST_SALE": domain.StatusPaid,
	"RFND":      domain.StatusRefunded,
	"TEST_RFND": domain.StatusRefunded,
	"CGBK":      domain.StatusChargeback,
	"TEST_CGBK": domain.StatusChargeback,
}

// ClickBankStatus maps an INS transaction type; unknown types are "other".
func ClickBankStatus(txnType string) domain.EventStatus {
	if s, ok := clickBankStatus[strings.ToUpper(strings.TrimSpace(txnType))]; ok {
		return s
	}
	return domain.StatusOther
}

// ClickBank builds ClickBank order form links and decodes encrypted INS postbacks.
type ClickBank struct {
	checkoutBuilder
}

// NewClickBank creates the ClickBank adapter.
func NewClickBank(cfg Config, deps Deps) *ClickBank {
	return &ClickBank{checkoutBuilder: newCheckoutBuilder(domain.PlatformClickBank, cfg, deps)}
}

// Platform implements Adapter.
func (c *ClickBank) Platform() domain.Platform { return domain.PlatformClickBank }

// BuildCheckoutURL implements Adapter.
func (c *ClickBank) BuildCheckoutURL(ctx context.Context, offer domain.OfferData, tracking domain.TrackingParams, mode domain.ReturnMode) *domain.CheckoutResult {
	return c.build(ctx, offer, tracking, mode)
}

type insEnvelope struct {
	Notification string `json:"notification"`
	IV           string `json:"iv"`
}

type insNotification struct {
	TransactionTime  string          `json:"transactionTime"`
	Receipt          string          `json:"receipt"`
	ParentReceipt    string          `json:"parentReceipt"`
	TransactionType  string          `json:"transactionType"`
	Vendor           string          `json:"vendor"`
	Affiliate        string          `json:"affiliate"`
	Currency         string          `json:"currency"`
	TotalOrderAmount json.Number     `json:"totalOrderAmount"`
	TrackingCodes    []string        `json:"trackingCodes"`
	LineItems        []insLineItem   `json:"lineItems"`
	Customer         insCustomerInfo `json:"customer"`
}

type insLineItem struct {
	ItemNo string `json:"itemNo"`
}

type insCustomerInfo struct {
	Billing struct {
		Email string `json:"email"`
	} `json:"billing"`
}

// VerifyWebhook implements Adapter. The body must carry an HMAC-SHA256
// signature of itself in X-Cb-Signature. It is either the base64
// ciphertext or a {"notification","iv"} envelope; X-Cb-Iv wins over the
// envelope's iv.
func (c *ClickBank) VerifyWebhook(ctx context.Context, req *WebhookRequest) (*domain.CanonicalEvent, error) {
	ev, err := c.verify(req)
	if err != nil {
		logger.Warn("clickbank webhook rejected", "error", err)
		return nil, err
	}
	logger.Info("clickbank webhook accepted",
		"transaction_id", ev.TransactionID, "status", ev.Status, "event_id", ev.EventID)
	return ev, nil
}

func (c *ClickBank) verify(req *WebhookRequest) (*domain.CanonicalEvent, error) {
	if c.cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if req == nil || req.Headers == nil || len(strings.TrimSpace(string(req.Body))) == 0 {
		return nil, ErrEmptyPayload
	}

	if !signatureMatches(req.Headers.Get(HeaderCBSignature), hmacSHA256(c.cfg.Secret, req.Body)) {
		return nil, ErrInvalidSignature
	}

	ciphertext, ivText := strings.TrimSpace(string(req.Body)), ""
	if strings.HasPrefix(ciphertext, "{") {
		var env insEnvelope
		if err := json.Unmarshal(req.Body, &env); err != nil {
			return nil, fmt.Errorf("%w: envelope: %v", ErrMalformedPayload, err)
		}
		ciphertext, ivText = env.Notification, env.IV
	}
	if h := req.Headers.Get(HeaderCBIV); h != "" {
		ivText = h
	}

	iv, err := decodeToken(ivText)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedPayload, err)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedPayload, err)
	}
	plain, err := decryptCBC(c.cfg.Secret, iv, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrMalformedPayload, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(plain, &raw); err != nil {
		return nil, fmt.Errorf("%w: notification: %v", ErrMalformedPayload, err)
	}
	var ins insNotification
	if err := json.Unmarshal(plain, &ins); err != nil {
		return nil, fmt.Errorf("%w: notification: %v", ErrMalformedPayload, err)
	}
	return c.normalize(ins, raw), nil
}

func (c *ClickBank) normalize(ins insNotification, raw map[string]interface{}) *domain.CanonicalEvent {
	now := c.now().UTC()
	tokens := extractTokens(ins.TrackingCodes...)

	ev := &domain.CanonicalEvent{
		EventID:           uuid.New().String(),
		Platform:          domain.PlatformClickBank,
		TransactionID:     ins.Receipt,
		OrderID:           ins.Receipt,
		TrackingID:        tokens.TID,
		Status:            ClickBankStatus(ins.TransactionType),
		TransactionType:   strings.ToUpper(ins.TransactionType),
		Currency:          strings.ToUpper(ins.Currency),
		CustomerEmail:     ins.Customer.Billing.Email,
		EventTimestamp:    now,
		ReceivedTimestamp: now,
		GCLID:             tokens.GCLID,
		FBCLID:            tokens.FBCLID,
		RawPayload:        maskPayload(raw),
	}
	if ins.ParentReceipt != "" {
		ev.OrderID = ins.ParentReceipt
	}
	if len(ins.LineItems) > 0 {
		ev.ProductSKU = ins.LineItems[0].ItemNo
	}
	if amt, err := strconv.ParseFloat(ins.TotalOrderAmount.String(), 64); err == nil {
		ev.Amount = amt
	}
	if ts, err := time.Parse(time.RFC3339, ins.TransactionTime); err == nil {
		ev.EventTimestamp = ts.UTC()
	}
	return ev
}
