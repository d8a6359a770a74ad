package adapters

import (
	"context"
	"crypto/sha512"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// ShaSignField is the Digistore24 IPN authenticity field.
const ShaSignField = "sha_sign"

var digistoreStatus = map[string]domain.EventStatus{
	"on_payment":        domain.StatusPaid,
	"on_refund":         domain.StatusRefunded,
	"on_chargeback":     domain.StatusChargeback,
	"on_payment_missed": domain.StatusPending,
}

// Digistore24Status maps an IPN event; unknown events are "unknown".
func Digistore24Status(event string) domain.EventStatus {
	if s, ok := digistoreStatus[strings.ToLower(strings.TrimSpace(event))]; ok {
		return s
	}
	return domain.StatusUnknown
}

// ipnTimeLayouts are the timestamp formats seen in IPN fields.
var ipnTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// Digistore24 passes hoplinks through and decodes form-encoded IPN postbacks.
type Digistore24 struct {
	checkoutBuilder
}

// NewDigistore24 creates the Digistore24 adapter.
func NewDigistore24(cfg Config, deps Deps) *Digistore24 {
	return &Digistore24{checkoutBuilder: newCheckoutBuilder(domain.PlatformDigistore24, cfg, deps)}
}

// Platform implements Adapter.
func (d *Digistore24) Platform() domain.Platform { return domain.PlatformDigistore24 }

// BuildCheckoutURL implements Adapter.
func (d *Digistore24) BuildCheckoutURL(ctx context.Context, offer domain.OfferData, tracking domain.TrackingParams, mode domain.ReturnMode) *domain.CheckoutResult {
	return d.build(ctx, offer, tracking, mode)
}

// VerifyWebhook implements Adapter. Fields come from req.Form, or from the
// form-encoded body when Form is empty.
func (d *Digistore24) VerifyWebhook(ctx context.Context, req *WebhookRequest) (*domain.CanonicalEvent, error) {
	ev, err := d.verify(req)
	if err != nil {
		logger.Warn("digistore24 webhook rejected", "error", err)
		return nil, err
	}
	logger.Info("digistore24 webhook accepted",
		"transaction_id", ev.TransactionID, "status", ev.Status, "event_id", ev.EventID)
	return ev, nil
}

func (d *Digistore24) verify(req *WebhookRequest) (*domain.CanonicalEvent, error) {
	if d.cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if req == nil {
		return nil, ErrEmptyPayload
	}
	form := req.Form
	if len(form) == 0 {
		if len(strings.TrimSpace(string(req.Body))) == 0 {
			return nil, ErrEmptyPayload
		}
		parsed, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		form = parsed
	}
	if len(form) == 0 {
		return nil, ErrEmptyPayload
	}

	if !signatureMatches(form.Get(ShaSignField), ShaSign(form, d.cfg.Secret)) {
		return nil, ErrInvalidSignature
	}
	return d.normalize(form), nil
}

// ShaSign computes the IPN signature: SHA-512 over "KEY=value<passphrase>"
// for every non-empty field except sha_sign, keys sorted.
func ShaSign(form url.Values, passphrase string) []byte {
	keys := make([]string, 0, len(form))
	for k := range form {
		if strings.EqualFold(k, ShaSignField) || form.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha512.New()
	for _, k := range keys {
		h.Write([]byte(k + "=" + form.Get(k) + passphrase))
	}
	return h.Sum(nil)
}

func (d *Digistore24) normalize(form url.Values) *domain.CanonicalEvent {
	now := d.now().UTC()
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(form.Get(k)); v != "" {
				return v
			}
		}
		return ""
	}

	custom := get("custom")
	tokens := extractTokens(custom, get("sid1"), get("sid2"), get("sid3"), get("sid4"), get("sid5"))
	trackingID := tokens.TID
	if trackingID == "" && tokens == (trackingTokens{}) && !strings.ContainsAny(custom, ",;| ") {
		trackingID = custom
	}

	raw := make(map[string]interface{}, len(form))
	for k, vs := range form {
		if len(vs) == 1 {
			raw[k] = vs[0]
		} else {
			raw[k] = append([]string(nil), vs...)
		}
	}

	event := get("event")
	ev := &domain.CanonicalEvent{
		EventID:           uuid.New().String(),
		Platform:          domain.PlatformDigistore24,
		TransactionID:     get("transaction_id", "order_id"),
		OrderID:           get("order_id"),
		TrackingID:        trackingID,
		Status:            Digistore24Status(event),
		TransactionType:   event,
		ProductSKU:        get("product_id"),
		Currency:          strings.ToUpper(get("currency")),
		CustomerEmail:     get("email", "address_email", "buyer_email"),
		EventTimestamp:    now,
		ReceivedTimestamp: now,
		GCLID:             tokens.GCLID,
		FBCLID:            tokens.FBCLID,
		RawPayload:        maskPayload(raw),
	}
	if amt, err := strconv.ParseFloat(get("transaction_amount", "amount", "amount_brutto"), 64); err == nil {
		ev.Amount = amt
	}
	if ts := get("transaction_date", "order_date_time", "order_date"); ts != "" {
		for _, layout := range ipnTimeLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				ev.EventTimestamp = t.UTC()
				break
			}
		}
	}
	return ev
}
