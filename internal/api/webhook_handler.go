package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/checkout-router/internal/adapters"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/distlock"
	"github.com/ignite/checkout-router/internal/pkg/httputil"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// Webhook response statuses.
const (
	WebhookAccepted  = "accepted"
	WebhookDuplicate = "duplicate"
)

type webhookResponse struct {
	Status      string             `json:"status"`
	EventID     string             `json:"event_id,omitempty"`
	EventStatus domain.EventStatus `json:"event_status,omitempty"`
}

// HandleWebhook verifies, dedupes and delivers a platform postback.
//
//	POST /v1/webhooks/{platform}
//
// Rejected postbacks get 401 (400 when authentic but undecodable). A
// replay of an already delivered transaction status gets 200 "duplicate".
// A failed delivery returns 500 and frees the dedupe key so the
// platform's retry goes through.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "platform")
	adapter, err := h.factory.Get(name)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	body, ok := httputil.ReadBody(w, r)
	if !ok {
		return
	}

	event, err := adapter.VerifyWebhook(r.Context(), &adapters.WebhookRequest{
		Body:    body,
		Headers: r.Header,
		Form:    webhookForm(r, body),
	})
	if err != nil {
		if errors.Is(err, adapters.ErrMalformedPayload) {
			httputil.BadRequest(w, "malformed webhook payload")
			return
		}
		httputil.Unauthorized(w, "webhook rejected")
		return
	}

	lock, fresh := h.claim(r.Context(), event)
	if !fresh {
		logger.Info("duplicate postback ignored",
			"platform", event.Platform, "transaction_id", event.TransactionID, "status", event.Status)
		httputil.OK(w, webhookResponse{Status: WebhookDuplicate})
		return
	}

	if h.sink != nil {
		if err := h.sink.Send(r.Context(), event); err != nil {
			if lock != nil {
				if rerr := lock.Release(context.WithoutCancel(r.Context())); rerr != nil {
					logger.Warn("dedupe release failed", "error", rerr.Error())
				}
			}
			httputil.InternalError(w, err)
			return
		}
	}

	httputil.OK(w, webhookResponse{Status: WebhookAccepted, EventID: event.EventID, EventStatus: event.Status})
}

// claim takes the dedupe key for the event. Events without a transaction
// id cannot be deduped and always pass. A lock backend error fails open.
func (h *Handlers) claim(ctx context.Context, event *domain.CanonicalEvent) (distlock.DistLock, bool) {
	if h.locker == nil || event.TransactionID == "" {
		return nil, true
	}
	lock := h.locker.NewLock(distlock.PostbackKey(string(event.Platform), event.TransactionID, string(event.Status)), h.dedupeTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Warn("dedupe lock unavailable, delivering anyway",
			"platform", event.Platform, "error", err.Error())
		return nil, true
	}
	if !acquired {
		return nil, false
	}
	return lock, true
}

// webhookForm returns the form-encoded body fields, or the query string
// when the body carries none. The two are never merged: signatures cover
// only the fields the platform sent. Nil when there are no fields, so
// adapters fall back to the raw body.
func webhookForm(r *http.Request, body []byte) url.Values {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" && len(body) > 0 {
		if form, err := url.ParseQuery(string(body)); err == nil && len(form) > 0 {
			return form
		}
	}
	if len(body) > 0 {
		return nil
	}
	if q := r.URL.Query(); len(q) > 0 {
		return q
	}
	return nil
}
