package api

import (
	"errors"
	"net/http"

	"github.com/ignite/checkout-router/internal/adapters"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/httputil"
)

type checkoutRequest struct {
	Platform   string                `json:"platform"`
	Offer      domain.OfferData      `json:"offer"`
	Tracking   domain.TrackingParams `json:"tracking"`
	ReturnMode domain.ReturnMode     `json:"return_mode"`
}

// HandleCheckoutURL builds the checkout link for an offer.
//
//	POST /v1/checkout-url
//
// Responds with a URL string or list in legacy mode and an object in rich mode.
func (h *Handlers) HandleCheckoutURL(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	adapter, err := h.factory.Get(req.Platform)
	if err != nil {
		if errors.Is(err, adapters.ErrUnsupportedPlatform) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}

	result := adapter.BuildCheckoutURL(r.Context(), req.Offer, req.Tracking, req.ReturnMode)
	if result == nil {
		httputil.NotFound(w, "no checkout url could be built for this offer")
		return
	}
	httputil.OK(w, result)
}
