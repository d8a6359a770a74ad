package domain

import (
	"encoding/json"
	"strings"
)

// AdapterMarkerPrefix tags checkout URLs that point back at an adapter
// instead of a real link ("adapter:clickbank").
const AdapterMarkerPrefix = "adapter:"

// Fallback reasons attached to offers built straight from the hoplink.
const (
	FallbackScrapeEmpty = "scrape_empty"
	FallbackScrapeError = "scrape_error"
)

// OfferData is the caller's free-form offer descriptor.
type OfferData struct {
	Hoplink        string     `json:"hoplink,omitempty"`
	CheckoutURL    string     `json:"checkout_url,omitempty"`
	Vendor         string     `json:"vendor,omitempty"`
	SKU            string     `json:"sku,omitempty"`
	ReturnMode     ReturnMode `json:"return_mode,omitempty"`
	ScrapeCheckout *bool      `json:"scrape_checkout,omitempty"`
	ParamOverrides
}

// IsAdapterMarker reports whether u is an internal indirection marker.
func IsAdapterMarker(u string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(u)), AdapterMarkerPrefix)
}

// BaseLink returns the link checkout construction starts from: the hoplink,
// else a real checkout URL. Empty when neither is usable.
func (o OfferData) BaseLink() string {
	if h := strings.TrimSpace(o.Hoplink); h != "" {
		return h
	}
	if c := strings.TrimSpace(o.CheckoutURL); c != "" && !IsAdapterMarker(c) {
		return c
	}
	return ""
}

// NormalizedOffer is one checkout endpoint resolved for a platform.
type NormalizedOffer struct {
	URL               string            `json:"url"`
	AffiliatePlatform Platform          `json:"affiliate_platform"`
	Vendor            *string           `json:"vendor"`
	SKU               *string           `json:"sku"`
	OfferID           *string           `json:"offer_id"`
	TemplateParams    map[string]string `json:"template_params"`
	Source            string            `json:"source,omitempty"`
	FallbackReason    string            `json:"fallback_reason,omitempty"`
}

// CanonicalOfferID builds "<platform>:<vendor>:<sku>", or nil when either part is missing.
func CanonicalOfferID(p Platform, vendor, sku string) *string {
	vendor = strings.TrimSpace(vendor)
	sku = strings.TrimSpace(sku)
	if vendor == "" || sku == "" {
		return nil
	}
	id := string(p) + ":" + strings.ToLower(vendor) + ":" + sku
	return &id
}

// CheckoutResult is what an adapter returns for a checkout URL request.
// Its JSON form depends on Mode: a string or array for legacy, an object for rich.
type CheckoutResult struct {
	Mode           ReturnMode
	Platform       Platform
	URLs           []string
	Offers         []NormalizedOffer
	FallbackReason string
}

// Legacy returns the single URL, or the list of URLs when there are several.
func (r *CheckoutResult) Legacy() interface{} {
	if len(r.URLs) == 1 {
		return r.URLs[0]
	}
	return r.URLs
}

// PrimaryURL is the first resolved URL, or "".
func (r *CheckoutResult) PrimaryURL() string {
	if len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[0]
}

type richResult struct {
	Mode           ReturnMode        `json:"mode"`
	Platform       Platform          `json:"platform"`
	PrimaryURL     string            `json:"primary_url"`
	URLs           []string          `json:"urls"`
	Offers         []NormalizedOffer `json:"offers"`
	FallbackReason string            `json:"fallback_reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *CheckoutResult) MarshalJSON() ([]byte, error) {
	if r.Mode != ReturnRich {
		return json.Marshal(r.Legacy())
	}
	return json.Marshal(richResult{
		Mode:           r.Mode,
		Platform:       r.Platform,
		PrimaryURL:     r.PrimaryURL(),
		URLs:           r.URLs,
		Offers:         r.Offers,
		FallbackReason: r.FallbackReason,
	})
}
