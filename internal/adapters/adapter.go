// Package adapters holds the per-platform checkout and postback logic.
//
// Each supported platform has one Adapter implementation. The Factory maps
// a platform name to its adapter; platforms are a closed set and every
// implementation is checked against the Adapter interface at compile time.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/checkout-router/internal/discovery"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/httpretry"
)

var (
	// ErrUnsupportedPlatform is returned for platform names outside domain.Platforms.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrMissingSecret rejects webhooks for a platform with no shared secret configured.
	ErrMissingSecret = errors.New("webhook secret not configured")
	// ErrEmptyPayload rejects webhooks without a body or fields.
	ErrEmptyPayload = errors.New("empty webhook payload")
	// ErrInvalidSignature rejects webhooks whose authenticity token does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload rejects webhooks that authenticate but cannot be decoded.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Adapter is the capability every platform implements.
type Adapter interface {
	Platform() domain.Platform
	// BuildCheckoutURL returns nil when the offer has no usable link.
	BuildCheckoutURL(ctx context.Context, offer domain.OfferData, tracking domain.TrackingParams, mode domain.ReturnMode) *domain.CheckoutResult
	// VerifyWebhook authenticates and normalizes a postback. A nil event
	// always comes with an error saying why it was rejected.
	VerifyWebhook(ctx context.Context, req *WebhookRequest) (*domain.CanonicalEvent, error)
}

// WebhookRequest is an inbound postback as received over HTTP.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
	// Form holds query-string or form-encoded fields for platforms that post them.
	Form url.Values
}

// RuleProvider supplies the per-platform parameter rule table.
type RuleProvider interface {
	Rules(ctx context.Context, p domain.Platform) (domain.RuleTable, bool)
}

// Config is the per-platform configuration.
type Config struct {
	// Secret is the shared webhook secret (ClickBank secret key, Digistore24 IPN passphrase).
	Secret string
	// ReturnMode is the process-wide default; legacy when empty.
	ReturnMode domain.ReturnMode
	// ScrapeCheckout enables landing page discovery when the offer does not say.
	ScrapeCheckout bool
}

// Deps are the collaborators shared by all adapters.
type Deps struct {
	Rules      RuleProvider
	Defaults   discovery.DefaultsLookup
	HTTPClient httpretry.HTTPDoer
	Now        func() time.Time
}

type constructor func(cfg Config, deps Deps) Adapter

var constructors = map[domain.Platform]constructor{
	domain.PlatformClickBank:   func(cfg Config, deps Deps) Adapter { return NewClickBank(cfg, deps) },
	domain.PlatformDigistore24: func(cfg Config, deps Deps) Adapter { return NewDigistore24(cfg, deps) },
}

var (
	_ Adapter = (*ClickBank)(nil)
	_ Adapter = (*Digistore24)(nil)
)

// Factory resolves platform names to adapters built once at startup.
type Factory struct {
	adapters map[domain.Platform]Adapter
}

// NewFactory builds an adapter for every supported platform.
func NewFactory(configs map[domain.Platform]Config, deps Deps) *Factory {
	f := &Factory{adapters: make(map[domain.Platform]Adapter, len(constructors))}
	for _, p := range domain.Platforms {
		f.adapters[p] = New(p, configs[p], deps)
	}
	return f
}

// New instantiates the adapter for p, or nil when p has no constructor.
func New(p domain.Platform, cfg Config, deps Deps) Adapter {
	ctor, ok := constructors[p]
	if !ok {
		return nil
	}
	return ctor(cfg, deps)
}

// Get returns the adapter for name (case-insensitive).
func (f *Factory) Get(name string) (Adapter, error) {
	p, ok := domain.ParsePlatform(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	a, ok := f.adapters[p]
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %q has no adapter", ErrUnsupportedPlatform, name)
	}
	return a, nil
}

// ResolveReturnMode picks the first known mode among the per-call
// override, the offer's mode and the process default, else legacy.
func ResolveReturnMode(override, offer, fallback domain.ReturnMode) domain.ReturnMode {
	for _, m := range []domain.ReturnMode{override, offer, fallback} {
		if r := domain.ParseReturnMode(string(m)); r != "" {
			return r
		}
	}
	return domain.ReturnLegacy
}
