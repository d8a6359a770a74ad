package adapters

import (
	"context"
	"time"

	"github.com/ignite/checkout-router/internal/discovery"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/feeds"
	"github.com/ignite/checkout-router/internal/params"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// checkoutBuilder is the checkout half shared by all adapters.
type checkoutBuilder struct {
	platform domain.Platform
	cfg      Config
	rules    RuleProvider
	engine   *discovery.Engine
	// scrapes is false for platforms without a discovery profile.
	scrapes bool
	now     func() time.Time
}

func newCheckoutBuilder(p domain.Platform, cfg Config, deps Deps) checkoutBuilder {
	profile, scrapes := discovery.Profiles[p]
	if !scrapes {
		profile = discovery.Profile{Platform: p}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return checkoutBuilder{
		platform: p,
		cfg:      cfg,
		rules:    deps.Rules,
		engine: discovery.NewEngine(profile, discovery.Options{
			HTTPClient: deps.HTTPClient,
			Defaults:   deps.Defaults,
		}),
		scrapes: scrapes,
		now:     now,
	}
}

func (b *checkoutBuilder) ruleTable(ctx context.Context) domain.RuleTable {
	if b.rules == nil {
		return feeds.HeuristicRules(b.platform)
	}
	rules, _ := b.rules.Rules(ctx, b.platform)
	return rules
}

func (b *checkoutBuilder) build(ctx context.Context, offer domain.OfferData, tracking domain.TrackingParams, override domain.ReturnMode) *domain.CheckoutResult {
	base := offer.BaseLink()
	if base == "" {
		logger.Warn("offer has no usable hoplink or checkout url",
			"platform", b.platform, "checkout_url", offer.CheckoutURL)
		return nil
	}

	set := params.Resolve(offer.ParamOverrides, b.ruleTable(ctx))
	qp := params.BuildQueryParams(tracking, set)

	scrape := b.cfg.ScrapeCheckout
	if offer.ScrapeCheckout != nil {
		scrape = *offer.ScrapeCheckout
	}
	scrape = scrape && b.scrapes

	offers := b.engine.Discover(ctx, base, qp, discovery.OfferMeta{Vendor: offer.Vendor, SKU: offer.SKU}, scrape)
	if len(offers) == 0 {
		logger.Warn("no checkout url could be built", "platform", b.platform, "base_link", base)
		return nil
	}

	for i := range offers {
		injectTemplateParams(&offers[i])
	}

	result := &domain.CheckoutResult{
		Mode:     ResolveReturnMode(override, offer.ReturnMode, b.cfg.ReturnMode),
		Platform: b.platform,
		Offers:   offers,
	}
	for _, o := range offers {
		result.URLs = append(result.URLs, o.URL)
		if o.FallbackReason != "" && result.FallbackReason == "" {
			result.FallbackReason = o.FallbackReason
		}
	}
	return result
}

// injectTemplateParams adds template params to a canonical offer's URL
// without overriding values already in its query.
func injectTemplateParams(o *domain.NormalizedOffer) {
	if o.OfferID == nil || len(o.TemplateParams) == 0 {
		return
	}
	u, err := params.AppendParams(o.URL, o.TemplateParams)
	if err != nil {
		return
	}
	o.URL = u
}
