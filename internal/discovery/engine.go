// Package discovery finds the real checkout URLs behind an affiliate
// hoplink. It fetches the landing page, scans the DOM and inline script for
// links to the platform's order form hosts, synthesizes order form URLs for
// bare product ids, and normalizes every hit into a NormalizedOffer.
//
// Discovery is best effort: fetch and parse failures degrade to a single
// offer built from the hoplink itself.
package discovery

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/params"
	"github.com/ignite/checkout-router/internal/pkg/httpretry"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// Offer sources.
const (
	SourcePassthrough = "passthrough"
	SourceRedirect    = "redirect"
	SourceDOM         = "dom"
	SourceScript      = "script"
	SourceSynthesized = "synthesized"
	SourceFallback    = "fallback"
)

// DefaultsLookup supplies template defaults by canonical offer id.
type DefaultsLookup interface {
	Lookup(ctx context.Context, p domain.Platform, offerID string) (map[string]string, bool)
}

// OfferMeta is what the caller already knows about the offer.
type OfferMeta struct {
	Vendor string
	SKU    string
}

// Options configures an Engine.
type Options struct {
	// HTTPClient defaults to NewHTTPClient().
	HTTPClient httpretry.HTTPDoer
	Defaults   DefaultsLookup
	UserAgent  string
	Referer    string
}

// Engine discovers checkout offers for one platform.
type Engine struct {
	profile   Profile
	client    httpretry.HTTPDoer
	defaults  DefaultsLookup
	userAgent string
	referer   string
}

// NewEngine creates an Engine for profile.
func NewEngine(profile Profile, opts Options) *Engine {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = defaultReferer
	}
	return &Engine{
		profile:   profile,
		client:    opts.HTTPClient,
		defaults:  opts.Defaults,
		userAgent: opts.UserAgent,
		referer:   opts.Referer,
	}
}

// Discover resolves hoplink into offers with qp injected into every URL.
//
// With scrape false the hoplink is returned as the single offer without
// parsing it. With scrape true the page is fetched and scanned; when that
// finds nothing or fails, the single offer is the hoplink tagged with a
// fallback reason. The result is empty only when hoplink is not a valid URL.
func (e *Engine) Discover(ctx context.Context, hoplink string, qp map[string]string, meta OfferMeta, scrape bool) []domain.NormalizedOffer {
	if !scrape {
		u, err := params.AppendParams(hoplink, qp)
		if err != nil {
			logger.Warn("invalid hoplink", "platform", e.profile.Platform, "error", err)
			return nil
		}
		offer := domain.NormalizedOffer{URL: u, AffiliatePlatform: e.profile.Platform, Source: SourcePassthrough}
		applyMeta(&offer, meta)
		return []domain.NormalizedOffer{offer}
	}

	pg, err := e.fetch(ctx, hoplink)
	if err != nil {
		logger.Warn("hoplink scrape failed", "platform", e.profile.Platform, "error", err)
		return e.fallback(ctx, hoplink, qp, meta, domain.FallbackScrapeError)
	}

	offers, err := e.scan(pg, qp, meta)
	if err != nil {
		logger.Warn("hoplink parse failed", "platform", e.profile.Platform, "error", err)
		return e.fallback(ctx, hoplink, qp, meta, domain.FallbackScrapeError)
	}
	if len(offers) == 0 {
		logger.Info("no checkout links found on landing page", "platform", e.profile.Platform, "final_url", pg.finalURL)
		return e.fallback(ctx, hoplink, qp, meta, domain.FallbackScrapeEmpty)
	}

	e.mergeDefaults(ctx, offers)
	logger.Debug("checkout offers discovered", "platform", e.profile.Platform, "count", len(offers))
	return offers
}

type candidate struct {
	url    string
	source string
}

var (
	urlInTextRegex = regexp.MustCompile(`(?i)https?:(?:\\?/){2}[^\s"'<>` + "`" + `]+`)
	domSelectors   = []struct{ selector, attr string }{
		{"a[href]", "href"},
		{"area[href]", "href"},
		{"form[action]", "action"},
		{"iframe[src]", "src"},
	}
)

func (e *Engine) scan(pg *page, qp map[string]string, meta OfferMeta) ([]domain.NormalizedOffer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pg.html))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pg.finalURL)
	text := string(pg.html)

	vendor := strings.ToLower(strings.TrimSpace(meta.Vendor))
	if vendor == "" {
		vendor = e.profile.VendorFromScript(text)
	}
	if vendor == "" && base != nil {
		vendor = e.profile.VendorFromHost(base.Hostname())
	}
	hosts := e.profile.Hosts(vendor)

	var found []candidate
	seen := make(map[string]bool)
	add := func(raw, source string) {
		u := e.recognize(raw, base, hosts)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		found = append(found, candidate{url: u, source: source})
	}

	add(pg.finalURL, SourceRedirect)

	for _, sel := range domSelectors {
		doc.Find(sel.selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(sel.attr); ok {
				add(v, SourceDOM)
			}
		})
	}

	for _, m := range urlInTextRegex.FindAllString(text, -1) {
		add(cleanScriptURL(m), SourceScript)
	}

	if vendor != "" {
		// Hits on fixed hosts carry no vendor, so their products still
		// get a canonical vendor URL.
		skus := make(map[string]bool)
		for _, c := range found {
			if o := e.profile.Normalize(c.url); o.OfferID != nil {
				skus[*o.SKU] = true
			}
		}
		for _, id := range e.profile.ProductIDs(text) {
			if !skus[id] {
				skus[id] = true
				add(e.profile.CheckoutURL(vendor, id), SourceSynthesized)
			}
		}
	}

	offers := make([]domain.NormalizedOffer, 0, len(found))
	injected := make(map[string]bool, len(found))
	for _, c := range found {
		u, err := params.AppendParams(c.url, qp)
		if err != nil || injected[u] {
			continue
		}
		injected[u] = true
		offer := e.profile.Normalize(u)
		offer.Source = c.source
		offers = append(offers, offer)
	}
	return offers, nil
}

// recognize resolves raw against base and returns it when its host is a
// recognized checkout host.
func (e *Engine) recognize(raw string, base *url.URL, hosts map[string]bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if !hosts[strings.ToLower(u.Hostname())] {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// cleanScriptURL undoes JSON and HTML escaping and trims trailing
// punctuation picked up from surrounding script.
func cleanScriptURL(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, "&amp;", "&")
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, ".,;:)]}")
}

func (e *Engine) fallback(ctx context.Context, hoplink string, qp map[string]string, meta OfferMeta, reason string) []domain.NormalizedOffer {
	u, err := params.AppendParams(hoplink, qp)
	if err != nil {
		logger.Warn("invalid hoplink", "platform", e.profile.Platform, "error", err)
		return nil
	}
	offer := e.profile.Normalize(u)
	applyMeta(&offer, meta)
	offer.Source = SourceFallback
	offer.FallbackReason = reason

	offers := []domain.NormalizedOffer{offer}
	e.mergeDefaults(ctx, offers)
	return offers
}

// mergeDefaults fills TemplateParams from the defaults feed for offers
// that have a canonical id and no template params of their own.
func (e *Engine) mergeDefaults(ctx context.Context, offers []domain.NormalizedOffer) {
	if e.defaults == nil {
		return
	}
	for i := range offers {
		o := &offers[i]
		if o.OfferID == nil || o.TemplateParams != nil {
			continue
		}
		if d, ok := e.defaults.Lookup(ctx, o.AffiliatePlatform, *o.OfferID); ok {
			o.TemplateParams = copyMap(d)
		}
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
