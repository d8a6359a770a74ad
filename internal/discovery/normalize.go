package discovery

import (
	"net/url"
	"strings"

	"github.com/ignite/checkout-router/internal/domain"
)

// Normalize derives vendor, sku, canonical id and template params from a
// checkout URL. Unparseable URLs come back with only URL and platform set.
func (p Profile) Normalize(raw string) domain.NormalizedOffer {
	offer := domain.NormalizedOffer{URL: raw, AffiliatePlatform: p.Platform}

	u, err := url.Parse(raw)
	if err != nil {
		return offer
	}
	q := u.Query()

	if v := p.VendorFromHost(u.Hostname()); v != "" {
		offer.Vendor = strPtr(v)
	}
	if sku := strings.TrimSpace(q.Get(p.SKUParam)); sku != "" {
		offer.SKU = strPtr(sku)
	}
	if offer.Vendor != nil && offer.SKU != nil {
		offer.OfferID = domain.CanonicalOfferID(p.Platform, *offer.Vendor, *offer.SKU)
	}

	for _, f := range p.TemplateFields {
		if v := strings.TrimSpace(q.Get(f)); v != "" {
			if offer.TemplateParams == nil {
				offer.TemplateParams = make(map[string]string)
			}
			offer.TemplateParams[f] = v
		}
	}
	return offer
}

// applyMeta fills vendor/sku from caller metadata where the URL gave nothing.
func applyMeta(offer *domain.NormalizedOffer, meta OfferMeta) {
	if offer.Vendor == nil && meta.Vendor != "" {
		offer.Vendor = strPtr(strings.ToLower(meta.Vendor))
	}
	if offer.SKU == nil && meta.SKU != "" {
		offer.SKU = strPtr(meta.SKU)
	}
	if offer.OfferID == nil && offer.Vendor != nil && offer.SKU != nil {
		offer.OfferID = domain.CanonicalOfferID(offer.AffiliatePlatform, *offer.Vendor, *offer.SKU)
	}
}

func strPtr(s string) *string { return &s }
