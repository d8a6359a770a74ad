package feeds

import (
	"context"
	"strings"

	"github.com/ignite/checkout-router/internal/domain"
)

// DefaultsIDColumns are the accepted names for the canonical offer id column.
var DefaultsIDColumns = []string{"offer_id", "canonical_offer_id", "id"}

// TemplateFields lists the per-platform template/skin/form columns a
// defaults row can supply. Platforms without entries never get defaults.
var TemplateFields = map[domain.Platform][]string{
	domain.PlatformClickBank: {"cbtemplate", "cbskin", "cbfid", "cbur"},
}

// DefaultsSource serves per-offer template defaults from the offer-defaults feed.
type DefaultsSource struct {
	src     *Source
	locator string
}

// NewDefaultsSource creates a DefaultsSource. An empty locator disables it.
func NewDefaultsSource(locator string, opts Options) *DefaultsSource {
	if opts.Name == "" {
		opts.Name = "offer_defaults"
	}
	if len(opts.IDColumns) == 0 {
		opts.IDColumns = DefaultsIDColumns
	}
	return &DefaultsSource{src: NewSource(opts), locator: locator}
}

// Lookup returns the template defaults for a canonical offer id. Only
// active rows with at least one non-empty template field qualify.
func (d *DefaultsSource) Lookup(ctx context.Context, p domain.Platform, offerID string) (map[string]string, bool) {
	if d == nil || d.locator == "" || offerID == "" {
		return nil, false
	}
	row, ok := d.src.Load(ctx, d.locator).Row(offerID)
	if !ok {
		return nil, false
	}
	return TemplateDefaults(row, p)
}

// Status reports the defaults feed cache.
func (d *DefaultsSource) Status() FeedStatus {
	return statusOf(d.src.name, d.locator, d.src.Snapshot())
}

// TemplateDefaults extracts p's non-empty template fields from an active row.
func TemplateDefaults(row Row, p domain.Platform) (map[string]string, bool) {
	if !strings.EqualFold(row.Get("status"), "active") {
		return nil, false
	}
	out := make(map[string]string)
	for _, f := range TemplateFields[p] {
		if v := row.Get(f); v != "" {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
