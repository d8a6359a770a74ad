package feeds

import (
	"context"

	"github.com/ignite/checkout-router/internal/domain"
)

// RuleIDColumns are the accepted names for the rule feed's key column.
var RuleIDColumns = []string{"id", "param_id", "parameter", "key"}

// RuleSource serves per-platform parameter rules from the tracking-rule
// feed, falling back to HeuristicRules when the feed is disabled,
// unreachable or has no columns for the platform.
type RuleSource struct {
	src     *Source
	locator string
}

// NewRuleSource creates a RuleSource. An empty locator disables the feed.
func NewRuleSource(locator string, opts Options) *RuleSource {
	if opts.Name == "" {
		opts.Name = "tracking_rules"
	}
	if len(opts.IDColumns) == 0 {
		opts.IDColumns = RuleIDColumns
	}
	return &RuleSource{src: NewSource(opts), locator: locator}
}

// Rules returns the rule table for p and whether it came from the feed.
func (r *RuleSource) Rules(ctx context.Context, p domain.Platform) (domain.RuleTable, bool) {
	if r == nil || r.locator == "" {
		return HeuristicRules(p), false
	}
	rules := RulesFromTable(r.src.Load(ctx, r.locator), p)
	if len(rules) == 0 {
		return HeuristicRules(p), false
	}
	return rules, true
}

// Status reports the rule feed cache.
func (r *RuleSource) Status() FeedStatus {
	return statusOf(r.src.name, r.locator, r.src.Snapshot())
}

// RulesFromTable extracts p's rules. Platform-specific columns
// ("clickbank_include_in_checkout", "clickbank_alias") win over the generic
// "include_in_checkout" and "alias" columns. A table with neither kind of
// include column yields no rules.
func RulesFromTable(t *Table, p domain.Platform) domain.RuleTable {
	includeCol := string(p) + "_include_in_checkout"
	aliasCol := string(p) + "_alias"
	if !t.HasColumn(includeCol) && !t.HasColumn("include_in_checkout") {
		return domain.RuleTable{}
	}

	rules := make(domain.RuleTable, t.Len())
	for _, id := range t.IDs {
		row := t.Rows[id]
		include := row.Get(includeCol)
		if !t.HasColumn(includeCol) {
			include = row.Get("include_in_checkout")
		}
		rules[id] = domain.ParameterRule{
			ID:                id,
			IncludeInCheckout: ParseBool(include),
			Alias:             row.Get(aliasCol, "alias"),
		}
	}
	return rules
}

var heuristicRules = map[domain.Platform]domain.RuleTable{
	domain.PlatformClickBank: {
		"gclid":          {ID: "gclid", IncludeInCheckout: true},
		"fbclid":         {ID: "fbclid", IncludeInCheckout: true},
		"ttclid":         {ID: "ttclid", IncludeInCheckout: true},
		"msclkid":        {ID: "msclkid", IncludeInCheckout: true},
		"utm_source":     {ID: "utm_source", IncludeInCheckout: true},
		"utm_medium":     {ID: "utm_medium", IncludeInCheckout: true},
		"utm_campaign":   {ID: "utm_campaign", IncludeInCheckout: true},
		"utm_content":    {ID: "utm_content", IncludeInCheckout: true},
		"utm_term":       {ID: "utm_term", IncludeInCheckout: true},
		"anon_id":        {ID: "anon_id", IncludeInCheckout: true},
		"traffic_source": {ID: "traffic_source", IncludeInCheckout: true},
		"affiliate":      {ID: "affiliate", IncludeInCheckout: true},
	},
	domain.PlatformDigistore24: {
		"utm_source":   {ID: "utm_source", IncludeInCheckout: true, Alias: "sid1"},
		"utm_medium":   {ID: "utm_medium", IncludeInCheckout: true, Alias: "sid2"},
		"utm_campaign": {ID: "utm_campaign", IncludeInCheckout: true, Alias: "sid3"},
		"gclid":        {ID: "gclid", IncludeInCheckout: true, Alias: "sid4"},
		"fbclid":       {ID: "fbclid", IncludeInCheckout: true, Alias: "sid5"},
		"campaign":     {ID: "campaign", IncludeInCheckout: true, Alias: "cam"},
		"affiliate":    {ID: "affiliate", IncludeInCheckout: true},
	},
}

// HeuristicRules is the built-in rule table used when no feed rules exist.
// The returned table is a copy.
func HeuristicRules(p domain.Platform) domain.RuleTable {
	src := heuristicRules[p]
	out := make(domain.RuleTable, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
