package domain

// ParameterRule says whether a canonical tracking parameter is forwarded
// to a platform's checkout and under which key.
type ParameterRule struct {
	ID                string `json:"id"`
	IncludeInCheckout bool   `json:"include_in_checkout"`
	Alias             string `json:"alias,omitempty"`
}

// RuleTable is the per-platform rule set keyed by canonical parameter id.
type RuleTable map[string]ParameterRule

// ParamOverrides are the offer-level knobs that take precedence over the feed.
type ParamOverrides struct {
	// AllowedParams replaces the base allowlist when non-empty.
	AllowedParams []string `json:"allowed_params,omitempty"`
	// Aliases are merged on top of the feed/heuristic aliases.
	Aliases map[string]string `json:"param_aliases,omitempty"`
	// CustomParams maps tracking key to output key; its keys are always allowed.
	CustomParams map[string]string `json:"custom_params,omitempty"`
}

// RuleSet is the materialized allowlist and alias map for one resolution call.
type RuleSet struct {
	Allowlist map[string]bool   `json:"allowlist"`
	Aliases   map[string]string `json:"aliases"`
}

// Allows reports whether key is in the allowlist.
func (rs RuleSet) Allows(key string) bool {
	return rs.Allowlist[key]
}

// OutputKey maps a tracking key through the alias table.
func (rs RuleSet) OutputKey(key string) string {
	if alias, ok := rs.Aliases[key]; ok && alias != "" {
		return alias
	}
	return key
}
