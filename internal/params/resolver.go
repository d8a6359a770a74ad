// Package params turns caller tracking parameters into the query
// parameters of an outbound checkout URL.
//
// Rules applied, in order:
//   - user_id always becomes tid (truncated to 100 chars), whatever the allowlist says
//   - null-like values are dropped
//   - keys outside the resolved allowlist are dropped
//   - remaining keys are renamed through the alias table
//   - affiliate is renamed to aff when aff is not already set
package params

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ignite/checkout-router/internal/domain"
)

const (
	// UserIDKey is the tracking key that always maps to TrackingIDKey.
	UserIDKey = "user_id"
	// TrackingIDKey is the outbound key carrying the caller's user id.
	TrackingIDKey = "tid"
	// MaxTrackingIDLen bounds the tid value.
	MaxTrackingIDLen = 100
)

// AffiliateSynonyms are always allowed so the affiliate → aff fixup has
// something to work with.
var AffiliateSynonyms = []string{"affiliate", "aff"}

// Resolve materializes the allowlist and alias map for one call.
//
// Precedence, highest first: the offer's explicit allowlist (replaces the
// base), the offer's alias overrides (merged on top), the rule table. Keys
// of the offer's custom parameter map and the affiliate synonyms are
// always allowed.
func Resolve(overrides domain.ParamOverrides, rules domain.RuleTable) domain.RuleSet {
	set := domain.RuleSet{
		Allowlist: make(map[string]bool),
		Aliases:   make(map[string]string),
	}

	for id, rule := range rules {
		if !rule.IncludeInCheckout {
			continue
		}
		set.Allowlist[id] = true
		if alias := strings.TrimSpace(rule.Alias); alias != "" {
			set.Aliases[id] = alias
		}
	}

	if len(overrides.AllowedParams) > 0 {
		set.Allowlist = make(map[string]bool, len(overrides.AllowedParams))
		for _, k := range overrides.AllowedParams {
			if k = strings.TrimSpace(k); k != "" {
				set.Allowlist[k] = true
			}
		}
	}

	for k, alias := range overrides.Aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			set.Aliases[k] = alias
		}
	}

	for k, out := range overrides.CustomParams {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		set.Allowlist[k] = true
		if out = strings.TrimSpace(out); out != "" && out != k {
			set.Aliases[k] = out
		}
	}

	for _, k := range AffiliateSynonyms {
		set.Allowlist[k] = true
	}
	return set
}

// BuildQueryParams applies set to tracking and returns the outbound parameters.
func BuildQueryParams(tracking domain.TrackingParams, set domain.RuleSet) map[string]string {
	out := make(map[string]string, len(tracking))

	for k, v := range tracking {
		if k == UserIDKey || domain.IsNullLike(v) || !set.Allows(k) {
			continue
		}
		out[set.OutputKey(k)] = domain.ValueString(v)
	}

	if v, ok := tracking[UserIDKey]; ok && !domain.IsNullLike(v) {
		out[TrackingIDKey] = truncate(strings.TrimSpace(domain.ValueString(v)), MaxTrackingIDLen)
	}

	if v, ok := out["affiliate"]; ok {
		if _, hasAff := out["aff"]; !hasAff {
			out["aff"] = v
			delete(out, "affiliate")
		}
	}
	return out
}

// OrderedKeys returns the keys of params with tid first and the rest sorted,
// so generated URLs are stable.
func OrderedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != TrackingIDKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := params[TrackingIDKey]; ok {
		keys = append([]string{TrackingIDKey}, keys...)
	}
	return keys
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
