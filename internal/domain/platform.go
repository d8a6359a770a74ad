package domain

import "strings"

// Platform enumerates the affiliate platforms the router supports.
type Platform string

const (
	PlatformClickBank   Platform = "clickbank"
	PlatformDigistore24 Platform = "digistore24"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformClickBank, PlatformDigistore24}

// ParsePlatform resolves a platform name case-insensitively.
func ParsePlatform(name string) (Platform, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range Platforms {
		if string(p) == n {
			return p, true
		}
	}
	return "", false
}

// ReturnMode selects the shape of a checkout URL result.
type ReturnMode string

const (
	// ReturnLegacy yields a single URL string, or a list when several offers were found.
	ReturnLegacy ReturnMode = "legacy"
	// ReturnRich yields the structured multi-offer result.
	ReturnRich ReturnMode = "rich"
)

// ParseReturnMode returns the mode for s, or "" when s is not a known mode.
func ParseReturnMode(s string) ReturnMode {
	switch ReturnMode(strings.ToLower(strings.TrimSpace(s))) {
	case ReturnLegacy:
		return ReturnLegacy
	case ReturnRich:
		return ReturnRich
	default:
		return ""
	}
}
