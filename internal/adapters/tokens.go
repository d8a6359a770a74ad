package adapters

import (
	"strings"

	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// trackingTokens are the click ids a platform echoes back inside its
// own tracking fields as prefixed tokens ("gclid_abc", "tid_u1").
type trackingTokens struct {
	GCLID  string
	FBCLID string
	TID    string
}

var tokenPrefixes = []string{"gclid_", "fbclid_", "tid_"}

// extractTokens takes the first token of each kind and strips its prefix.
// Values may hold several tokens separated by commas, semicolons, pipes or spaces.
func extractTokens(values ...string) trackingTokens {
	var t trackingTokens
	for _, v := range values {
		for _, tok := range strings.FieldsFunc(v, isTokenSeparator) {
			lower := strings.ToLower(tok)
			for _, prefix := range tokenPrefixes {
				if !strings.HasPrefix(lower, prefix) || len(tok) == len(prefix) {
					continue
				}
				val := tok[len(prefix):]
				switch prefix {
				case "gclid_":
					if t.GCLID == "" {
						t.GCLID = val
					}
				case "fbclid_":
					if t.FBCLID == "" {
						t.FBCLID = val
					}
				case "tid_":
					if t.TID == "" {
						t.TID = val
					}
				}
			}
		}
	}
	return t
}

func isTokenSeparator(r rune) bool {
	return r == ',' || r == ';' || r == '|' || r == ' ' || r == '\t' || r == '\n'
}

// maskPayload returns the masked copy of a decoded postback for RawPayload.
func maskPayload(raw map[string]interface{}) map[string]interface{} {
	masked, _ := logger.Mask(raw, logger.DefaultMaskConfig()).(map[string]interface{})
	return masked
}
