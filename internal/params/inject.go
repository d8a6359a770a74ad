package params

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned by AppendParams for a base URL that cannot be parsed.
var ErrInvalidURL = errors.New("invalid base url")

// TrackingPlaceholder is the unresolved token some hoplinks carry.
const TrackingPlaceholder = "[TRACKING_ID]"

var (
	placeholderToken      = strings.Trim(TrackingPlaceholder, "[]")
	placeholderAlt        = regexp.QuoteMeta(TrackingPlaceholder) + "|" + regexp.QuoteMeta(url.QueryEscape(TrackingPlaceholder))
	placeholderParamRegex = regexp.MustCompile(`(?i)([?&])tid=(?:` + placeholderAlt + `)`)
	placeholderBareRegex  = regexp.MustCompile(`(?i)([?&])(?:` + placeholderAlt + `)`)
	doubleAmpRegex        = regexp.MustCompile(`&{2,}`)
)

// StripPlaceholder removes ?[TRACKING_ID], &[TRACKING_ID] and
// tid=[TRACKING_ID] and cleans up the separators left behind.
func StripPlaceholder(raw string) string {
	if !strings.Contains(strings.ToUpper(raw), placeholderToken) {
		return raw
	}
	s := placeholderParamRegex.ReplaceAllString(raw, "$1")
	s = placeholderBareRegex.ReplaceAllString(s, "$1")
	s = doubleAmpRegex.ReplaceAllString(s, "&")
	s = strings.ReplaceAll(s, "?&", "?")
	s = strings.ReplaceAll(s, "&#", "#")
	s = strings.ReplaceAll(s, "?#", "#")
	return strings.TrimRight(s, "?&")
}

// AppendParams injects params into baseURL. Keys already in the query keep
// their values; tid is only replaced when present but empty.
func AppendParams(baseURL string, params map[string]string) (string, error) {
	raw := StripPlaceholder(strings.TrimSpace(baseURL))

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrInvalidURL, baseURL)
	}

	segments := splitQuery(u.RawQuery)
	existing := make(map[string]string, len(segments))
	kept := segments[:0]
	for _, seg := range segments {
		k, v := segmentKV(seg)
		if k == TrackingIDKey && v == "" {
			continue
		}
		if _, seen := existing[k]; !seen {
			existing[k] = v
		}
		kept = append(kept, seg)
	}

	for _, k := range OrderedKeys(params) {
		v := params[k]
		if k == "" || v == "" {
			continue
		}
		if _, ok := existing[k]; ok {
			continue
		}
		kept = append(kept, url.QueryEscape(k)+"="+url.QueryEscape(v))
		existing[k] = v
	}

	u.RawQuery = strings.Join(kept, "&")
	return u.String(), nil
}

func splitQuery(raw string) []string {
	var out []string
	for _, seg := range strings.Split(raw, "&") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func segmentKV(seg string) (string, string) {
	k, v, _ := strings.Cut(seg, "=")
	if uk, err := url.QueryUnescape(k); err == nil {
		k = uk
	}
	if uv, err := url.QueryUnescape(v); err == nil {
		v = uv
	}
	return k, v
}
