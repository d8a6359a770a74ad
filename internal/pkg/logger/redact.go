package logger

import (
	"fmt"
	"strings"
	"time"
)

const (
	// RemovedPlaceholder replaces values of secret-bearing keys entirely.
	RemovedPlaceholder = "<removed>"
	// PayloadPlaceholder replaces opaque request bodies.
	PayloadPlaceholder = "<payload>"
	// BinaryPlaceholder replaces raw byte blobs.
	BinaryPlaceholder = "<binary>"
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// MaskString keeps a short prefix and suffix and replaces the middle.
// "TXN-123456789" → "TX***89". Values of 6 characters or fewer are fully masked.
func MaskString(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// MaskConfig lists the keys Mask treats specially. Keys are matched
// case-insensitively and exactly; there is no substring matching.
type MaskConfig struct {
	// RemovedKeys have their value replaced by RemovedPlaceholder.
	RemovedKeys []string
	// MaskedKeys keep a short prefix/suffix of their value.
	MaskedKeys []string
	// PayloadKeys hold opaque bodies; scalar values become PayloadPlaceholder.
	PayloadKeys []string
}

// DefaultMaskConfig covers secrets, customer identifiers and postback bodies.
func DefaultMaskConfig() MaskConfig {
	return MaskConfig{
		RemovedKeys: []string{
			"auth_key", "secret", "secret_key", "passphrase", "password",
			"token", "access_token", "api_key", "apikey", "sha_sign",
			"signature", "x-cb-signature", "authorization",
		},
		MaskedKeys: []string{
			"email", "customer_email", "customeremail", "buyer_email",
			"transaction_id", "transactionid", "order_id", "orderid",
			"receipt", "parent_receipt", "parentreceipt",
		},
		PayloadKeys: []string{"notification", "payload", "body", "raw_body"},
	}
}

func (c *MaskConfig) isRemoved(key string) bool { return hasKey(c.RemovedKeys, key) }

func (c *MaskConfig) isMasked(key string) bool { return hasKey(c.MaskedKeys, key) }

func (c *MaskConfig) isPayload(key string) bool { return hasKey(c.PayloadKeys, key) }

func hasKey(keys []string, key string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Mask returns a sanitized deep copy of v. Maps and slices are walked
// recursively, []byte becomes BinaryPlaceholder and time values are
// rendered as RFC 3339 strings. The input is never modified.
func Mask(v interface{}, cfg MaskConfig) interface{} {
	return maskValue("", v, &cfg)
}

func maskValue(key string, v interface{}, cfg *MaskConfig) interface{} {
	if key != "" && cfg.isRemoved(key) {
		return RemovedPlaceholder
	}

	switch t := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = maskValue(k, val, cfg)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = maskValue(k, val, cfg)
		}
		return out
	case map[string][]string:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = maskValue(k, val, cfg)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = maskValue(key, val, cfg)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = maskValue(key, val, cfg)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = maskValue(key, val, cfg)
		}
		return out
	case []byte:
		return BinaryPlaceholder
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	}

	if key != "" && cfg.isPayload(key) {
		return PayloadPlaceholder
	}
	if key != "" && cfg.isMasked(key) {
		s := scalarString(v)
		if strings.Contains(strings.ToLower(key), "email") && strings.Contains(s, "@") {
			return RedactEmail(s)
		}
		return MaskString(s)
	}
	return v
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
