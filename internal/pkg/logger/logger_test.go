package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "***", MaskString("abc"))
	assert.Equal(t, "***", MaskString("abcdef"))
	assert.Equal(t, "TX***89", MaskString("TXN-123456789"))
}

func TestMask(t *testing.T) {
	ts := time.Date(2026, 1, 27, 8, 6, 13, 0, time.UTC)
	in := map[string]interface{}{
		"auth_key":       "super-secret",
		"transaction_id": "TXN-123456789",
		"amount":         49.95,
		"notification":   "base64-ciphertext",
		"blob":           []byte{0x01, 0x02},
		"when":           ts,
		"customer": map[string]interface{}{
			"email": "john.doe@example.com",
			"name":  "John",
		},
		"lineItems": []interface{}{
			map[string]interface{}{"receipt": "ABCD1234XY", "itemNo": "1"},
		},
	}

	out, ok := Mask(in, DefaultMaskConfig()).(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, RemovedPlaceholder, out["auth_key"])
	assert.Equal(t, "TX***89", out["transaction_id"])
	assert.Equal(t, 49.95, out["amount"])
	assert.Equal(t, PayloadPlaceholder, out["notification"])
	assert.Equal(t, BinaryPlaceholder, out["blob"])
	assert.Equal(t, "2026-01-27T08:06:13Z", out["when"])

	customer := out["customer"].(map[string]interface{})
	assert.Equal(t, "jo***@example.com", customer["email"])
	assert.Equal(t, "John", customer["name"])

	items := out["lineItems"].([]interface{})
	item := items[0].(map[string]interface{})
	assert.Equal(t, "AB***XY", item["receipt"])
	assert.Equal(t, "1", item["itemNo"])

	// input untouched
	assert.Equal(t, "super-secret", in["auth_key"])
}

func TestMask_ExactKeyMatch(t *testing.T) {
	cfg := MaskConfig{RemovedKeys: []string{"token"}}
	out := Mask(map[string]interface{}{"token": "x", "tokenizer": "keep"}, cfg).(map[string]interface{})
	assert.Equal(t, RemovedPlaceholder, out["token"])
	assert.Equal(t, "keep", out["tokenizer"])
}

func TestLogRedactsFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("postback accepted", "customer_email", "john.doe@example.com", "secret", "s3cr3t", "note", "ping me at jane@example.org")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "jo***@example.com", entry["customer_email"])
	assert.Equal(t, RemovedPlaceholder, entry["secret"])
	assert.Equal(t, "ping me at ja***@example.org", entry["note"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
