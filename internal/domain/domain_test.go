package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNullLike(t *testing.T) {
	for _, v := range []interface{}{nil, "", " ", "null", "NULL", "undefined", "None", "na", "N/A"} {
		assert.True(t, IsNullLike(v), "%#v should be null-like", v)
	}
	for _, v := range []interface{}{"0", "u1", 0, 12.5, false, "nan"} {
		assert.False(t, IsNullLike(v), "%#v should not be null-like", v)
	}
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "abc", ValueString("abc"))
	assert.Equal(t, "42", ValueString(float64(42)))
	assert.Equal(t, "4.5", ValueString(4.5))
	assert.Equal(t, "7", ValueString(7))
	assert.Equal(t, "true", ValueString(true))
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform(" ClickBank ")
	require.True(t, ok)
	assert.Equal(t, PlatformClickBank, p)

	p, ok = ParsePlatform("DIGISTORE24")
	require.True(t, ok)
	assert.Equal(t, PlatformDigistore24, p)

	_, ok = ParsePlatform("jvzoo")
	assert.False(t, ok)
}

func TestParseReturnMode(t *testing.T) {
	assert.Equal(t, ReturnRich, ParseReturnMode("RICH"))
	assert.Equal(t, ReturnLegacy, ParseReturnMode("legacy"))
	assert.Equal(t, ReturnMode(""), ParseReturnMode("fancy"))
}

func TestOfferDataBaseLink(t *testing.T) {
	assert.Equal(t, "https://hop.example/x", OfferData{Hoplink: "https://hop.example/x", CheckoutURL: "https://c.example"}.BaseLink())
	assert.Equal(t, "https://c.example", OfferData{CheckoutURL: "https://c.example"}.BaseLink())
	assert.Equal(t, "", OfferData{CheckoutURL: "adapter:clickbank"}.BaseLink())
	assert.Equal(t, "", OfferData{}.BaseLink())
}

func TestCanonicalOfferID(t *testing.T) {
	id := CanonicalOfferID(PlatformClickBank, "EndoPeak", "500001")
	require.NotNil(t, id)
	assert.Equal(t, "clickbank:endopeak:500001", *id)
	assert.Nil(t, CanonicalOfferID(PlatformClickBank, "", "500001"))
	assert.Nil(t, CanonicalOfferID(PlatformClickBank, "endopeak", ""))
}

func TestCheckoutResultJSON(t *testing.T) {
	single := &CheckoutResult{Mode: ReturnLegacy, URLs: []string{"https://a.example"}}
	b, err := json.Marshal(single)
	require.NoError(t, err)
	assert.JSONEq(t, `"https://a.example"`, string(b))

	multi := &CheckoutResult{Mode: ReturnLegacy, URLs: []string{"https://a.example", "https://b.example"}}
	b, err = json.Marshal(multi)
	require.NoError(t, err)
	assert.JSONEq(t, `["https://a.example","https://b.example"]`, string(b))

	rich := &CheckoutResult{
		Mode:     ReturnRich,
		Platform: PlatformClickBank,
		URLs:     []string{"https://a.example"},
		Offers:   []NormalizedOffer{{URL: "https://a.example", AffiliatePlatform: PlatformClickBank}},
	}
	b, err = json.Marshal(rich)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "rich", decoded["mode"])
	assert.Equal(t, "https://a.example", decoded["primary_url"])
	assert.Len(t, decoded["offers"], 1)
}

func TestRuleSetOutputKey(t *testing.T) {
	rs := RuleSet{Allowlist: map[string]bool{"gclid": true}, Aliases: map[string]string{"gclid": "cbgclid"}}
	assert.True(t, rs.Allows("gclid"))
	assert.False(t, rs.Allows("fbclid"))
	assert.Equal(t, "cbgclid", rs.OutputKey("gclid"))
	assert.Equal(t, "fbclid", rs.OutputKey("fbclid"))
}
