package feeds

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/checkout-router/internal/domain"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"ID":                           "id",
		" Include In Checkout ":        "include_in_checkout",
		"\"ClickBank-Alias\"":          "clickbank_alias",
		"Digistore24 Include/Checkout": "digistore24_include_checkout",
		"cbskin":                       "cbskin",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestParseTable(t *testing.T) {
	csv := "\xEF\xBB\xBFID;Include In Checkout;Alias;Notes\n" +
		"gclid;true;;\"google; click id\"\n" +
		"fbclid;no;fb;\n" +
		";yes;ignored;\n" +
		"gclid;yes;g;\"dup, last wins\"\n"

	table, err := ParseTable(strings.NewReader(csv), "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "include_in_checkout", "alias", "notes"}, table.Columns)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"gclid", "fbclid"}, table.IDs)

	row, ok := table.Row("gclid")
	require.True(t, ok)
	assert.Equal(t, "yes", row["include_in_checkout"])
	assert.Equal(t, "g", row["alias"])
	assert.Equal(t, "dup, last wins", row["notes"])

	row, ok = table.Row("fbclid")
	require.True(t, ok)
	assert.Equal(t, "fb", row.Get("missing", "alias"))
}

func TestParseTable_EmbeddedDelimiter(t *testing.T) {
	table, err := ParseTable(strings.NewReader("offer_id;status;cbskin\n\"clickbank:a:1\";active;\"skin;42\"\n"), "offer_id")
	require.NoError(t, err)
	row, ok := table.Row("clickbank:a:1")
	require.True(t, ok)
	assert.Equal(t, "skin;42", row["cbskin"])
}

func TestParseTable_MissingIDColumn(t *testing.T) {
	_, err := ParseTable(strings.NewReader("name;value\na;b\n"), "id")
	assert.Error(t, err)
}

func TestParseTable_Empty(t *testing.T) {
	table, err := ParseTable(strings.NewReader(""), "id")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Y", " y "} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "false", "0", "no", "on"} {
		assert.False(t, ParseBool(v), v)
	}
}

func TestRulesFromTable(t *testing.T) {
	csv := "id;clickbank_include_in_checkout;clickbank_alias;include_in_checkout;alias\n" +
		"gclid;yes;cb_gclid;no;generic\n" +
		"fbclid;no;;yes;\n"
	table, err := ParseTable(strings.NewReader(csv), RuleIDColumns...)
	require.NoError(t, err)

	cb := RulesFromTable(table, domain.PlatformClickBank)
	assert.Equal(t, domain.ParameterRule{ID: "gclid", IncludeInCheckout: true, Alias: "cb_gclid"}, cb["gclid"])
	assert.False(t, cb["fbclid"].IncludeInCheckout)

	// digistore24 has no dedicated columns, so the generic ones apply
	ds := RulesFromTable(table, domain.PlatformDigistore24)
	assert.False(t, ds["gclid"].IncludeInCheckout)
	assert.Equal(t, "generic", ds["gclid"].Alias)
	assert.True(t, ds["fbclid"].IncludeInCheckout)
}

func TestRulesFromTable_NoIncludeColumn(t *testing.T) {
	table, err := ParseTable(strings.NewReader("id;alias\ngclid;g\n"), "id")
	require.NoError(t, err)
	assert.Empty(t, RulesFromTable(table, domain.PlatformClickBank))
}

func TestHeuristicRulesIsCopy(t *testing.T) {
	rules := HeuristicRules(domain.PlatformClickBank)
	require.Contains(t, rules, "gclid")
	delete(rules, "gclid")
	assert.Contains(t, HeuristicRules(domain.PlatformClickBank), "gclid")
}

func TestTemplateDefaults(t *testing.T) {
	active := Row{"status": "Active", "cbskin": "42", "cbfid": "", "other": "x"}
	got, ok := TemplateDefaults(active, domain.PlatformClickBank)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"cbskin": "42"}, got)

	_, ok = TemplateDefaults(Row{"status": "paused", "cbskin": "42"}, domain.PlatformClickBank)
	assert.False(t, ok)

	_, ok = TemplateDefaults(Row{"status": "active"}, domain.PlatformClickBank)
	assert.False(t, ok)

	_, ok = TemplateDefaults(active, domain.PlatformDigistore24)
	assert.False(t, ok)
}
