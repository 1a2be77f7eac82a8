package enrichment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey_ClosedTable(t *testing.T) {
	assert.Equal(t, "name", CanonicalKey("company_name"))
	assert.Equal(t, "name", CanonicalKey("business_name"))
	assert.Equal(t, "legalName", CanonicalKey("legal_name"))
	assert.Equal(t, "state", CanonicalKey("region"))
	assert.Equal(t, "state", CanonicalKey("state"))
	assert.Equal(t, "industry", CanonicalKey("ai_industry"))
	assert.Equal(t, "companySize", CanonicalKey("ai_company_size"))
	assert.Equal(t, "digitalMaturity", CanonicalKey("ai_digital_maturity"))
	assert.Equal(t, "employeeCount", CanonicalKey("employee_count"))
}

func TestCanonicalKey_FallbackRule(t *testing.T) {
	// Keys outside the closed table: strip ai_, snake_case to lowerCamel.
	assert.Equal(t, "growthScore", CanonicalKey("ai_growth_score"))
	assert.Equal(t, "someLongKey", CanonicalKey("some_long_key"))
	assert.Equal(t, "simple", CanonicalKey("simple"))
	assert.Equal(t, "alreadyCamel", CanonicalKey("alreadyCamel"))
}

func TestTranslate_NoRawKeysLeak(t *testing.T) {
	raw := map[string]any{
		"company_name":   "Acme Ltda",
		"region":         "SP",
		"ai_industry":    "varejo",
		"employee_count": 42,
	}

	out := Translate(raw)

	assert.Equal(t, "Acme Ltda", out["name"])
	assert.Equal(t, "SP", out["state"])
	assert.Equal(t, "varejo", out["industry"])
	assert.Equal(t, 42, out["employeeCount"])
	for key := range out {
		assert.False(t, strings.Contains(key, "_"), "snake_case key leaked: %s", key)
		assert.False(t, strings.HasPrefix(key, "ai_"), "ai_ prefix leaked: %s", key)
	}
}

func TestTranslate_CollisionKeepsOneValue(t *testing.T) {
	raw := map[string]any{
		"company_name":  "Acme",
		"business_name": "Acme Comercio",
	}

	out := Translate(raw)

	assert.Len(t, out, 1)
	assert.Contains(t, []any{"Acme", "Acme Comercio"}, out["name"])
}
