package enrichment

import "strings"

// canonicalMap is the closed translation table from source-native keys
// to the canonical vocabulary consumers see. Applied before any event
// emission and on every session read; raw source keys must never leak
// past this package.
var canonicalMap = map[string]string{
	"company_name":        "name",
	"business_name":       "name",
	"legal_name":          "legalName",
	"region":              "state",
	"state":               "state",
	"city":                "city",
	"country":             "country",
	"ai_industry":         "industry",
	"ai_company_size":     "companySize",
	"ai_digital_maturity": "digitalMaturity",
	"employee_count":      "employeeCount",
	"founded_year":        "foundedYear",
	"linkedin_url":        "linkedinUrl",
	"description":         "description",
	"phone":               "phone",
	"address":             "address",
	"rating":              "rating",
	"reviews_count":       "reviewsCount",
	"page_title":          "pageTitle",
	"tech_stack":          "techStack",
	"email_pattern":       "emailPattern",
	"timezone":            "timezone",
}

// CanonicalKey maps one source-native key to its canonical form. Keys
// outside the closed table fall back to the generic rule: strip any
// ai_ prefix, convert snake_case to lowerCamelCase.
func CanonicalKey(key string) string {
	if canonical, ok := canonicalMap[key]; ok {
		return canonical
	}
	return snakeToLowerCamel(strings.TrimPrefix(key, "ai_"))
}

// Translate rewrites every key of a raw field map to canonical form.
// When two raw keys collapse onto one canonical key the first wins;
// merge-order decisions belong to the merger, not the translator.
func Translate(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		canonical := CanonicalKey(key)
		if _, exists := out[canonical]; exists {
			continue
		}
		out[canonical] = value
	}
	return out
}

func snakeToLowerCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}
