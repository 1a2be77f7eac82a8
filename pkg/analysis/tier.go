// Package analysis implements the six-stage report pipeline: extraction,
// gap analysis, strategy frameworks, competitive matrix, risk and
// priority scoring, and final polish. Stages run strictly in order,
// each wrapped by the stage cache.
package analysis

import (
	"fmt"
	"strings"

	"github.com/bussola-ai/bussola/pkg/models"
)

// scoredFields are the canonical fields that count toward the data
// quality tier, weighted by how much they unlock in stage 3.
var scoredFields = map[string]int{
	"name":            2,
	"industry":        2,
	"description":     2,
	"legalName":       1,
	"state":           1,
	"city":            1,
	"country":         1,
	"companySize":     1,
	"employeeCount":   1,
	"foundedYear":     1,
	"linkedinUrl":     1,
	"rating":          1,
	"reviewsCount":    1,
	"address":         1,
	"digitalMaturity": 1,
	"techStack":       1,
}

// maxTierScore is the weight sum over scoredFields.
const maxTierScore = 19

// ComputeTier grades enrichment completeness before stage 3. The tier
// drives how many framework sections stage 3 is asked to fill.
func ComputeTier(fields map[string]any) models.DataQualityTier {
	score := 0
	for field, weight := range scoredFields {
		if v, ok := fields[field]; ok && strings.TrimSpace(fmt.Sprint(v)) != "" {
			score += weight
		}
	}
	switch {
	case score <= 3:
		return models.TierMinimal
	case score <= 7:
		return models.TierPartial
	case score <= 11:
		return models.TierGood
	case score <= 15:
		return models.TierFull
	default:
		return models.TierLegendary
	}
}

// SectionsForTier returns which framework sections stage 3 should
// attempt at a given tier. Sections outside the list come back as
// dados_insuficientes.
func SectionsForTier(tier models.DataQualityTier) []string {
	base := []string{
		models.SectionSwot,
		models.SectionOKRs,
	}
	switch tier {
	case models.TierMinimal:
		return base
	case models.TierPartial:
		return append(base, models.SectionPestel, models.SectionTamSamSom)
	case models.TierGood:
		return append(base,
			models.SectionPestel, models.SectionTamSamSom,
			models.SectionPorter, models.SectionBSC)
	default:
		return append(base,
			models.SectionPestel, models.SectionTamSamSom,
			models.SectionPorter, models.SectionBSC,
			models.SectionOceanoAzul, models.SectionCenarios)
	}
}
