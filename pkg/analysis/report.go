package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bussola-ai/bussola/pkg/models"
)

// sectionOrder fixes the section sequence of the final report. This is
// the contract with downstream editors.
var sectionOrder = []string{
	models.SectionSumarioExecutivo,
	models.SectionPestel,
	models.SectionSwot,
	models.SectionPorter,
	models.SectionOceanoAzul,
	models.SectionTamSamSom,
	models.SectionOKRs,
	models.SectionBSC,
	models.SectionCenarios,
	models.SectionMatriz,
	models.SectionPriorizacao,
	models.SectionRiscos,
	models.SectionROI,
}

// reportStage is one stage's contribution as recorded in the report.
type reportStage struct {
	StageID    int             `json:"stage_id"`
	StageName  string          `json:"stage_name"`
	Output     json.RawMessage `json:"output"`
	Cached     bool            `json:"cached"`
	CostUSD    float64         `json:"cost_usd"`
	DurationMS int64           `json:"duration_ms"`
}

// assembleReport merges the stage outputs into the final document:
// the framework sections in fixed order, the six per-stage records,
// and run metadata. Polish output overrides earlier sections where it
// rewrote them.
func assembleReport(req Request, res *Result, generatedAt time.Time) (json.RawMessage, error) {
	if len(res.Stages) != 6 {
		return nil, fmt.Errorf("expected 6 completed stages, got %d", len(res.Stages))
	}

	merged := make(map[string]json.RawMessage)
	for _, stage := range res.Stages {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(stage.Output, &obj); err != nil {
			return nil, fmt.Errorf("stage %s output is not an object: %w", stage.StageName, err)
		}
		// Later stages win: polish runs last and carries corrections.
		for key, value := range obj {
			merged[key] = value
		}
	}

	sections := make(map[string]json.RawMessage, len(sectionOrder))
	for _, path := range sectionOrder {
		if value, ok := merged[path]; ok {
			sections[path] = value
		}
	}

	stages := make([]reportStage, 0, len(res.Stages))
	for _, s := range res.Stages {
		stages = append(stages, reportStage{
			StageID:    s.StageID,
			StageName:  s.StageName,
			Output:     s.Output,
			Cached:     s.Cached,
			CostUSD:    s.CostUSD,
			DurationMS: s.DurationMS,
		})
	}

	report := map[string]any{
		"empresa":      req.Company,
		"setor":        req.Industry,
		"secoes":       sections,
		"ordem_secoes": sectionOrder,
		"etapas":       stages,
		"metadata": map[string]any{
			"generated_at":      generatedAt.Format(time.RFC3339),
			"data_quality_tier": string(res.Tier),
			"total_cost_usd":    res.TotalCostUSD,
		},
	}
	return json.Marshal(report)
}
