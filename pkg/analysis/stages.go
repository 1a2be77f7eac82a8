package analysis

import (
	"context"
	"encoding/json"
	"time"
)

// Stage ids, in execution order.
const (
	StageExtraction = iota + 1
	StageGapAnalysis
	StageStrategy
	StageCompetitive
	StageRiskPriority
	StagePolish
)

// Stage timeouts. Strategy carries the premium model and the longest
// prompt; everything else is bounded at 30s.
const (
	stageTimeout         = 30 * time.Second
	strategyStageTimeout = 90 * time.Second
)

// StageInput is the uniform signature every stage receives. The cache
// wrapper hands the identical input to the fresh-execution fallback,
// so a cache failure can never cause an argument mismatch.
type StageInput struct {
	Company  string         `json:"company"`
	Industry string         `json:"industry"`
	Kwargs   map[string]any `json:"kwargs"`
}

// Kwarg keys used across stages.
const (
	kwargFields      = "fields"
	kwargChallenge   = "challenge"
	kwargTier        = "data_quality_tier"
	kwargSections    = "enabled_sections"
	kwargExtracted   = "extracted_data"
	kwargStrategy    = "strategy"
	kwargCompetitive = "competitive"
	kwargRisk        = "risk_priority"
)

// stageFunc executes one stage and returns its JSON output plus token
// and cost accounting, already folded into the result by the pipeline.
type stageFunc func(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error)

// stageUsage carries one stage's LLM accounting.
type stageUsage struct {
	Model     string
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// stageDef describes one pipeline stage.
type stageDef struct {
	ID       int
	Name     string
	Timeout  time.Duration
	EstCost  float64
	Run      stageFunc
	Disabled bool
}

// stageNames maps ids to stable names used in cache keys and events.
var stageNames = map[int]string{
	StageExtraction:   "extraction",
	StageGapAnalysis:  "gap_analysis",
	StageStrategy:     "strategy",
	StageCompetitive:  "competitive_matrix",
	StageRiskPriority: "risk_priority",
	StagePolish:       "polish",
}

// StageName returns the stable name for a stage id.
func StageName(id int) string { return stageNames[id] }
