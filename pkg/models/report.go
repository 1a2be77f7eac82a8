package models

import (
	"encoding/json"
	"time"
)

// Report section paths. These keys are the contract with downstream
// editors and must not change without a coordinated migration.
const (
	SectionSumarioExecutivo = "sumario_executivo"
	SectionPestel           = "analise_pestel"
	SectionSwot             = "analise_swot"
	SectionPorter           = "forcas_porter"
	SectionOceanoAzul       = "oceano_azul"
	SectionTamSamSom        = "tam_sam_som"
	SectionOKRs             = "okrs_propostos"
	SectionBSC              = "balanced_scorecard"
	SectionCenarios         = "cenarios"
	SectionMatriz           = "matriz_competitiva"
	SectionPriorizacao      = "priorizacao_recomendacoes"
	SectionRiscos           = "analise_riscos"
	SectionROI              = "roi_estimado"
)

// StatusInsufficientData marks a framework section the model refused to
// fill because required inputs were absent at the current data tier.
const StatusInsufficientData = "dados_insuficientes"

// AnalysisStageResult is the output of one pipeline stage.
type AnalysisStageResult struct {
	StageID     int             `json:"stage_id"`
	StageName   string          `json:"stage_name"`
	Output      json.RawMessage `json:"output"`
	Fingerprint string          `json:"input_fingerprint"`
	Model       string          `json:"model"`
	TokensIn    int             `json:"tokens_in"`
	TokensOut   int             `json:"tokens_out"`
	CostUSD     float64         `json:"cost_usd"`
	DurationMS  int64           `json:"duration_ms"`
	Cached      bool            `json:"cached"`
	CompletedAt time.Time       `json:"completed_at"`
}

// StageCacheEntry is a persisted stage result keyed by input fingerprint.
type StageCacheEntry struct {
	StageName    string          `db:"stage_name"`
	CacheKey     string          `db:"cache_key"`
	Result       json.RawMessage `db:"result"`
	CostSavedUSD float64         `db:"cost_saved_usd"`
	HitCount     int             `db:"hit_count"`
	ExpiresAt    time.Time       `db:"expires_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

// StageCacheTTL is how long individual stage results are reusable.
const StageCacheTTL = 7 * 24 * time.Hour

// DataQualityTier categorizes enrichment completeness before stage 3.
type DataQualityTier string

const (
	TierMinimal   DataQualityTier = "minimal"
	TierPartial   DataQualityTier = "partial"
	TierGood      DataQualityTier = "good"
	TierFull      DataQualityTier = "full"
	TierLegendary DataQualityTier = "legendary"
)
