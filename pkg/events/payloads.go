package events

// Typed payloads for each event kind. The publisher wraps these in an
// envelope carrying the kind and the durable event id; clients key
// idempotent handling on (type, db_event_id).

// EnrichmentStartedPayload opens an enrichment run.
type EnrichmentStartedPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Domain    string `json:"domain"`
}

// LayerCompletePayload closes one enrichment layer. Fields and
// confidences are post-translation: canonical keys only.
type LayerCompletePayload struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"session_id"`
	Layer       int            `json:"layer"`
	Fields      map[string]any `json:"fields"`
	Confidences map[string]int `json:"confidences"`
	CostUSD     float64        `json:"cost_usd"`
}

// StageStartedPayload marks the start of one analysis stage.
type StageStartedPayload struct {
	Type         string  `json:"type"`
	SubmissionID int64   `json:"submission_id"`
	StageID      int     `json:"stage_id"`
	StageName    string  `json:"stage_name"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	ElapsedMS    int64   `json:"elapsed_ms"`
}

// StageCompletePayload closes one analysis stage.
type StageCompletePayload struct {
	Type         string  `json:"type"`
	SubmissionID int64   `json:"submission_id"`
	StageID      int     `json:"stage_id"`
	StageName    string  `json:"stage_name"`
	Cached       bool    `json:"cached"`
	DurationMS   int64   `json:"duration_ms"`
	CostUSD      float64 `json:"cost_usd"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	ElapsedMS    int64   `json:"elapsed_ms"`
}

// PipelineCompletePayload ends a submission's pipeline. EventsDropped
// is filled in per subscriber by the broker at delivery time.
type PipelineCompletePayload struct {
	Type            string  `json:"type"`
	SubmissionID    int64   `json:"submission_id"`
	ReportAvailable bool    `json:"report_available"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	ElapsedMS       int64   `json:"elapsed_ms"`
	EventsDropped   int     `json:"events_dropped"`
}

// ErrorPayload reports a failure without closing the stream.
type ErrorPayload struct {
	Type    string `json:"type"`
	Where   string `json:"where"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
