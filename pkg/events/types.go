// Package events provides real-time progress delivery via Server-Sent
// Events backed by PostgreSQL NOTIFY/LISTEN. Events are persisted to
// the events table and broadcast in the same transaction, so a late
// subscriber can always catch up from the durable log by event id.
package events

import "strconv"

// Event kinds, in emission order within one run.
const (
	KindEnrichmentStarted = "enrichment_started"
	KindLayer1Complete    = "layer1_complete"
	KindLayer2Complete    = "layer2_complete"
	KindLayer3Complete    = "layer3_complete"
	KindStageStarted      = "stage_started"
	KindStageComplete     = "stage_complete"
	KindPipelineComplete  = "pipeline_complete"
	KindError             = "error"
)

// LayerKind returns the completion kind for an enrichment layer.
func LayerKind(layer int) string {
	switch layer {
	case 1:
		return KindLayer1Complete
	case 2:
		return KindLayer2Complete
	default:
		return KindLayer3Complete
	}
}

// EnrichmentChannel is the NOTIFY channel for one enrichment session.
func EnrichmentChannel(sessionID string) string {
	return "enrichment:" + sessionID
}

// SubmissionChannel is the NOTIFY channel for one submission's pipeline.
func SubmissionChannel(submissionID int64) string {
	return "submission:" + strconv.FormatInt(submissionID, 10)
}
