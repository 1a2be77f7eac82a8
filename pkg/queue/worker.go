// Package queue runs the submission worker pool. Workers claim queued
// submissions with FOR UPDATE SKIP LOCKED, drive them through the
// analysis pipeline, and heartbeat so orphaned work can be requeued.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bussola-ai/bussola/pkg/analysis"
	"github.com/bussola-ai/bussola/pkg/database"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/models"
	"github.com/bussola-ai/bussola/pkg/session"
)

const heartbeatEvery = 30 * time.Second

// Config tunes the pool.
type Config struct {
	Workers          int
	PollEvery        time.Duration
	OrphanStaleAfter time.Duration
}

// Pool is the worker pool.
type Pool struct {
	cfg       Config
	store     *database.SubmissionStore
	loader    *session.Loader
	pipeline  *analysis.Pipeline
	publisher *events.Publisher

	wg     sync.WaitGroup
	cancel context.CancelFunc

	active           atomic.Int64
	processed        atomic.Int64
	failed           atomic.Int64
	orphansRecovered atomic.Int64
}

// PoolHealth is the pool's snapshot for the health endpoint.
type PoolHealth struct {
	TotalWorkers     int   `json:"total_workers"`
	ActiveJobs       int64 `json:"active_jobs"`
	Processed        int64 `json:"processed"`
	Failed           int64 `json:"failed"`
	OrphansRecovered int64 `json:"orphans_recovered"`
}

// NewPool wires the pool.
func NewPool(cfg Config, store *database.SubmissionStore, loader *session.Loader, pipeline *analysis.Pipeline, publisher *events.Publisher) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.OrphanStaleAfter <= 0 {
		cfg.OrphanStaleAfter = 5 * time.Minute
	}
	return &Pool{cfg: cfg, store: store, loader: loader, pipeline: pipeline, publisher: publisher}
}

// Start launches the workers and the orphan-recovery loop.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.New().String()[:8])
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanRecovery(ctx)
	}()

	slog.Info("Worker pool started", "workers", p.cfg.Workers)
}

// Stop drains the pool. In-flight submissions finish their current
// stage and are requeued by orphan recovery if the process dies first.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sub, err := p.store.Claim(ctx, workerID, time.Now().UTC())
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Claim failed", "worker", workerID, "error", err)
			}
			continue
		}
		if sub == nil {
			continue
		}
		p.process(ctx, workerID, sub)
	}
}

// Health returns the pool's current counters.
func (p *Pool) Health() PoolHealth {
	return PoolHealth{
		TotalWorkers:     p.cfg.Workers,
		ActiveJobs:       p.active.Load(),
		Processed:        p.processed.Load(),
		Failed:           p.failed.Load(),
		OrphansRecovered: p.orphansRecovered.Load(),
	}
}

// process drives one submission through the pipeline.
func (p *Pool) process(ctx context.Context, workerID string, sub *models.Submission) {
	p.active.Add(1)
	defer p.active.Add(-1)
	start := time.Now()
	slog.Info("Processing submission", "worker", workerID, "submission_id", sub.ID)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeat(hbCtx, workerID, sub.ID)

	sessionID := ""
	if sub.SessionID != nil {
		sessionID = *sub.SessionID
	}
	fields, _ := p.loader.Load(ctx, sessionID, submissionForm(sub))

	if err := p.store.SetProcessingState(ctx, sub.ID, models.ProcessingAnalyzing); err != nil {
		slog.Error("State transition failed", "submission_id", sub.ID, "error", err)
	}

	result, err := p.pipeline.Run(ctx, analysis.Request{
		SubmissionID: sub.ID,
		Company:      sub.Company,
		Industry:     sub.Industry,
		Challenge:    sub.Challenge,
		Fields:       fields,
		ForceFrom:    sub.ReprocessFrom,
	})
	totalCost := 0.0
	if result != nil {
		totalCost = result.TotalCostUSD
	}
	if err != nil {
		p.fail(ctx, sub.ID, err, totalCost)
		return
	}

	if err := p.store.SetProcessingState(ctx, sub.ID, models.ProcessingFinalizing); err != nil {
		slog.Error("State transition failed", "submission_id", sub.ID, "error", err)
	}
	if err := p.store.Complete(ctx, sub.ID, result.Report, totalCost); err != nil {
		p.fail(ctx, sub.ID, fmt.Errorf("persist report: %w", err), totalCost)
		return
	}

	err = p.publisher.PipelineComplete(ctx, sub.ID, events.PipelineCompletePayload{
		ReportAvailable: true,
		TotalCostUSD:    totalCost,
		ElapsedMS:       time.Since(start).Milliseconds(),
	})
	if err != nil {
		slog.Warn("Failed to publish pipeline_complete", "submission_id", sub.ID, "error", err)
	}
	p.processed.Add(1)
	slog.Info("Submission completed",
		"submission_id", sub.ID, "cost_usd", totalCost,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// submissionForm projects the form values that participate in the
// session overlay. Website rides along so a user-corrected URL wins
// over the cached one and lands in the edit ledger.
func submissionForm(sub *models.Submission) map[string]string {
	return map[string]string{
		"name":     sub.Company,
		"industry": sub.Industry,
		"website":  sub.Website,
	}
}

func (p *Pool) fail(ctx context.Context, id int64, cause error, totalCost float64) {
	p.failed.Add(1)
	slog.Error("Submission failed", "submission_id", id, "error", cause)
	if err := p.store.Fail(ctx, id, cause.Error(), totalCost); err != nil {
		slog.Error("Failed to mark submission failed", "submission_id", id, "error", err)
	}
	channel := events.SubmissionChannel(id)
	if err := p.publisher.Error(ctx, channel, "pipeline", "internal", cause.Error()); err != nil {
		slog.Warn("Failed to publish error event", "submission_id", id, "error", err)
	}
}

func (p *Pool) heartbeat(ctx context.Context, workerID string, id int64) {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.Heartbeat(ctx, id, workerID, time.Now().UTC()); err != nil {
				slog.Warn("Heartbeat failed", "submission_id", id, "error", err)
				return
			}
		}
	}
}

func (p *Pool) runOrphanRecovery(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanStaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale := time.Now().UTC().Add(-p.cfg.OrphanStaleAfter)
			n, err := p.store.RecoverOrphans(ctx, stale)
			if err != nil {
				slog.Error("Orphan recovery failed", "error", err)
				continue
			}
			if n > 0 {
				p.orphansRecovered.Add(n)
				slog.Warn("Requeued orphaned submissions", "count", n)
			}
		}
	}
}
