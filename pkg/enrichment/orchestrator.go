package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/enrichment/sources"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/models"
)

// Layer budgets. Upper bounds; a layer returns whatever settled in time.
var layerBudgets = map[int]time.Duration{
	1: 2 * time.Second,
	2: 6 * time.Second,
	3: 10 * time.Second,
}

// drainGrace bounds how long cancellation may take to propagate.
const drainGrace = 500 * time.Millisecond

// EventSink receives run progress. Satisfied by events.Publisher.
type EventSink interface {
	EnrichmentStarted(ctx context.Context, sessionID, domain string) error
	LayerComplete(ctx context.Context, sessionID string, payload events.LayerCompletePayload) error
	Error(ctx context.Context, channel, where, kind, message string) error
}

// layerOutcome is one adapter's settled result, passed back to the
// orchestrator's own task for merging. Adapters never touch the session.
type layerOutcome struct {
	source sources.Source
	result *sources.SourceResult
}

// Orchestrator runs the three enrichment layers for one domain,
// merging adapter results into a session and streaming an event at
// each layer boundary.
type Orchestrator struct {
	registry *sources.Registry
	cache    *cache.EnrichmentCache
	sink     EventSink
	merger   *Merger
	ttl      time.Duration
	now      func() time.Time
}

// NewOrchestrator wires the engine. penalties may be nil.
func NewOrchestrator(registry *sources.Registry, sessionCache *cache.EnrichmentCache, sink EventSink, penalties PenaltyFunc, ttl time.Duration) *Orchestrator {
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL
	}
	return &Orchestrator{
		registry: registry,
		cache:    sessionCache,
		sink:     sink,
		merger:   NewMerger(penalties),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Run executes a full enrichment for a raw URL. On a cache hit the
// stored session is returned and a single synthetic layer3_complete is
// emitted. The returned session always carries canonical field names.
func (o *Orchestrator) Run(ctx context.Context, rawURL, email string) (*models.EnrichmentSession, error) {
	session, cached, err := o.Prepare(ctx, rawURL, email)
	if err != nil {
		return nil, err
	}
	if cached {
		o.emitLayer(ctx, session, 3)
		return session, nil
	}
	return session, o.Enrich(ctx, session)
}

// Prepare resolves the session a raw URL maps to: the cached one when a
// fresh entry exists, otherwise a new pending session. It never runs a
// layer, so callers can return the session id before enrichment starts.
func (o *Orchestrator) Prepare(ctx context.Context, rawURL, email string) (*models.EnrichmentSession, bool, error) {
	websiteURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("normalize url: %w", err)
	}
	domain, _ := Domain(websiteURL)
	cacheKey := SessionCacheKey(domain)

	if cached, err := o.cache.GetByCacheKey(ctx, cacheKey); err != nil {
		slog.Warn("Enrichment cache read failed, running fresh", "domain", domain, "error", err)
	} else if cached != nil {
		slog.Info("Enrichment cache hit", "domain", domain, "session_id", cached.ID)
		return cached, true, nil
	}

	session := models.NewEnrichmentSession(
		uuid.New().String(), cacheKey, domain, websiteURL, email, o.now().UTC(), o.ttl)
	return session, false, nil
}

// Enrich runs the three layers for a prepared session. A session that
// is already complete only gets the synthetic layer3_complete, so
// stream subscribers of a cache hit still see the final field map. An
// active session is already being run by another task; re-running it
// would race on its maps, so callers attach to its stream instead.
func (o *Orchestrator) Enrich(ctx context.Context, session *models.EnrichmentSession) error {
	switch session.Status {
	case models.SessionComplete:
		o.emitLayer(ctx, session, 3)
		return nil
	case models.SessionActive:
		slog.Info("Enrichment already in flight, attaching to its stream",
			"session_id", session.ID, "domain", session.Domain)
		return nil
	}
	session.Status = models.SessionActive

	if err := o.sink.EnrichmentStarted(ctx, session.ID, session.Domain); err != nil {
		slog.Warn("Failed to publish enrichment_started", "session_id", session.ID, "error", err)
	}

	for layer := 1; layer <= 3; layer++ {
		if ctx.Err() != nil {
			o.abort(session)
			return ctx.Err()
		}
		o.runLayer(ctx, session, layer)

		if ctx.Err() != nil {
			o.abort(session)
			return ctx.Err()
		}
		o.emitLayer(ctx, session, layer)
		if err := o.cache.Put(ctx, session); err != nil {
			slog.Error("Failed to persist session after layer",
				"session_id", session.ID, "layer", layer, "error", err)
		}
	}

	now := o.now().UTC()
	session.Status = models.SessionComplete
	session.EndedAt = &now
	if err := o.cache.Put(ctx, session); err != nil {
		slog.Error("Failed to persist completed session", "session_id", session.ID, "error", err)
	}
	return nil
}

// runLayer fans out to every eligible adapter of one layer and folds
// the settled results into the session. All merging happens here, on
// the orchestrator's task.
func (o *Orchestrator) runLayer(ctx context.Context, session *models.EnrichmentSession, layer int) {
	eligible := o.eligibleSources(session, layer)
	if len(eligible) == 0 {
		slog.Debug("No eligible sources for layer", "session_id", session.ID, "layer", layer)
		return
	}

	layerCtx, cancel := context.WithTimeout(ctx, layerBudgets[layer])
	defer cancel()

	hints := o.buildHints(session)
	outcomes := make(chan layerOutcome, len(eligible))

	g, gctx := errgroup.WithContext(layerCtx)
	for _, src := range eligible {
		g.Go(func() error {
			// The channel is buffered to len(eligible); this send never blocks.
			outcomes <- layerOutcome{source: src, result: sources.Execute(gctx, src, session.Domain, hints)}
			return nil
		})
	}
	go func() { _ = g.Wait() }()

	deadline := time.After(layerBudgets[layer] + drainGrace)
	for received := 0; received < len(eligible); received++ {
		var outcome layerOutcome
		select {
		case outcome = <-outcomes:
		case <-deadline:
			slog.Warn("Layer overran its budget plus grace, abandoning stragglers",
				"session_id", session.ID, "layer", layer,
				"settled", received, "expected", len(eligible))
			return
		}

		res := outcome.result
		session.TotalCost += res.CostUSD
		if !res.Success {
			if res.ErrorKind != sources.ErrNotFound {
				o.recordFailure(session, outcome.source.Name(), layer, res)
				slog.Warn("Source failed",
					"session_id", session.ID, "source", outcome.source.Name(),
					"kind", res.ErrorKind, "error", res.ErrorMsg)
			}
			continue
		}
		o.merger.Merge(session, outcome.source.Name(), layer, outcome.source.Confidence(), res)
	}
}

// recordFailure keeps an audit entry for a source call that failed.
// not_found is absence, not failure, and is never recorded.
func (o *Orchestrator) recordFailure(session *models.EnrichmentSession, sourceName string, layer int, res *sources.SourceResult) {
	if session.SourceErrors == nil {
		session.SourceErrors = make(map[string]models.SourceAttribution)
	}
	session.SourceErrors[sourceName] = models.SourceAttribution{
		Source:      sourceName,
		Layer:       layer,
		CostUSD:     res.CostUSD,
		ExtractedAt: o.now().UTC().Format(time.RFC3339),
		Success:     false,
		ErrorKind:   string(res.ErrorKind),
	}
}

// eligibleSources returns the layer's adapters whose breakers admit
// calls right now.
func (o *Orchestrator) eligibleSources(session *models.EnrichmentSession, layer int) []sources.Source {
	var eligible []sources.Source
	for _, src := range o.registry.ByLayer(layer) {
		if src.Breaker() != nil && src.Breaker().Open() {
			slog.Debug("Skipping source with open breaker",
				"session_id", session.ID, "source", src.Name())
			continue
		}
		eligible = append(eligible, src)
	}
	return eligible
}

// buildHints projects already-known facts into the hint map later
// layers receive.
func (o *Orchestrator) buildHints(session *models.EnrichmentSession) sources.Hints {
	hints := make(sources.Hints, len(session.Fields))
	for field, value := range session.Fields {
		if s := fmt.Sprint(value); s != "" {
			hints[field] = s
		}
	}
	return hints
}

// emitLayer publishes layer{N}_complete with the current canonical
// field map. Session fields are canonical by construction; Translate
// runs again here as the final guard before anything leaves the engine.
func (o *Orchestrator) emitLayer(ctx context.Context, session *models.EnrichmentSession, layer int) {
	fields := Translate(session.Fields)
	confidences := make(map[string]int, len(session.Confidences))
	for field, c := range session.Confidences {
		confidences[CanonicalKey(field)] = c
	}
	err := o.sink.LayerComplete(ctx, session.ID, events.LayerCompletePayload{
		Layer:       layer,
		Fields:      fields,
		Confidences: confidences,
		CostUSD:     session.TotalCost,
	})
	if err != nil {
		slog.Warn("Failed to publish layer event",
			"session_id", session.ID, "layer", layer, "error", err)
	}
}

// abort marks the session cancelled. Aborted sessions are never cached.
func (o *Orchestrator) abort(session *models.EnrichmentSession) {
	now := o.now().UTC()
	session.Status = models.SessionAborted
	session.EndedAt = &now
}
