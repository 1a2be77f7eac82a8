// Package cleanup runs the periodic retention sweep over expired
// sessions, stale stage-cache entries and old event rows.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/database"
)

// Service sweeps expired state on a fixed interval.
type Service struct {
	sessions       *cache.EnrichmentCache
	stages         *cache.StageCache
	eventLog       *database.EventLog
	interval       time.Duration
	eventRetention time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewService wires the sweep.
func NewService(sessions *cache.EnrichmentCache, stages *cache.StageCache, eventLog *database.EventLog, interval, eventRetention time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	if eventRetention <= 0 {
		eventRetention = 7 * 24 * time.Hour
	}
	return &Service{
		sessions:       sessions,
		stages:         stages,
		eventLog:       eventLog,
		interval:       interval,
		eventRetention: eventRetention,
	}
}

// Start launches the sweep loop.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
	slog.Info("Cleanup service started", "interval", s.interval)
}

// Stop halts the loop.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) sweep(ctx context.Context) {
	if _, err := s.sessions.Sweep(ctx); err != nil {
		slog.Error("Session sweep failed", "error", err)
	}
	if n, err := s.stages.Sweep(ctx); err != nil {
		slog.Error("Stage cache sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("Swept expired stage cache entries", "deleted", n)
	}
	cutoff := time.Now().UTC().Add(-s.eventRetention)
	if n, err := s.eventLog.DeleteBefore(ctx, cutoff); err != nil {
		slog.Error("Event log sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("Swept old events", "deleted", n)
	}
}
