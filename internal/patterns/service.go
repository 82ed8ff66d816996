package patterns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/observability"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// Repository supplies the closed Assignment history the detectors mine.
// tenantID is empty for the platform-wide run.
type Repository interface {
	ConversionSamples(ctx context.Context, tenantID string, since time.Time) ([]ConversionSample, error)
}

// Store persists computed Pattern Records and tracks each scope's last
// successful run, so the weekly cadence survives a process restart.
type Store interface {
	SaveRecords(ctx context.Context, records []domain.PatternRecord) error
	LastRunAt(ctx context.Context, tenantID string) (time.Time, bool, error)
	SetLastRunAt(ctx context.Context, tenantID string, at time.Time) error
}

// TenantLister enumerates the tenants to run a per-tenant cycle for, in
// addition to the always-run platform-wide (tenantID="") cycle.
type TenantLister interface {
	ActiveTenantIDs(ctx context.Context) ([]string, error)
}

// Service runs the Pattern Detectors on the configured interval.
type Service struct {
	repo     Repository
	store    Store
	tenants  TenantLister
	cfg      config.PatternsConfig
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// New constructs a Service. cfg's zero values are filled by
// config.Load's defaulting, not here; the one exception is a
// non-positive RunIntervalDays, which Start and RunAll treat as 7 days.
func New(repo Repository, store Store, tenants TenantLister, cfg config.PatternsConfig) *Service {
	return &Service{repo: repo, store: store, tenants: tenants, cfg: cfg, stopChan: make(chan struct{})}
}

// Start runs RunAll on the configured interval until ctx is cancelled or
// Stop is called, mirroring the ticker + stop-channel shape this
// repository's earlier continuous-learning engine used.
func (s *Service) Start(ctx context.Context) {
	interval := 24 * time.Hour * time.Duration(s.cfg.RunIntervalDays)
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunAll(ctx, time.Now()); err != nil {
				logger.Error("patterns: run cycle failed", "error", err.Error())
			}
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		}
	}
}

// Stop halts the Start loop.
func (s *Service) Stop() { close(s.stopChan) }

// RunAll runs one detection cycle for the platform-wide scope and every
// active tenant, skipping any scope whose last run is inside the
// configured interval.
func (s *Service) RunAll(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	scopes := []string{""}
	if s.tenants != nil {
		ids, err := s.tenants.ActiveTenantIDs(ctx)
		if err != nil {
			return fmt.Errorf("list active tenants: %w", err)
		}
		scopes = append(scopes, ids...)
	}

	interval := 24 * time.Hour * time.Duration(s.cfg.RunIntervalDays)
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}

	for _, tenantID := range scopes {
		if last, ok, err := s.store.LastRunAt(ctx, tenantID); err == nil && ok && now.Sub(last) < interval {
			continue
		}
		if _, err := s.Run(ctx, tenantID, now); err != nil {
			logger.Error("patterns: scope run failed", "tenant_id", tenantID, "error", err.Error())
		}
	}
	return nil
}

// Run executes one detection cycle for a single scope (tenantID=""
// means platform-wide) and persists whatever eligible Pattern Records
// result. A scope with fewer than MinConversions total conversions in
// the lookback window is skipped entirely — there isn't enough signal
// yet to trust any detector's output.
func (s *Service) Run(ctx context.Context, tenantID string, now time.Time) ([]domain.PatternRecord, error) {
	scope := tenantID
	if scope == "" {
		scope = "platform"
	}
	observability.Metrics.PatternRunsTotal.WithLabelValues(scope).Inc()

	since := now.AddDate(0, 0, -90)
	samples, err := s.repo.ConversionSamples(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("load conversion samples for tenant %q: %w", tenantID, err)
	}

	converted := 0
	for _, sm := range samples {
		if sm.Converted {
			converted++
		}
	}
	if converted < s.cfg.MinConversions {
		return nil, s.store.SetLastRunAt(ctx, tenantID, now)
	}

	var records []domain.PatternRecord
	for kind, detect := range detectors {
		features := detect(samples)
		if len(features) == 0 {
			continue
		}
		eligible := filterBySampleSize(features, s.cfg.MinSampleSize)
		observability.Metrics.PatternRecordsSize.WithLabelValues(string(kind)).Set(float64(len(eligible)))
		records = append(records, domain.PatternRecord{
			TenantID:   tenantID,
			Kind:       kind,
			Features:   eligible,
			ComputedAt: now,
		})
	}

	if err := s.store.SaveRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("save pattern records for tenant %q: %w", tenantID, err)
	}
	if err := s.store.SetLastRunAt(ctx, tenantID, now); err != nil {
		return nil, fmt.Errorf("record last-run for tenant %q: %w", tenantID, err)
	}
	return records, nil
}

// filterBySampleSize drops observations below the configured minimum
// sample size; they are still computable but not yet eligible per spec
// §4.11's gate, so persisting them would only invite a premature
// scorer.ResolveWeights override.
func filterBySampleSize(features []domain.FeatureLift, minSampleSize int) []domain.FeatureLift {
	out := make([]domain.FeatureLift, 0, len(features))
	for _, f := range features {
		if f.SampleSize < minSampleSize {
			continue
		}
		out = append(out, f)
	}
	return out
}
