package suppressionindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// Service answers is_suppressed(scope, key) against the three namespaces
// in order (global, tenant, domain), first hit wins, per the contract.
// Global is the high-volume namespace so it is accelerated with an
// in-memory bloom filter refreshed on an interval; tenant and domain are
// checked directly against the repository since they are scoped to a
// single tenant and comparatively small.
type Service struct {
	repo   Repository
	alerts alert.Sink
	global *scopeIndex
}

// NewService creates a suppression index service. alerts may be nil, in
// which case alert.Warn/Critical's process-wide default sink is used.
func NewService(repo Repository, alerts alert.Sink) *Service {
	return &Service{repo: repo, alerts: alerts, global: newScopeIndex()}
}

// Refresh rebuilds the in-memory global accelerator from Postgres. Call
// periodically (e.g. every few minutes) from a background worker.
func (s *Service) Refresh(ctx context.Context) error {
	entries, err := s.repo.ListActive(ctx, domain.ScopeGlobal)
	if err != nil {
		return fmt.Errorf("refresh global suppression index: %w", err)
	}
	now := time.Now()
	live := make([]domain.SuppressionEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	s.global.rebuild(live, now)
	return nil
}

// IsSuppressed checks global, then tenant, then domain (in that order,
// first hit wins) for the given key. On any repository error it fails
// closed: returns Blocked=true and raises an operational alert, since a
// lookup error must never silently let a lead through.
func (s *Service) IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error) {
	key := normalizeKey(rawKey)
	if key == "" {
		return domain.SuppressionResult{}, ErrInvalidKey
	}

	if res, ok, err := s.checkGlobal(ctx, kind, key); err != nil {
		return s.failClosed(err, domain.ScopeGlobal, key)
	} else if ok {
		return res, nil
	}

	if res, ok, err := s.checkScope(ctx, domain.ScopeTenant, tenantID, kind, key); err != nil {
		return s.failClosed(err, domain.ScopeTenant, key)
	} else if ok {
		return res, nil
	}

	if kind == domain.KeyEmail {
		if d := extractDomain(key); d != "" {
			if res, ok, err := s.checkScope(ctx, domain.ScopeDomain, tenantID, domain.KeyDomain, d); err != nil {
				return s.failClosed(err, domain.ScopeDomain, key)
			} else if ok {
				return res, nil
			}
		}
	} else if kind == domain.KeyDomain {
		if res, ok, err := s.checkScope(ctx, domain.ScopeDomain, tenantID, domain.KeyDomain, key); err != nil {
			return s.failClosed(err, domain.ScopeDomain, key)
		} else if ok {
			return res, nil
		}
	}

	return domain.SuppressionResult{Blocked: false}, nil
}

func (s *Service) checkGlobal(ctx context.Context, kind domain.SuppressionKeyKind, key string) (domain.SuppressionResult, bool, error) {
	_, maybeBlocked := s.global.checkFast(key)
	if !maybeBlocked {
		return domain.SuppressionResult{}, false, nil
	}
	entry, err := s.repo.Lookup(ctx, domain.ScopeGlobal, "", kind, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Bloom false positive; refresh will eventually prune it.
			return domain.SuppressionResult{}, false, nil
		}
		return domain.SuppressionResult{}, false, err
	}
	return domain.SuppressionResult{Blocked: true, Scope: domain.ScopeGlobal, Reason: entry.Reason}, true, nil
}

func (s *Service) checkScope(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) (domain.SuppressionResult, bool, error) {
	entry, err := s.repo.Lookup(ctx, scope, tenantID, kind, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.SuppressionResult{}, false, nil
		}
		return domain.SuppressionResult{}, false, err
	}
	if entry.Expired(time.Now()) {
		return domain.SuppressionResult{}, false, nil
	}
	return domain.SuppressionResult{Blocked: true, Scope: scope, Reason: entry.Reason}, true, nil
}

func (s *Service) failClosed(err error, scope domain.SuppressionScope, key string) (domain.SuppressionResult, error) {
	s.raiseAlert("suppression index lookup failed", map[string]string{
		"scope": string(scope),
		"error": err.Error(),
	})
	logger.Error("suppression index lookup failed, failing closed", "scope", scope, "error", err.Error())
	return domain.SuppressionResult{Blocked: true, Scope: scope, Reason: domain.ReasonDoNotContact}, err
}

func (s *Service) raiseAlert(subject string, fields map[string]string) {
	if s.alerts != nil {
		_ = s.alerts.Send(alert.Alert{Severity: alert.SeverityCritical, Subject: subject, Body: subject, Fields: fields, CreatedAt: time.Now()})
		return
	}
	alert.Critical(subject, subject, fields)
}

// Suppress idempotently inserts a new entry and, for global-scope writes,
// immediately patches the in-memory accelerator so the very next lookup
// sees it without waiting for the periodic Refresh.
func (s *Service) Suppress(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, rawKey string, reason domain.SuppressionReason, expiresAt *time.Time) (*domain.SuppressionEntry, error) {
	key := normalizeKey(rawKey)
	if key == "" {
		return nil, ErrInvalidKey
	}
	entry := &domain.SuppressionEntry{
		ID:        domain.NewID(),
		Scope:     scope,
		KeyKind:   kind,
		Key:       key,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if scope == domain.ScopeTenant {
		entry.TenantID = tenantID
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert suppression entry: %w", err)
	}
	if scope == domain.ScopeGlobal {
		s.global.patchInsert(entry)
	}
	return entry, nil
}

// Remove deletes an entry and patches the in-memory accelerator.
func (s *Service) Remove(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, rawKey string) error {
	key := normalizeKey(rawKey)
	if err := s.repo.Remove(ctx, scope, tenantID, kind, key); err != nil {
		return err
	}
	if scope == domain.ScopeGlobal {
		s.global.patchRemove(key)
	}
	return nil
}

func extractDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 || idx == len(email)-1 {
		return ""
	}
	return email[idx+1:]
}
