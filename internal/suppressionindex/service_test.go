package suppressionindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeRepo struct {
	entries map[string]*domain.SuppressionEntry // key: scope|tenant|kind|key
	lookupErr error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{entries: make(map[string]*domain.SuppressionEntry)} }

func entryKey(scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) string {
	return string(scope) + "|" + tenantID + "|" + string(kind) + "|" + key
}

func (f *fakeRepo) Insert(ctx context.Context, e *domain.SuppressionEntry) error {
	f.entries[entryKey(e.Scope, e.TenantID, e.KeyKind, e.Key)] = e
	return nil
}

func (f *fakeRepo) Remove(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) error {
	k := entryKey(scope, tenantID, kind, key)
	if _, ok := f.entries[k]; !ok {
		return ErrNotFound
	}
	delete(f.entries, k)
	return nil
}

func (f *fakeRepo) Lookup(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) (*domain.SuppressionEntry, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	e, ok := f.entries[entryKey(scope, tenantID, kind, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) ListActive(ctx context.Context, scope domain.SuppressionScope) ([]domain.SuppressionEntry, error) {
	var out []domain.SuppressionEntry
	for _, e := range f.entries {
		if e.Scope == scope {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeRepo) Count(ctx context.Context, scope domain.SuppressionScope) (int, error) {
	n := 0
	for _, e := range f.entries {
		if e.Scope == scope {
			n++
		}
	}
	return n, nil
}

func TestIsSuppressedNotFound(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	res, err := svc.IsSuppressed(context.Background(), "tenant-1", domain.KeyEmail, "clean@example.com")
	require.NoError(t, err)
	assert.False(t, res.Blocked)
}

func TestSuppressThenIsSuppressedGlobal(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Suppress(ctx, domain.ScopeGlobal, "", domain.KeyEmail, "bad@example.com", domain.ReasonBounced, nil)
	require.NoError(t, err, "suppress")

	res, err := svc.IsSuppressed(ctx, "tenant-1", domain.KeyEmail, "BAD@Example.com")
	require.NoError(t, err)
	require.True(t, res.Blocked, "expected global block with bounced reason, got %+v", res)
	assert.Equal(t, domain.ScopeGlobal, res.Scope)
	assert.Equal(t, domain.ReasonBounced, res.Reason)
}

func TestIsSuppressedTenantScope(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Suppress(ctx, domain.ScopeTenant, "tenant-1", domain.KeyEmail, "competitor@rival.com", domain.ReasonCompetitor, nil)
	require.NoError(t, err, "suppress")

	res, err := svc.IsSuppressed(ctx, "tenant-1", domain.KeyEmail, "competitor@rival.com")
	require.NoError(t, err)
	require.True(t, res.Blocked, "expected tenant block, got %+v", res)
	assert.Equal(t, domain.ScopeTenant, res.Scope)

	// A different tenant is unaffected.
	res2, err := svc.IsSuppressed(ctx, "tenant-2", domain.KeyEmail, "competitor@rival.com")
	require.NoError(t, err)
	assert.False(t, res2.Blocked, "expected tenant-2 unaffected by tenant-1 suppression")
}

func TestIsSuppressedExpiredEntrySkipped(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Suppress(ctx, domain.ScopeTenant, "tenant-1", domain.KeyEmail, "expired@example.com", domain.ReasonDoNotContact, &past)
	require.NoError(t, err, "suppress")

	res, err := svc.IsSuppressed(ctx, "tenant-1", domain.KeyEmail, "expired@example.com")
	require.NoError(t, err)
	assert.False(t, res.Blocked, "expected expired entry to be skipped")
}

func TestIsSuppressedFailsClosedOnLookupError(t *testing.T) {
	repo := newFakeRepo()
	repo.lookupErr = errors.New("connection refused")
	svc := NewService(repo, nil)

	res, err := svc.IsSuppressed(context.Background(), "tenant-1", domain.KeyEmail, "anyone@example.com")
	assert.Error(t, err, "expected lookup error to propagate")
	assert.True(t, res.Blocked, "expected fail-closed blocked result on lookup error")
}

func TestRemoveClearsSuppression(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Suppress(ctx, domain.ScopeGlobal, "", domain.KeyEmail, "temp@example.com", domain.ReasonBounced, nil)
	require.NoError(t, err, "suppress")
	require.NoError(t, svc.Remove(ctx, domain.ScopeGlobal, "", domain.KeyEmail, "temp@example.com"), "remove")

	res, err := svc.IsSuppressed(ctx, "tenant-1", domain.KeyEmail, "temp@example.com")
	require.NoError(t, err)
	assert.False(t, res.Blocked, "expected suppression to be cleared")
}
