package linkedin

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/oauth2"
)

// SeatStore implements SeatTokenSource over per-seat OAuth2 refresh
// tokens persisted on the Resource record (resources.oauth_refresh_token),
// refreshed through one shared LinkedIn app configuration. This is the
// concrete wiring behind the scheduler/JIT-selected resource id: by the
// time a seat reaches the driver it has already been picked by
// internal/respool, so lookups here are by primary key.
type SeatStore struct {
	db  *sql.DB
	cfg oauth2.Config
}

// NewSeatStore creates a seat token store. cfg carries the shared
// LinkedIn OAuth2 app's client id/secret and token endpoint; only the
// per-seat refresh token varies.
func NewSeatStore(db *sql.DB, cfg oauth2.Config) *SeatStore {
	return &SeatStore{db: db, cfg: cfg}
}

// TokenSourceFor satisfies SeatTokenSource.
func (s *SeatStore) TokenSourceFor(ctx context.Context, seatID string) (oauth2.TokenSource, error) {
	var refreshToken string
	err := s.db.QueryRowContext(ctx,
		`SELECT oauth_refresh_token FROM resources WHERE id = $1 AND deleted_at IS NULL`, seatID,
	).Scan(&refreshToken)
	if err != nil {
		return nil, fmt.Errorf("linkedin seat store: lookup seat %s: %w", seatID, err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("linkedin seat store: seat %s has no refresh token on file", seatID)
	}
	return s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}
