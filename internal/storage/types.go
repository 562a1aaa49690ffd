package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique key already exists. For match
	// records it means the (watch, source, message) delivery key was seen before.
	ErrDuplicate = errors.New("storage: duplicate")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Repository is the full persistence API.
type Repository interface {
	EnsureOwner(ctx context.Context, p model.OwnerPreferences) (model.OwnerPreferences, error)
	Owner(ctx context.Context, ownerID int64) (model.OwnerPreferences, error)
	SetPaused(ctx context.Context, ownerID int64, paused bool) error
	SetLanguage(ctx context.Context, ownerID int64, lang string) error
	NonPausedOwners(ctx context.Context) ([]model.OwnerPreferences, error)
	OwnerStats(ctx context.Context, ownerID int64) (model.OwnerStats, error)

	UpsertSource(ctx context.Context, identifier string, title *string) (model.Source, error)
	SourceByIdentifier(ctx context.Context, identifier string) (model.Source, error)
	AddMembership(ctx context.Context, m model.Membership) error
	RemoveMembership(ctx context.Context, m model.Membership) error
	SourcesForOwner(ctx context.Context, ownerID int64) ([]model.Source, error)

	AddWatch(ctx context.Context, w model.Watch) (model.Watch, error)
	WatchesForOwner(ctx context.Context, ownerID int64) ([]model.Watch, error)
	DeleteWatch(ctx context.Context, ownerID, watchID int64) error
	WatchesForSource(ctx context.Context, identifiers []string) ([]model.WatchTarget, error)

	InsertMatch(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error)
	MatchesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.MatchRecord, error)
	MatchesForWatch(ctx context.Context, watchID int64, limit int) ([]model.MatchRecord, error)
	MinPriceForName(ctx context.Context, name string) (*decimal.Decimal, error)

	AppendSourceMessage(ctx context.Context, msg model.Message, keep int) error
	RecentSourceMessages(ctx context.Context, identifier string, limit int) ([]model.Message, error)

	Close() error
}

var _ Repository = (*SQLStore)(nil)
