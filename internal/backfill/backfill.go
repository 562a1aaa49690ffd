// Package backfill scans a channel's recent history for one owner's watches
// right after the owner starts following it.
package backfill

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/i18n"
	"pricewatch/internal/match"
	"pricewatch/internal/model"
	"pricewatch/internal/storage"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

const (
	DefaultLimit       = 200
	DefaultNotifyDelay = 500 * time.Millisecond

	// notifyTimeout bounds the delivery of a match already recorded, which
	// goes out even when the scan is being cancelled.
	notifyTimeout = 15 * time.Second
)

type Store interface {
	Owner(ctx context.Context, ownerID int64) (model.OwnerPreferences, error)
	WatchesForOwner(ctx context.Context, ownerID int64) ([]model.Watch, error)
	InsertMatch(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error)
}

// Fetcher returns up to limit messages of a source, newest first.
type Fetcher interface {
	FetchRecent(ctx context.Context, identifier string, limit int) ([]model.Message, error)
}

type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	Limit int
	// NotifyDelay is the minimum gap between two backfill notifications.
	NotifyDelay time.Duration
	LinkRoot    string
}

// Done is the Data of a backfill.done event.
type Done struct {
	RunID    string `json:"run_id"`
	OwnerID  int64  `json:"owner_id"`
	Source   string `json:"source"`
	Scanned  int    `json:"scanned"`
	Matches  int    `json:"matches"`
	Stopped  string `json:"stopped,omitempty"`
	Duration string `json:"duration"`
}

type Scanner struct {
	cfg      Config
	store    Store
	fetcher  Fetcher
	notifier Notifier
	tr       *i18n.Translator
	bus      eventbus.Bus
	log      logx.Logger
	limiter  *rate.Limiter
	now      func() time.Time
}

func New(cfg Config, store Store, fetcher Fetcher, notifier Notifier, tr *i18n.Translator, bus eventbus.Bus, log logx.Logger) *Scanner {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.NotifyDelay < 0 {
		cfg.NotifyDelay = 0
	} else if cfg.NotifyDelay == 0 {
		cfg.NotifyDelay = DefaultNotifyDelay
	}
	if cfg.LinkRoot == "" {
		cfg.LinkRoot = match.DefaultLinkRoot
	}
	if bus == nil {
		bus = eventbus.Nop
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scanner{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		tr:       tr,
		bus:      bus,
		log:      log,
		limiter:  rate.NewLimiter(rate.Every(cfg.NotifyDelay), 1),
		now:      time.Now,
	}
}

// Backfill evaluates up to limit recent messages of sourceIdentifier against
// the owner's watches and returns how many new matches were recorded.
//
// A rate-limit signal while fetching or notifying ends the scan early with
// the count so far and a nil error. A missing source or a persistence
// failure is returned as an error.
func (s *Scanner) Backfill(ctx context.Context, sourceIdentifier string, ownerID int64, limit int) (int, error) {
	if limit <= 0 {
		limit = s.cfg.Limit
	}
	runID := uuid.NewString()
	log := s.log.With(logx.String("run_id", runID), logx.String("source", sourceIdentifier), logx.Int64("owner_id", ownerID))
	started := s.now()
	done := Done{RunID: runID, OwnerID: ownerID, Source: sourceIdentifier}
	defer func() {
		done.Duration = s.now().Sub(started).String()
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeBackfillDone, Data: done})
	}()

	watches, err := s.store.WatchesForOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(watches) == 0 {
		log.Debug("backfill skipped, owner has no watches")
		return 0, nil
	}
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	msgs, err := s.fetcher.FetchRecent(ctx, sourceIdentifier, limit)
	if wait, ok := kit.RetryAfter(err); ok {
		log.Warn("backfill fetch rate limited, stopping", logx.Duration("retry_after", wait))
		done.Stopped = "rate_limited"
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			done.Stopped = "canceled"
			return count, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		done.Scanned++
		for _, w := range watches {
			outcome, ok := match.Evaluate(w, msg.Text)
			if !ok {
				continue
			}
			link := match.Permalink(s.cfg.LinkRoot, msg)
			rec, err := s.store.InsertMatch(ctx, model.MatchRecord{
				WatchID:    w.ID,
				OwnerID:    ownerID,
				Price:      outcome.Price,
				SourceName: msg.DisplayName(),
				SourceKey:  msg.SourceKey(),
				MessageID:  msg.MessageID,
				Excerpt:    msg.Text,
				Link:       link,
				Origin:     model.OriginBackfill,
				FoundAt:    s.now().UTC(),
			})
			if errors.Is(err, storage.ErrDuplicate) {
				continue
			}
			if err != nil {
				done.Matches = count
				return count, err
			}
			count++
			done.Matches = count

			text := s.tr.MatchNotification(owner.Language, i18n.MatchNotice{
				Product: w.Name,
				Source:  msg.DisplayName(),
				Price:   outcome.Price,
				Target:  outcome.Target,
				Excerpt: rec.Excerpt,
				Link:    link,
				Origin:  model.OriginBackfill,
			})
			err = s.notify(ctx, owner.Target(), text)
			if wait, ok := kit.RetryAfter(err); ok {
				log.Warn("backfill notify rate limited, stopping", logx.Duration("retry_after", wait), logx.Int("matches", count))
				done.Stopped = "rate_limited"
				return count, nil
			}
			if err != nil {
				log.Warn("backfill notification failed", logx.Int64("watch_id", w.ID), logx.Err(err))
			}
		}
	}
	log.Info("backfill finished", logx.Int("scanned", done.Scanned), logx.Int("matches", count))
	return count, nil
}

// notify waits out the send floor and delivers on a context detached from
// the scan, so cancellation never strands a recorded match.
func (s *Scanner) notify(ctx context.Context, chatID int64, text string) error {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.limiter.Wait(nctx); err != nil {
		return err
	}
	return s.notifier.Send(nctx, chatID, text)
}

// owner returns the owner's preferences, or defaults for an unknown owner.
func (s *Scanner) owner(ctx context.Context, ownerID int64) (model.OwnerPreferences, error) {
	p, err := s.store.Owner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.OwnerPreferences{OwnerID: ownerID, Language: i18n.DefaultLanguage}, nil
	}
	return p, err
}
