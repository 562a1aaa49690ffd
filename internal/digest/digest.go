// Package digest sends each active owner a daily summary of the matches
// recorded since local midnight.
package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/i18n"
	"pricewatch/internal/model"
	logx "pricewatch/pkg/logx"
)

const (
	DefaultHour        = 21
	maxItemsPerProduct = 5
)

// State of the scheduler loop.
type State int32

const (
	StateWaiting State = iota
	StateSending
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateSending:
		return "SENDING"
	default:
		return "UNKNOWN"
	}
}

type Store interface {
	NonPausedOwners(ctx context.Context) ([]model.OwnerPreferences, error)
	MatchesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.MatchRecord, error)
}

type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	Hour     int
	Location *time.Location
}

// Sent is the Data of a digest.sent event.
type Sent struct {
	Owners int       `json:"owners"`
	At     time.Time `json:"at"`
}

type Scheduler struct {
	cfg      Config
	schedule cron.Schedule
	store    Store
	notifier Notifier
	tr       *i18n.Translator
	bus      eventbus.Bus
	log      logx.Logger
	state    atomic.Int32
	now      func() time.Time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func New(cfg Config, store Store, notifier Notifier, tr *i18n.Translator, bus eventbus.Bus, log logx.Logger) (*Scheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		return nil, fmt.Errorf("digest: hour %d out of range 0..23", cfg.Hour)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	sched, err := parser.Parse("0 " + strconv.Itoa(cfg.Hour) + " * * *")
	if err != nil {
		return nil, fmt.Errorf("digest: schedule: %w", err)
	}
	if bus == nil {
		bus = eventbus.Nop
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:      cfg,
		schedule: sched,
		store:    store,
		notifier: notifier,
		tr:       tr,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}, nil
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

// NextFire returns the first digest time strictly after now, in the configured zone.
func (s *Scheduler) NextFire(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.cfg.Location))
}

// Run sleeps until each fire time and sends the digests, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.NextFire(s.now())
		s.log.Info("next digest scheduled", logx.Time("at", next))

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		n, err := s.SendDigests(ctx, s.now())
		if err != nil {
			s.log.Error("digest run failed", logx.Err(err))
			continue
		}
		s.log.Info("digests sent", logx.Int("owners", n))
	}
}

// SendDigests sends today's summary to every non-paused owner with at least
// one match since local midnight, and returns how many were sent. A failed
// send is logged and the run continues.
func (s *Scheduler) SendDigests(ctx context.Context, now time.Time) (int, error) {
	s.state.Store(int32(StateSending))
	defer s.state.Store(int32(StateWaiting))

	local := now.In(s.cfg.Location)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)

	owners, err := s.store.NonPausedOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("digest: owners: %w", err)
	}

	sent := 0
	for _, o := range owners {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		records, err := s.store.MatchesSince(ctx, o.OwnerID, midnight)
		if err != nil {
			s.log.Warn("digest matches lookup failed", logx.Int64("owner_id", o.OwnerID), logx.Err(err))
			continue
		}
		if len(records) == 0 {
			continue
		}
		if err := s.notifier.Send(ctx, o.Target(), s.Summary(o.Language, records)); err != nil {
			s.log.Warn("digest send failed", logx.Int64("owner_id", o.OwnerID), logx.Err(err))
			continue
		}
		sent++
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeDigestSent, Data: Sent{Owners: sent, At: now}})
	return sent, nil
}

type productGroup struct {
	name    string
	records []model.MatchRecord
}

// Summary renders records (newest first) grouped by product in first-seen order.
func (s *Scheduler) Summary(lang string, records []model.MatchRecord) string {
	var groups []*productGroup
	byName := map[string]*productGroup{}
	for _, r := range records {
		g := byName[r.Product]
		if g == nil {
			g = &productGroup{name: r.Product}
			byName[r.Product] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}

	lines := []string{s.tr.T(i18n.SummaryHeader, lang, s.tr.Number(lang, len(records)))}
	for _, g := range groups {
		lines = append(lines, s.tr.T(i18n.SummaryProduct, lang, g.name, s.tr.Number(lang, len(g.records))))
		for i, r := range g.records {
			if i == maxItemsPerProduct {
				lines = append(lines, s.tr.T(i18n.SummaryMore, lang, s.tr.Number(lang, len(g.records)-maxItemsPerProduct)))
				break
			}
			price := s.tr.T(i18n.NotAvailable, lang)
			if r.Price != nil {
				price = s.tr.Price(lang, *r.Price)
			}
			lines = append(lines, s.tr.T(i18n.SummaryItem, lang, price, r.SourceName))
		}
	}
	return strings.Join(lines, "\n")
}
