// Package listener evaluates every incoming channel post against the watches
// of the owners following that channel, records matches and notifies owners.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/i18n"
	"pricewatch/internal/match"
	"pricewatch/internal/model"
	"pricewatch/internal/storage"
	logx "pricewatch/pkg/logx"
)

// Store is the persistence the listener needs.
type Store interface {
	WatchesForSource(ctx context.Context, identifiers []string) ([]model.WatchTarget, error)
	InsertMatch(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error)
}

// Notifier delivers one message to one chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	LinkRoot string
	// StoreTimeout bounds each repository call. Calls run on a context that
	// survives shutdown so an in-flight insert is never torn.
	StoreTimeout time.Duration
	// NotifyTimeout bounds the notification of one match. Like store calls,
	// it survives shutdown so a recorded match is still delivered.
	NotifyTimeout time.Duration
}

// Result summarises one Handle call.
type Result struct {
	Evaluated  int
	Matched    int
	Duplicates int
	Notified   int
}

type Listener struct {
	cfg      Config
	store    Store
	notifier Notifier
	tr       *i18n.Translator
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

func New(cfg Config, store Store, notifier Notifier, tr *i18n.Translator, bus eventbus.Bus, log logx.Logger) *Listener {
	if cfg.LinkRoot == "" {
		cfg.LinkRoot = match.DefaultLinkRoot
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 15 * time.Second
	}
	if bus == nil {
		bus = eventbus.Nop
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Listener{cfg: cfg, store: store, notifier: notifier, tr: tr, bus: bus, log: log, now: time.Now}
}

// Run consumes msgs until the channel closes or ctx is cancelled. A message
// whose processing fails is logged and skipped.
func (l *Listener) Run(ctx context.Context, msgs <-chan model.Message) error {
	l.log.Info("listener started")
	defer l.log.Info("listener stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			res, err := l.Handle(ctx, msg)
			if err != nil {
				l.log.Error("message processing failed",
					logx.String("source", msg.SourceKey()), logx.Int("message_id", msg.MessageID), logx.Err(err))
				continue
			}
			if res.Matched > 0 {
				l.log.Debug("message processed",
					logx.String("source", msg.SourceKey()), logx.Int("message_id", msg.MessageID),
					logx.Int("matched", res.Matched), logx.Int("notified", res.Notified), logx.Int("duplicates", res.Duplicates))
			}
		}
	}
}

// Handle processes one message. Persistence errors stop processing and are
// returned; notification failures are logged per owner and do not.
func (l *Listener) Handle(ctx context.Context, msg model.Message) (Result, error) {
	var res Result
	if strings.TrimSpace(msg.Text) == "" {
		return res, nil
	}
	link := match.Permalink(l.cfg.LinkRoot, msg)
	sourceName := msg.DisplayName()

	targets, err := l.watchesFor(ctx, msg.Identifiers())
	if err != nil {
		return res, err
	}

	seen := make(map[int64]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Watch.ID]; dup {
			continue
		}
		seen[t.Watch.ID] = struct{}{}
		res.Evaluated++

		outcome, ok := match.Evaluate(t.Watch, msg.Text)
		if !ok {
			continue
		}

		rec, err := l.insert(ctx, model.MatchRecord{
			WatchID:    t.Watch.ID,
			OwnerID:    t.Watch.OwnerID,
			Price:      outcome.Price,
			SourceName: sourceName,
			SourceKey:  msg.SourceKey(),
			MessageID:  msg.MessageID,
			Excerpt:    msg.Text,
			Link:       link,
			Origin:     model.OriginRealtime,
			FoundAt:    l.now().UTC(),
		})
		if errors.Is(err, storage.ErrDuplicate) {
			res.Duplicates++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Matched++
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeMatchFound, Data: rec})

		lang := t.Owner.Language
		text := l.tr.MatchNotification(lang, i18n.MatchNotice{
			Product: t.Watch.Name,
			Source:  sourceName,
			Price:   outcome.Price,
			Target:  outcome.Target,
			Excerpt: rec.Excerpt,
			Link:    link,
			Origin:  model.OriginRealtime,
		})
		if err := l.notify(ctx, t.Owner.Target(), text); err != nil {
			l.log.Warn("match notification failed",
				logx.Int64("owner_id", t.Owner.OwnerID), logx.Int64("watch_id", t.Watch.ID), logx.Err(err))
			continue
		}
		res.Notified++
	}
	return res, nil
}

func (l *Listener) watchesFor(ctx context.Context, ids []string) ([]model.WatchTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sctx, cancel := l.storeCtx(ctx)
	defer cancel()
	targets, err := l.store.WatchesForSource(sctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listener: watches for source: %w", err)
	}
	return targets, nil
}

func (l *Listener) insert(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error) {
	sctx, cancel := l.storeCtx(ctx)
	defer cancel()
	return l.store.InsertMatch(sctx, rec)
}

func (l *Listener) notify(ctx context.Context, chatID int64, text string) error {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.NotifyTimeout)
	defer cancel()
	return l.notifier.Send(nctx, chatID, text)
}

func (l *Listener) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.cfg.StoreTimeout)
}
