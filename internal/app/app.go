// Package app wires configuration, storage, the Telegram adapter and the
// matching pipeline into one supervised process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricewatch/internal/backfill"
	"pricewatch/internal/bot"
	"pricewatch/internal/config"
	"pricewatch/internal/digest"
	"pricewatch/internal/eventbus"
	"pricewatch/internal/i18n"
	"pricewatch/internal/listener"
	"pricewatch/internal/notifier"
	"pricewatch/internal/ops"
	rtsup "pricewatch/internal/runtime/supervisor"
	"pricewatch/internal/source"
	"pricewatch/internal/storage"
	kit "pricewatch/internal/transport"
	"pricewatch/internal/transport/telegram"
	logx "pricewatch/pkg/logx"
)

const updatesBuffer = 256

type App struct {
	cfgm *config.Manager
	rt   config.Runtime
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store *storage.SQLStore

	adapter  *telegram.Adapter
	source   *source.Telegram
	notif    *notifier.Service
	listener *listener.Listener
	backfill *backfill.Scanner
	digest   *digest.Scheduler
	bot      *bot.Bot
	ops      *ops.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: rt.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// logx.New applies the config immediately; enable the Telegram sink only
	// after its target chat is set so Apply does not warn about a missing one.
	logCfg := cfg.LogConfig()
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, adapterSendFunc(ad))
	if rt.GroupLog != 0 {
		logSvc.SetTelegramTarget(rt.GroupLog, logCfg.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(storage.Config{
		Driver:      rt.StorageDriver,
		Path:        rt.StoragePath,
		DSN:         rt.StorageDSN,
		BusyTimeout: rt.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	tr, err := i18n.New()
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	src := source.New(source.Config{JournalSize: rt.JournalSize}, ad, store,
		log.With(logx.String("comp", "source")))

	notif := notifier.New(notifier.Config{
		RatePerSec:  rt.NotifierRate,
		RetryMax:    rt.NotifierRetryMax,
		SendTimeout: rt.SendTimeout,
	}, ad, log.With(logx.String("comp", "notifier")), bus)

	lst := listener.New(listener.Config{LinkRoot: rt.LinkRoot}, store, notif, tr, bus,
		log.With(logx.String("comp", "listener")))

	bf := backfill.New(backfill.Config{
		Limit:       rt.BackfillLimit,
		NotifyDelay: rt.NotifyDelay,
		LinkRoot:    rt.LinkRoot,
	}, store, src, notif, tr, bus, log.With(logx.String("comp", "backfill")))

	dg, err := digest.New(digest.Config{Hour: rt.DigestHour, Location: rt.Location}, store, notif, tr, bus,
		log.With(logx.String("comp", "digest")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	b := bot.New(bot.Config{
		AllowedUserIDs:      rt.AllowedUserIDs,
		ConversationTimeout: rt.ConversationTimeout,
		BackfillLimit:       rt.BackfillLimit,
		Location:            rt.Location,
	}, store, ad, src, bf, tr, log.With(logx.String("comp", "bot")))

	var opsSvc *ops.Service
	if rt.OpsEnabled {
		opsSvc = ops.New(ops.Config{Addr: rt.OpsAddr, Token: rt.OpsToken}, log.With(logx.String("comp", "ops")))
	}

	return &App{
		cfgm:     cfgm,
		rt:       rt,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		source:   src,
		notif:    notif,
		listener: lst,
		backfill: bf,
		digest:   dg,
		bot:      b,
		ops:      opsSvc,
		updates:  make(chan kit.Update, updatesBuffer),
	}, nil
}

// adapterSendFunc routes operator log lines through the adapter.
func adapterSendFunc(ad *telegram.Adapter) logx.SendFunc {
	return func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text,
			&kit.SendOptions{DisablePreview: true})
		return err
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go("listener.run", func(c context.Context) error {
		return a.listener.Run(c, a.source.Stream())
	})
	a.sup.Go("bot.run", a.bot.Run)
	if a.rt.DigestEnabled {
		a.sup.Go("digest.run", a.digest.Run)
	} else {
		a.log.Info("daily digest disabled")
	}
	a.sup.Go("updates.dispatch", a.dispatch)

	if a.ops != nil {
		a.ops.AddCheck("storage", a.store.Ping)
		a.ops.AddSupervisor("app", func() *rtsup.Supervisor { return a.sup })
		a.ops.AddSupervisor("telegram.adapter", a.adapter.Supervisor)
		a.ops.AddSupervisor("bot", a.bot.Supervisor)
		if err := a.ops.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("storage", a.rt.StorageDriver),
		logx.Int("allowed_users", len(a.rt.AllowedUserIDs)),
		logx.Bool("digest", a.rt.DigestEnabled),
		logx.Bool("ops", a.ops != nil),
	)
	return nil
}

// dispatch routes private messages to the bot and channel posts to the source.
func (a *App) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up := <-a.updates:
			if up.Message == nil {
				continue
			}
			switch up.Kind {
			case kit.UpdateChannelPost:
				if err := a.source.Ingest(ctx, up.Message); err != nil && ctx.Err() == nil {
					a.log.Warn("channel post dropped", logx.Int64("chat_id", up.Message.ChatID), logx.Err(err))
				}
			case kit.UpdateMessage:
				a.bot.Dispatch(up.Message)
			}
		}
	}
}

// applyConfig hot-applies the logging section. Every other section is read
// once at construction, so a change there only produces a warning.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	groupLog := int64(0)
	if rt, err := next.Resolve(); err == nil {
		groupLog = rt.GroupLog
	}
	logCfg := next.LogConfig()
	a.logs.SetTelegramTarget(groupLog, logCfg.Telegram.ThreadID)
	a.logs.Apply(logCfg)

	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: changed})
}

// SendDigests sends today's digest once, outside the schedule.
func (a *App) SendDigests(ctx context.Context) (int, error) {
	return a.digest.SendDigests(ctx, time.Now())
}

// Backfill scans a source for one owner from the command line. The source
// journal only holds posts seen by a running instance.
func (a *App) Backfill(ctx context.Context, sourceIdentifier string, ownerID int64, limit int) (int, error) {
	if ownerID == 0 {
		return 0, errors.New("owner id is required")
	}
	if limit <= 0 {
		limit = a.rt.BackfillLimit
	}
	return a.backfill.Backfill(ctx, sourceIdentifier, ownerID, limit)
}

// Close releases storage and log sinks for one-shot commands that never
// called Start.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("ops", time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("source", 100*time.Millisecond, func(context.Context) error { a.source.Close(); return nil })
	step("bot", 2*time.Second, func(c context.Context) error {
		if sup := a.bot.Supervisor(); sup != nil {
			return sup.Wait(c)
		}
		return nil
	})
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Uint64("bus_dropped", a.bus.Dropped()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
