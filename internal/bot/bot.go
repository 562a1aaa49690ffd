// Package bot implements the private-chat command interface: a static
// command table, per-owner conversations and the command handlers.
package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricewatch/internal/i18n"
	"pricewatch/internal/model"
	rtsup "pricewatch/internal/runtime/supervisor"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 64
	defaultConvTimeout    = 60 * time.Second
	defaultHandlerTimeout = 30 * time.Second
	sweepInterval         = time.Second
	historyLimit          = 10
)

// Store is the slice of the repository the commands use.
type Store interface {
	EnsureOwner(ctx context.Context, p model.OwnerPreferences) (model.OwnerPreferences, error)
	SetPaused(ctx context.Context, ownerID int64, paused bool) error
	SetLanguage(ctx context.Context, ownerID int64, lang string) error
	OwnerStats(ctx context.Context, ownerID int64) (model.OwnerStats, error)

	AddMembership(ctx context.Context, m model.Membership) error
	RemoveMembership(ctx context.Context, m model.Membership) error
	SourcesForOwner(ctx context.Context, ownerID int64) ([]model.Source, error)

	AddWatch(ctx context.Context, w model.Watch) (model.Watch, error)
	WatchesForOwner(ctx context.Context, ownerID int64) ([]model.Watch, error)
	DeleteWatch(ctx context.Context, ownerID, watchID int64) error
	MatchesForWatch(ctx context.Context, watchID int64, limit int) ([]model.MatchRecord, error)
	MinPriceForName(ctx context.Context, name string) (*decimal.Decimal, error)
}

type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Joiner resolves a channel and records it as a source.
type Joiner interface {
	Join(ctx context.Context, identifier string) (model.Source, error)
}

type Backfiller interface {
	Backfill(ctx context.Context, sourceIdentifier string, ownerID int64, limit int) (int, error)
}

type Config struct {
	// AllowedUserIDs restricts the bot to these users. Empty allows everyone.
	AllowedUserIDs      []int64
	ConversationTimeout time.Duration
	HandlerTimeout      time.Duration
	BackfillLimit       int
	// Location formats dates in /history and /stats.
	Location  *time.Location
	Workers   int
	QueueSize int
}

type Request struct {
	Msg     *kit.Message
	Chat    kit.ChatTarget
	OwnerID int64
	Owner   model.OwnerPreferences
	Lang    string
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger
}

// Command is one entry of the static command table.
type Command struct {
	Name string
	// Interactive commands may open a conversation; they are still valid
	// while another conversation is open and replace it.
	Handle  HandlerFunc
	Timeout time.Duration
}

type Bot struct {
	cfg      Config
	store    Store
	sender   Sender
	joiner   Joiner
	backfill Backfiller
	tr       *i18n.Translator
	log      logx.Logger

	commands map[string]Command
	convs    *conversations
	allowed  map[int64]bool
	now      func() time.Time

	runMu  sync.Mutex
	sup    *rtsup.Supervisor
	shards []chan func(context.Context)

	dropped atomic.Uint64
}

func New(cfg Config, store Store, sender Sender, joiner Joiner, backfill Backfiller, tr *i18n.Translator, log logx.Logger) *Bot {
	if cfg.ConversationTimeout <= 0 {
		cfg.ConversationTimeout = defaultConvTimeout
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	allowed := make(map[int64]bool, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = true
	}
	b := &Bot{
		cfg:      cfg,
		store:    store,
		sender:   sender,
		joiner:   joiner,
		backfill: backfill,
		tr:       tr,
		log:      log,
		convs:    newConversations(),
		allowed:  allowed,
		now:      time.Now,
	}
	b.commands = b.commandTable()
	return b
}

// Supervisor returns the worker supervisor while Run is active.
func (b *Bot) Supervisor() *rtsup.Supervisor {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.sup
}

// Run starts the shard workers and the conversation sweeper and blocks until
// ctx is done. Messages of one owner are always handled in arrival order.
func (b *Bot) Run(ctx context.Context) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(b.log.With(logx.String("comp", "bot.workers"))),
		rtsup.WithCancelOnError(false),
	)
	shards := make([]chan func(context.Context), b.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(context.Context), b.cfg.QueueSize)
	}
	b.runMu.Lock()
	b.sup = sup
	b.shards = shards
	b.runMu.Unlock()

	for i, jobs := range shards {
		jobs := jobs
		sup.GoRestart("bot.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					job(c)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	sup.Go0("bot.conversation_sweeper", func(c context.Context) {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				for ownerID, conv := range b.convs.expired(b.now()) {
					ownerID, conv := ownerID, conv
					b.enqueue(ownerID, func(jc context.Context) { b.expire(jc, ownerID, conv) })
				}
			}
		}
	})
	b.log.Info("bot started", logx.Int("workers", len(shards)), logx.Int("queue_cap", b.cfg.QueueSize))

	<-ctx.Done()
	wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sup.Wait(wctx)

	b.runMu.Lock()
	b.sup = nil
	b.shards = nil
	b.runMu.Unlock()
	b.log.Info("bot stopped", logx.Uint64("dropped", b.dropped.Load()))
	return nil
}

// Dispatch queues a private message on its owner's shard.
func (b *Bot) Dispatch(msg *kit.Message) {
	if msg == nil || !msg.IsPrivate || msg.FromID == 0 {
		return
	}
	b.enqueue(msg.FromID, func(ctx context.Context) { b.process(ctx, msg) })
}

func (b *Bot) enqueue(ownerID int64, job func(context.Context)) {
	b.runMu.Lock()
	shards := b.shards
	b.runMu.Unlock()
	if len(shards) == 0 {
		b.dropped.Add(1)
		return
	}
	idx := int(uint64(ownerID) % uint64(len(shards)))
	select {
	case shards[idx] <- job:
	default:
		b.dropped.Add(1)
		b.log.Warn("bot queue full; message dropped", logx.Int64("owner_id", ownerID), logx.Int("shard", idx))
	}
}

// process routes one message: commands first, then the open conversation.
func (b *Bot) process(ctx context.Context, msg *kit.Message) {
	name, args, isCmd := splitCommand(msg.Text)
	conv := b.convs.get(msg.FromID)

	var (
		h       HandlerFunc
		timeout = b.cfg.HandlerTimeout
		label   string
	)
	switch {
	case conv != nil && (!isCmd || isCancel(msg.Text) || isSkip(msg.Text)):
		label = conv.command
		h = func(ctx context.Context, req *Request) error { return b.continueConversation(ctx, req, conv) }
	case isCmd:
		cmd, ok := b.commands[name]
		if !ok {
			return
		}
		label = "/" + cmd.Name
		h = cmd.Handle
		if cmd.Timeout > 0 {
			timeout = cmd.Timeout
		}
	default:
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Msg:     msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		OwnerID: msg.FromID,
		Lang:    i18n.Resolve(msg.FromLanguage),
		Command: label,
		Args:    args,
		ReqID:   rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("owner_id", msg.FromID),
			logx.String("cmd", label),
		),
	}

	final := Chain(
		h,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(timeout),
		b.mwAuthorize,
	)
	if err := final(ctx, req); err != nil && ctx.Err() == nil {
		b.reply(ctx, req, b.tr.T(i18n.GenericError, req.Lang))
	}
}

// mwAuthorize rejects unknown users and registers known ones, keeping their
// username and language current.
func (b *Bot) mwAuthorize(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(b.allowed) > 0 && !b.allowed[req.OwnerID] {
			req.Logger.Info("unauthorized user")
			b.reply(ctx, req, b.tr.T(i18n.NotAuthorized, req.Lang))
			return nil
		}
		owner, err := b.store.EnsureOwner(ctx, model.OwnerPreferences{
			OwnerID:      req.OwnerID,
			Username:     req.Msg.FromUsername,
			Language:     req.Lang,
			NotifyChatID: req.Chat.ChatID,
			AddedAt:      b.now(),
		})
		if err != nil {
			return err
		}
		if owner.Language != req.Lang {
			if err := b.store.SetLanguage(ctx, req.OwnerID, req.Lang); err != nil {
				return err
			}
			owner.Language = req.Lang
		}
		req.Owner = owner
		return next(ctx, req)
	}
}

func (b *Bot) reply(ctx context.Context, req *Request, text string) {
	b.send(ctx, req.Chat, text, req.Logger)
}

func (b *Bot) send(ctx context.Context, to kit.ChatTarget, text string, log logx.Logger) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if _, err := b.sender.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		if log.IsZero() {
			log = b.log
		}
		log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// spawn runs fn as a transient supervised task, or inline when the bot is
// not running (tests, one-shot CLI).
func (b *Bot) spawn(ctx context.Context, name string, fn func(ctx context.Context)) {
	if sup := b.Supervisor(); sup != nil {
		sup.Go0(name, fn)
		return
	}
	fn(ctx)
}

// open starts a conversation for req's owner, replacing any previous one.
func (b *Bot) open(req *Request, command string, st step) *conversation {
	conv := &conversation{
		command:  command,
		step:     st,
		lang:     req.Lang,
		chatID:   req.Chat.ChatID,
		deadline: b.now().Add(b.cfg.ConversationTimeout),
	}
	b.convs.put(req.OwnerID, conv)
	return conv
}

func (b *Bot) advance(conv *conversation, next step) {
	b.convs.advance(conv, next, b.now().Add(b.cfg.ConversationTimeout))
}

// expire closes a conversation the owner abandoned. An unanswered price
// suggestion still creates the watch, without a target.
func (b *Bot) expire(ctx context.Context, ownerID int64, conv *conversation) {
	if conv.deadline.After(b.now()) || !b.convs.end(ownerID, conv) {
		return
	}
	log := b.log.With(logx.Int64("owner_id", ownerID), logx.String("cmd", conv.command))
	to := kit.ChatTarget{ChatID: conv.chatID}
	if conv.command == cmdWatch && conv.step == stepConfirm {
		text, err := b.createWatch(ctx, ownerID, conv, nil)
		if err != nil {
			log.Warn("create watch on timeout failed", logx.Err(err))
			text = b.tr.T(i18n.GenericError, conv.lang)
		}
		b.send(ctx, to, text, log)
		return
	}
	log.Debug("conversation timed out", logx.String("step", conv.step.String()))
	b.send(ctx, to, b.tr.T(i18n.TimedOut, conv.lang, conv.command), log)
}
