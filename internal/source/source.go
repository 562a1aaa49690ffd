// Package source turns Telegram channel posts into model.Message values,
// keeps a bounded journal of them for backfill, and resolves channels that
// owners ask to follow.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pricewatch/internal/model"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

// ErrSourceNotFound is permanent: the channel does not exist or the bot cannot see it.
var ErrSourceNotFound = errors.New("source: not found")

const (
	defaultJournalSize  = 1000
	defaultStreamBuffer = 128
	journalTimeout      = 3 * time.Second
)

// Source is the message-source contract used by the listener, backfill and bot.
type Source interface {
	Stream() <-chan model.Message
	FetchRecent(ctx context.Context, identifier string, limit int) ([]model.Message, error)
	Join(ctx context.Context, identifier string) (model.Source, error)
}

// Resolver looks chats up on the messaging network.
type Resolver interface {
	ResolveChat(ctx context.Context, identifier string) (kit.Chat, error)
}

// Store is the persistence the source needs.
type Store interface {
	UpsertSource(ctx context.Context, identifier string, title *string) (model.Source, error)
	AppendSourceMessage(ctx context.Context, msg model.Message, keep int) error
	RecentSourceMessages(ctx context.Context, identifier string, limit int) ([]model.Message, error)
}

type Config struct {
	// JournalSize is how many posts per channel are kept for backfill.
	JournalSize  int
	StreamBuffer int
}

// Telegram is the Source fed by the transport's channel posts.
type Telegram struct {
	cfg      Config
	resolver Resolver
	store    Store
	log      logx.Logger

	stream    chan model.Message
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	ingested atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

var _ Source = (*Telegram)(nil)

func New(cfg Config, resolver Resolver, store Store, log logx.Logger) *Telegram {
	if cfg.JournalSize <= 0 {
		cfg.JournalSize = defaultJournalSize
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = defaultStreamBuffer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		log:      log,
		stream:   make(chan model.Message, cfg.StreamBuffer),
		sleep:    sleepCtx,
	}
}

// Stream yields every channel post ingested. It is closed by Close.
func (s *Telegram) Stream() <-chan model.Message { return s.stream }

// Ingest journals a channel post and forwards it to the stream. It blocks
// while the stream is full, so the poller's own drop accounting applies.
func (s *Telegram) Ingest(ctx context.Context, m *kit.Message) error {
	if m == nil {
		return nil
	}
	msg := FromTransport(m)

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	if err := s.store.AppendSourceMessage(jctx, msg, s.cfg.JournalSize); err != nil {
		s.log.Warn("journal append failed", logx.String("source", msg.SourceKey()), logx.Int("message_id", msg.MessageID), logx.Err(err))
	}
	cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.stream <- msg:
		s.ingested.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream; later Ingest calls only journal.
func (s *Telegram) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.stream)
		s.mu.Unlock()
	})
}

func (s *Telegram) Ingested() uint64 { return s.ingested.Load() }

// FetchRecent returns up to limit journaled posts of the channel, newest first.
// The channel is resolved first so a vanished channel is reported as
// ErrSourceNotFound and a flood signal as *transport.RateLimitError.
func (s *Telegram) FetchRecent(ctx context.Context, identifier string, limit int) ([]model.Message, error) {
	chat, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.RecentSourceMessages(ctx, model.FormatChatID(chat.ID), limit)
	if err != nil {
		return nil, fmt.Errorf("source: fetch recent: %w", err)
	}
	return msgs, nil
}

// Join resolves identifier and records the channel. A flood signal is waited
// out and retried once.
func (s *Telegram) Join(ctx context.Context, identifier string) (model.Source, error) {
	chat, err := s.resolve(ctx, identifier)
	if wait, ok := kit.RetryAfter(err); ok {
		s.log.Info("join rate limited, retrying once", logx.String("identifier", identifier), logx.Duration("wait", wait))
		if serr := s.sleep(ctx, wait); serr != nil {
			return model.Source{}, serr
		}
		chat, err = s.resolve(ctx, identifier)
	}
	if err != nil {
		return model.Source{}, err
	}

	var title *string
	if t := strings.TrimSpace(chat.Title); t != "" {
		title = &t
	}
	src, err := s.store.UpsertSource(ctx, model.FormatChatID(chat.ID), title)
	if err != nil {
		return model.Source{}, fmt.Errorf("source: join: %w", err)
	}
	return src, nil
}

func (s *Telegram) resolve(ctx context.Context, identifier string) (kit.Chat, error) {
	chat, err := s.resolver.ResolveChat(ctx, identifier)
	if errors.Is(err, kit.ErrChatNotFound) || errors.Is(err, kit.ErrForbidden) {
		return kit.Chat{}, fmt.Errorf("%w: %s", ErrSourceNotFound, identifier)
	}
	return chat, err
}

// FromTransport converts a channel post.
func FromTransport(m *kit.Message) model.Message {
	return model.Message{
		SourceID:     m.ChatID,
		SourceTitle:  m.ChatTitle,
		SourceHandle: m.ChatUsername,
		MessageID:    m.ID,
		Text:         m.Text,
		PostedAt:     m.Date,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
