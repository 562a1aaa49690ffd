package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/eventbus"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

// ErrUndeliverable means the recipient can never receive messages from the bot
// (blocked it, deleted the chat, or never started it).
var ErrUndeliverable = errors.New("notifier: recipient undeliverable")

// Config tunes delivery.
type Config struct {
	RatePerSec int
	// RetryMax bounds retries after a failed send. Flood signals and transient
	// errors share the budget.
	RetryMax int
	// RetryBase is the first backoff for transient (non-flood) errors.
	RetryBase time.Duration
	// MaxRetryAfter caps how long a flood signal may hold a send; longer waits
	// are returned to the caller as *transport.RateLimitError.
	MaxRetryAfter time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = 60 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Sender is the part of transport.Adapter the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Counters are best-effort delivery counters.
type Counters struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// Service is safe for concurrent use.
type Service struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter

	sent   atomic.Uint64
	failed atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log,
		bus:    bus,
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sleep:   sleepCtx,
	}
}

// Send delivers text to chatID and waits for the outcome.
//
// It returns nil on success, an error wrapping ErrUndeliverable for blocked
// recipients, a *transport.RateLimitError when the flood wait is too long or
// the retry budget is spent, or the last transport error.
func (s *Service) Send(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		return nil
	}
	attempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		_, err := s.sender.SendText(callCtx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			s.sent.Add(1)
			s.publish(eventbus.TypeNotifySent, chatID, attempt, nil)
			return nil
		}
		lastErr = err

		if errors.Is(err, kit.ErrForbidden) || errors.Is(err, kit.ErrChatNotFound) {
			lastErr = fmt.Errorf("%w: %v", ErrUndeliverable, err)
			break
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := retryDelay(s.cfg, attempt)
		if wait, ok := kit.RetryAfter(err); ok {
			if wait > s.cfg.MaxRetryAfter {
				break
			}
			delay = wait
		}
		s.log.Debug("notify send failed, retrying",
			logx.Int64("chat_id", chatID), logx.Int("attempt", attempt), logx.Duration("delay", delay), logx.Err(err))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}

	s.failed.Add(1)
	s.publish(eventbus.TypeNotifyFailed, chatID, attempts, lastErr)
	return lastErr
}

func (s *Service) Counters() Counters {
	return Counters{Sent: s.sent.Load(), Failed: s.failed.Load()}
}

func (s *Service) publish(typ string, chatID int64, attempts int, err error) {
	ev := NotificationEvent{ChatID: chatID, Attempts: attempts, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// retryDelay is RetryBase * 2^(attempt-1), capped at 10s.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 10*time.Second {
			return 10 * time.Second
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
