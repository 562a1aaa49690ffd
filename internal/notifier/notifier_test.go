package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pricewatch/internal/eventbus"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil once exhausted
	sent  []string
	calls int
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return kit.MessageRef{}, err
		}
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func newTestService(cfg Config, s Sender) (*Service, *[]time.Duration, <-chan eventbus.Event) {
	bus := eventbus.New()
	ch, _ := bus.Subscribe(16)
	svc := New(cfg, s, logx.Nop(), bus)
	var slept []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return svc, &slept, ch
}

func TestSendSuccessPublishesEvent(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	svc, _, events := newTestService(Config{}, fs)

	if err := svc.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0] != "hello" {
		t.Fatalf("sent = %q", fs.sent)
	}
	if e := <-events; e.Type != eventbus.TypeNotifySent {
		t.Fatalf("event = %s", e.Type)
	}
	if c := svc.Counters(); c.Sent != 1 || c.Failed != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestSendRetriesFloodOnce(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{errs: []error{&kit.RateLimitError{RetryAfter: 3 * time.Second}}}
	svc, slept, _ := newTestService(Config{RetryMax: 1}, fs)

	if err := svc.Send(context.Background(), 1, "x"); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if fs.calls != 2 {
		t.Fatalf("calls = %d, want 2", fs.calls)
	}
	if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
		t.Fatalf("slept = %v, want [3s]", *slept)
	}
}

func TestSendSurfacesPersistentFlood(t *testing.T) {
	t.Parallel()
	flood := &kit.RateLimitError{RetryAfter: time.Second}
	fs := &fakeSender{errs: []error{flood, flood}}
	svc, _, events := newTestService(Config{RetryMax: 1}, fs)

	err := svc.Send(context.Background(), 1, "x")
	if _, ok := kit.RetryAfter(err); !ok {
		t.Fatalf("Send() = %v, want rate limit error", err)
	}
	if e := <-events; e.Type != eventbus.TypeNotifyFailed {
		t.Fatalf("event = %s", e.Type)
	}
}

func TestSendDoesNotWaitOutLongFlood(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{errs: []error{&kit.RateLimitError{RetryAfter: time.Hour}}}
	svc, slept, _ := newTestService(Config{RetryMax: 3}, fs)

	err := svc.Send(context.Background(), 1, "x")
	if d, ok := kit.RetryAfter(err); !ok || d != time.Hour {
		t.Fatalf("Send() = %v", err)
	}
	if fs.calls != 1 || len(*slept) != 0 {
		t.Fatalf("calls = %d slept = %v", fs.calls, *slept)
	}
}

func TestSendBlockedIsUndeliverable(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{errs: []error{kit.ErrForbidden}}
	svc, _, _ := newTestService(Config{RetryMax: 2}, fs)

	err := svc.Send(context.Background(), 1, "x")
	if !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("Send() = %v, want ErrUndeliverable", err)
	}
	if fs.calls != 1 {
		t.Fatalf("blocked recipients must not be retried, calls = %d", fs.calls)
	}
}

func TestSendBacksOffOnTransientErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	fs := &fakeSender{errs: []error{boom, boom, boom}}
	svc, slept, _ := newTestService(Config{RetryMax: 2, RetryBase: 100 * time.Millisecond}, fs)

	if err := svc.Send(context.Background(), 1, "x"); !errors.Is(err, boom) {
		t.Fatalf("Send() = %v, want %v", err, boom)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("slept = %v, want %v", *slept, want)
	}
}
