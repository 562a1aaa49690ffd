package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/i18n"
	"pricewatch/internal/model"
	"pricewatch/internal/notifier"
	"pricewatch/internal/storage"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

type deliveryKey struct {
	watch int64
	src   string
	msg   int
}

type fakeStore struct {
	mu        sync.Mutex
	targets   []model.WatchTarget
	inserted  []model.MatchRecord
	keys      map[deliveryKey]bool
	insertErr error
	lookupErr error
	asked     []string
}

func (f *fakeStore) WatchesForSource(ctx context.Context, ids []string) ([]model.WatchTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append([]string(nil), ids...)
	return f.targets, f.lookupErr
}

func (f *fakeStore) InsertMatch(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return model.MatchRecord{}, f.insertErr
	}
	if f.keys == nil {
		f.keys = map[deliveryKey]bool{}
	}
	k := deliveryKey{rec.WatchID, rec.SourceKey, rec.MessageID}
	if f.keys[k] {
		return model.MatchRecord{}, storage.ErrDuplicate
	}
	f.keys[k] = true
	rec.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, rec)
	return rec, nil
}

type sent struct {
	chat int64
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]error
}

func (f *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func target(watchID, owner int64, name string, price *decimal.Decimal, lang string) model.WatchTarget {
	return model.WatchTarget{
		Watch: model.Watch{ID: watchID, OwnerID: owner, Name: name, TargetPrice: price},
		Owner: model.OwnerPreferences{OwnerID: owner, Language: lang},
	}
}

func newListener(t *testing.T, st Store, n Notifier) *Listener {
	t.Helper()
	tr, err := i18n.New()
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	l := New(Config{}, st, n, tr, nil, logx.Nop())
	l.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return l
}

func post(text string) model.Message {
	return model.Message{SourceID: -1001234, SourceTitle: "Deals", SourceHandle: "deals", MessageID: 55, Text: text}
}

func TestHandleMatchesAndNotifies(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{
		target(1, 10, "iphone", dec("800"), "en"),
		target(2, 20, "iphone", dec("700"), "it"),
		target(3, 30, "ipad", nil, "en"),
	}}
	n := &fakeNotifier{}
	l := newListener(t, st, n)

	res, err := l.Handle(context.Background(), post("Nuovo iPhone a 1.234,56€ e poi a 799 €"))
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if res.Evaluated != 3 || res.Matched != 1 || res.Notified != 1 {
		t.Fatalf("result = %+v", res)
	}
	rec := st.inserted[0]
	if rec.WatchID != 1 || !rec.Price.Equal(decimal.NewFromInt(799)) || rec.Origin != model.OriginRealtime {
		t.Fatalf("record = %+v", rec)
	}
	if rec.SourceKey != "-1001234" || rec.Link == nil || *rec.Link != "https://t.me/deals/55" {
		t.Fatalf("record key/link = %q %v", rec.SourceKey, rec.Link)
	}
	if n.sent[0].chat != 10 || !strings.Contains(n.sent[0].text, "Price found: 799.00 (target: 800.00)") {
		t.Fatalf("notification = %+v", n.sent[0])
	}
	if strings.Join(st.asked, ",") != "deals,-1001234" {
		t.Fatalf("identifiers = %v", st.asked)
	}
}

func TestHandleEmptyTextIsIgnored(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{target(1, 10, "x", nil, "en")}}
	l := newListener(t, st, &fakeNotifier{})
	res, err := l.Handle(context.Background(), post("   "))
	if err != nil || res != (Result{}) || st.asked != nil {
		t.Fatalf("Handle() = %+v, %v (asked %v)", res, err, st.asked)
	}
}

func TestHandleDedupsWatchWithinMessage(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{
		target(1, 10, "switch", nil, "en"),
		target(1, 10, "switch", nil, "en"),
	}}
	n := &fakeNotifier{}
	l := newListener(t, st, n)
	res, err := l.Handle(context.Background(), post("Nintendo Switch"))
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if res.Matched != 1 || len(n.sent) != 1 {
		t.Fatalf("result = %+v sent = %d", res, len(n.sent))
	}
}

func TestHandleReplayIsNotNotifiedTwice(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{target(1, 10, "switch", nil, "en")}}
	n := &fakeNotifier{}
	l := newListener(t, st, n)

	for i := 0; i < 2; i++ {
		if _, err := l.Handle(context.Background(), post("Switch OLED")); err != nil {
			t.Fatalf("Handle() #%d = %v", i, err)
		}
	}
	if len(st.inserted) != 1 || len(n.sent) != 1 {
		t.Fatalf("inserted=%d sent=%d, want 1/1", len(st.inserted), len(n.sent))
	}
}

func TestHandleNotifyFailureIsSuppressed(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{
		target(1, 10, "switch", nil, "en"),
		target(2, 20, "switch", nil, "en"),
	}}
	n := &fakeNotifier{fail: map[int64]error{10: errors.New("blocked")}}
	l := newListener(t, st, n)

	res, err := l.Handle(context.Background(), post("switch"))
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if res.Matched != 2 || res.Notified != 1 || n.sent[0].chat != 20 {
		t.Fatalf("result = %+v sent = %+v", res, n.sent)
	}
}

func TestHandlePersistenceErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk full")
	st := &fakeStore{targets: []model.WatchTarget{target(1, 10, "switch", nil, "en")}, insertErr: fmt.Errorf("storage: insert match: %w", boom)}
	n := &fakeNotifier{}
	l := newListener(t, st, n)

	if _, err := l.Handle(context.Background(), post("switch")); !errors.Is(err, boom) {
		t.Fatalf("Handle() = %v, want %v", err, boom)
	}
	if len(n.sent) != 0 {
		t.Fatal("nothing must be sent when the record was not stored")
	}

	st2 := &fakeStore{lookupErr: boom}
	if _, err := newListener(t, st2, n).Handle(context.Background(), post("switch")); !errors.Is(err, boom) {
		t.Fatalf("lookup error = %v", err)
	}
}

func TestRunDrainsUntilClosed(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{target(1, 10, "switch", nil, "en")}}
	n := &fakeNotifier{}
	l := newListener(t, st, n)

	ch := make(chan model.Message, 2)
	m1, m2 := post("switch"), post("switch lite")
	m2.MessageID = 56
	ch <- m1
	ch <- m2
	close(ch)
	if err := l.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(n.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(n.sent))
	}
}

// ctxSender fails like a real transport when its context is already done.
type ctxSender struct {
	mu    sync.Mutex
	chats []int64
}

func (c *ctxSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = append(c.chats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.chats)}, nil
}

func TestHandleDeliversInFlightMatchDuringShutdown(t *testing.T) {
	t.Parallel()
	st := &fakeStore{targets: []model.WatchTarget{target(1, 10, "switch", nil, "en")}}
	sender := &ctxSender{}
	n := notifier.New(notifier.Config{}, sender, logx.Nop(), nil)
	l := newListener(t, st, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := l.Handle(ctx, post("Switch OLED"))
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if len(st.inserted) != 1 || len(sender.chats) != 1 || res.Notified != 1 {
		t.Fatalf("inserted=%d sent=%d result=%+v, want one record and one send",
			len(st.inserted), len(sender.chats), res)
	}
	if sender.chats[0] != 10 {
		t.Fatalf("sent to %d, want 10", sender.chats[0])
	}
}
