package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pricewatch/internal/model"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

type fakeResolver struct {
	errs  []error
	chat  kit.Chat
	calls int
}

func (f *fakeResolver) ResolveChat(ctx context.Context, identifier string) (kit.Chat, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return kit.Chat{}, err
		}
	}
	return f.chat, nil
}

type fakeStore struct {
	upserted []string
	appended []model.Message
	keep     int
	recent   map[string][]model.Message
}

func (f *fakeStore) UpsertSource(ctx context.Context, identifier string, title *string) (model.Source, error) {
	f.upserted = append(f.upserted, identifier)
	return model.Source{ID: 1, Identifier: identifier, Title: title}, nil
}

func (f *fakeStore) AppendSourceMessage(ctx context.Context, msg model.Message, keep int) error {
	f.appended = append(f.appended, msg)
	f.keep = keep
	return nil
}

func (f *fakeStore) RecentSourceMessages(ctx context.Context, identifier string, limit int) ([]model.Message, error) {
	msgs := f.recent[identifier]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func newTestSource(r Resolver, st Store) (*Telegram, *[]time.Duration) {
	s := New(Config{JournalSize: 5, StreamBuffer: 2}, r, st, logx.Nop())
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestIngestJournalsAndStreams(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	s, _ := newTestSource(&fakeResolver{}, st)

	post := &kit.Message{ID: 9, ChatID: -1001, ChatTitle: "Deals", ChatUsername: "deals", Text: "iPhone 799€"}
	if err := s.Ingest(context.Background(), post); err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	got := <-s.Stream()
	if got.SourceID != -1001 || got.SourceHandle != "deals" || got.MessageID != 9 || got.Text != "iPhone 799€" {
		t.Fatalf("streamed %+v", got)
	}
	if len(st.appended) != 1 || st.keep != 5 {
		t.Fatalf("journal = %d entries keep=%d", len(st.appended), st.keep)
	}
}

func TestIngestAfterCloseOnlyJournals(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	s, _ := newTestSource(&fakeResolver{}, st)
	s.Close()
	s.Close()
	if err := s.Ingest(context.Background(), &kit.Message{ID: 1, ChatID: -1, Text: "x"}); err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if _, ok := <-s.Stream(); ok {
		t.Fatal("stream must be closed")
	}
	if len(st.appended) != 1 {
		t.Fatal("post must still be journaled")
	}
}

func TestJoinRetriesOnceOnRateLimit(t *testing.T) {
	t.Parallel()
	r := &fakeResolver{
		errs: []error{&kit.RateLimitError{RetryAfter: 2 * time.Second}},
		chat: kit.Chat{ID: -1001234, Title: "Offerte", Username: "offerte"},
	}
	st := &fakeStore{}
	s, slept := newTestSource(r, st)

	src, err := s.Join(context.Background(), "offerte")
	if err != nil {
		t.Fatalf("Join() = %v", err)
	}
	if src.Identifier != "-1001234" || src.DisplayName() != "Offerte" {
		t.Fatalf("source = %+v", src)
	}
	if r.calls != 2 || len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Fatalf("calls=%d slept=%v", r.calls, *slept)
	}
}

func TestJoinGivesUpAfterSecondRateLimit(t *testing.T) {
	t.Parallel()
	flood := &kit.RateLimitError{RetryAfter: time.Second}
	r := &fakeResolver{errs: []error{flood, flood}}
	s, _ := newTestSource(r, &fakeStore{})

	_, err := s.Join(context.Background(), "offerte")
	if _, ok := kit.RetryAfter(err); !ok {
		t.Fatalf("Join() = %v, want rate limit", err)
	}
	if r.calls != 2 {
		t.Fatalf("calls = %d, want 2", r.calls)
	}
}

func TestJoinNotFoundIsPermanent(t *testing.T) {
	t.Parallel()
	r := &fakeResolver{errs: []error{fmt.Errorf("%w: boom", kit.ErrChatNotFound)}}
	s, slept := newTestSource(r, &fakeStore{})

	_, err := s.Join(context.Background(), "nope_nope")
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("Join() = %v, want ErrSourceNotFound", err)
	}
	if len(*slept) != 0 {
		t.Fatal("not found must not be retried")
	}
}

func TestFetchRecentReadsJournalByChatID(t *testing.T) {
	t.Parallel()
	st := &fakeStore{recent: map[string][]model.Message{
		"-100777": {{MessageID: 3}, {MessageID: 2}, {MessageID: 1}},
	}}
	s, _ := newTestSource(&fakeResolver{chat: kit.Chat{ID: -100777}}, st)

	msgs, err := s.FetchRecent(context.Background(), "deals", 2)
	if err != nil {
		t.Fatalf("FetchRecent() = %v", err)
	}
	if len(msgs) != 2 || msgs[0].MessageID != 3 {
		t.Fatalf("msgs = %+v", msgs)
	}
}
