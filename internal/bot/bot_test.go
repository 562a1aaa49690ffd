package bot

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
	"pricewatch/internal/match"
	"pricewatch/internal/model"
	"pricewatch/internal/source"
	"pricewatch/internal/storage"
	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

const owner = int64(42)

type fakeStore struct {
	mu          sync.Mutex
	owners      map[int64]model.OwnerPreferences
	watches     []model.Watch
	sources     []model.Source
	memberships map[model.Membership]bool
	matches     map[int64][]model.MatchRecord
	minPrice    *decimal.Decimal
	stats       model.OwnerStats
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:      map[int64]model.OwnerPreferences{},
		memberships: map[model.Membership]bool{},
		matches:     map[int64][]model.MatchRecord{},
	}
}

func (f *fakeStore) EnsureOwner(_ context.Context, p model.OwnerPreferences) (model.OwnerPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.owners[p.OwnerID]; ok {
		cur.Username = p.Username
		f.owners[p.OwnerID] = cur
		return cur, nil
	}
	f.owners[p.OwnerID] = p
	return p, nil
}

func (f *fakeStore) SetPaused(_ context.Context, id int64, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.owners[id]
	p.Paused = paused
	f.owners[id] = p
	return nil
}

func (f *fakeStore) SetLanguage(_ context.Context, id int64, lang string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.owners[id]
	p.Language = lang
	f.owners[id] = p
	return nil
}

func (f *fakeStore) OwnerStats(context.Context, int64) (model.OwnerStats, error) { return f.stats, nil }

func (f *fakeStore) AddMembership(_ context.Context, m model.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[m] = true
	return nil
}

func (f *fakeStore) RemoveMembership(_ context.Context, m model.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.memberships[m] {
		return storage.ErrNotFound
	}
	delete(f.memberships, m)
	return nil
}

func (f *fakeStore) SourcesForOwner(context.Context, int64) ([]model.Source, error) {
	return f.sources, nil
}

func (f *fakeStore) AddWatch(_ context.Context, w model.Watch) (model.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Name = strings.ToLower(w.Name)
	for _, cur := range f.watches {
		if cur.OwnerID == w.OwnerID && match.Normalize(cur.Name) == match.Normalize(w.Name) {
			return model.Watch{}, storage.ErrDuplicate
		}
	}
	w.ID = int64(len(f.watches) + 1)
	f.watches = append(f.watches, w)
	return w, nil
}

func (f *fakeStore) WatchesForOwner(context.Context, int64) ([]model.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Watch(nil), f.watches...), nil
}

func (f *fakeStore) DeleteWatch(_ context.Context, _, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.watches {
		if w.ID == id {
			f.watches = append(f.watches[:i], f.watches[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) MatchesForWatch(_ context.Context, id int64, _ int) ([]model.MatchRecord, error) {
	return f.matches[id], nil
}

func (f *fakeStore) MinPriceForName(context.Context, string) (*decimal.Decimal, error) {
	return f.minPrice, nil
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeSender) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeJoiner struct {
	asked []string
	src   model.Source
	err   error
}

func (f *fakeJoiner) Join(_ context.Context, ident string) (model.Source, error) {
	f.asked = append(f.asked, ident)
	return f.src, f.err
}

type fakeBackfill struct {
	calls []string
	n     int
	err   error
}

func (f *fakeBackfill) Backfill(_ context.Context, ident string, ownerID int64, limit int) (int, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s/%d/%d", ident, ownerID, limit))
	return f.n, f.err
}

type harness struct {
	bot   *Bot
	store *fakeStore
	out   *fakeSender
	join  *fakeJoiner
	fill  *fakeBackfill
	tr    *i18n.Translator
	now   time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	tr, err := i18n.New()
	if err != nil {
		t.Fatalf("i18n: %v", err)
	}
	h := &harness{
		store: newFakeStore(),
		out:   &fakeSender{},
		join:  &fakeJoiner{},
		fill:  &fakeBackfill{},
		tr:    tr,
		now:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	h.bot = New(cfg, h.store, h.out, h.join, h.fill, tr, logx.Nop())
	h.bot.now = func() time.Time { return h.now }
	return h
}

func (h *harness) say(text string) string {
	h.bot.process(context.Background(), &kit.Message{
		ID:           1,
		ChatID:       owner,
		FromID:       owner,
		FromUsername: "mario",
		FromLanguage: "en-US",
		Text:         text,
		IsPrivate:    true,
	})
	return h.out.last()
}

func (h *harness) t(key string, args ...string) string { return h.tr.T(key, "en", args...) }

func TestStartRegistersOwner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	if got, want := h.say("/start"), h.t(i18n.Welcome, "mario"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	p, ok := h.store.owners[owner]
	if !ok || p.Language != "en" || p.NotifyChatID != owner {
		t.Fatalf("owner = %+v (registered %v)", p, ok)
	}
}

func TestUnauthorizedUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{AllowedUserIDs: []int64{7}})
	if got, want := h.say("/watch"), h.t(i18n.NotAuthorized); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if len(h.store.owners) != 0 {
		t.Fatalf("unauthorized user was registered")
	}
	if h.bot.convs.len() != 0 {
		t.Fatalf("conversation opened for unauthorized user")
	}
}

func TestWatchConversation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})

	if got := h.say("/watch"); got != h.t(i18n.WatchAskProduct) {
		t.Fatalf("product prompt = %q", got)
	}
	if got := h.say("iPhone 15"); got != h.t(i18n.WatchAskPrice) {
		t.Fatalf("price prompt = %q", got)
	}
	if got := h.say("799,90 €"); got != h.t(i18n.WatchAskCat) {
		t.Fatalf("category prompt = %q", got)
	}
	got := h.say("Electronics")
	want := h.t(i18n.WatchActive, "iPhone 15",
		h.t(i18n.WatchPriceInfo, h.tr.Price("en", decimal.RequireFromString("799.90"))),
		h.t(i18n.WatchCatInfo, "electronics"))
	if got != want {
		t.Fatalf("confirmation = %q, want %q", got, want)
	}
	if len(h.store.watches) != 1 {
		t.Fatalf("watches = %d", len(h.store.watches))
	}
	w := h.store.watches[0]
	if w.Name != "iphone 15" || w.TargetPrice == nil || !w.TargetPrice.Equal(decimal.RequireFromString("799.9")) {
		t.Fatalf("watch = %+v", w)
	}
	if h.bot.convs.len() != 0 {
		t.Fatalf("conversation still open")
	}
}

func TestWatchSuggestsHistoricalMinimum(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	min := decimal.NewFromInt(650)
	h.store.minPrice = &min

	h.say("/watch ps5")
	h.say("/skip")
	got := h.say("salta")
	if want := h.t(i18n.WatchSuggest, "ps5", h.tr.Price("en", min)); got != want {
		t.Fatalf("suggestion = %q, want %q", got, want)
	}
	h.say("sì")
	if len(h.store.watches) != 1 || h.store.watches[0].TargetPrice == nil || !h.store.watches[0].TargetPrice.Equal(min) {
		t.Fatalf("watch = %+v", h.store.watches)
	}
	if h.store.watches[0].Category != nil {
		t.Fatalf("category should be skipped")
	}
}

func TestWatchRejectsDuplicateAndBadPrice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.store.watches = []model.Watch{{ID: 1, OwnerID: owner, Name: "ps5"}}

	h.say("/watch")
	if got, want := h.say("PS5"), h.t(i18n.WatchDuplicate, "PS5"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}

	h.say("/watch")
	h.say("switch")
	if got := h.say("cheap"); got != h.t(i18n.WatchBadPrice) {
		t.Fatalf("bad price reply = %q", got)
	}
	if h.bot.convs.len() != 0 {
		t.Fatalf("conversation still open")
	}
}

func TestWatchRejectsNormalizedDuplicate(t *testing.T) {
	t.Parallel()
	for _, product := range []string{"i-Phone 15", "IPHONE_15", "  iphone   15 "} {
		product := product
		t.Run(product, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{})
			h.store.watches = []model.Watch{{ID: 1, OwnerID: owner, Name: "iphone 15"}}

			h.say("/watch")
			want := h.t(i18n.WatchDuplicate, strings.TrimSpace(product))
			if got := h.say(product); got != want {
				t.Fatalf("reply = %q, want %q", got, want)
			}
			if len(h.store.watches) != 1 || h.bot.convs.len() != 0 {
				t.Fatalf("watches = %+v, open conversations = %d", h.store.watches, h.bot.convs.len())
			}
		})
	}
}

func TestCancelEndsConversation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.say("/watch")
	if got := h.say("/annulla"); got != h.t(i18n.OperationCancelled) {
		t.Fatalf("reply = %q", got)
	}
	if h.bot.convs.len() != 0 {
		t.Fatalf("conversation still open")
	}
	n := len(h.out.all())
	h.say("hello")
	if len(h.out.all()) != n {
		t.Fatalf("free text outside a conversation got a reply")
	}
}

func TestAddChannel(t *testing.T) {
	t.Parallel()
	title := "Tech Deals"
	h := newHarness(t, Config{BackfillLimit: 50})
	h.join.src = model.Source{ID: 9, Identifier: "-1001234", Title: &title}
	h.fill.n = 3

	if got := h.say("/add_channel"); got != h.t(i18n.AddChannelPrompt) {
		t.Fatalf("prompt = %q", got)
	}
	h.say("https://t.me/deals_tech")

	if len(h.join.asked) != 1 || h.join.asked[0] != "deals_tech" {
		t.Fatalf("join asked %v", h.join.asked)
	}
	if !h.store.memberships[model.Membership{OwnerID: owner, SourceID: 9}] {
		t.Fatalf("membership not recorded")
	}
	if len(h.fill.calls) != 1 || h.fill.calls[0] != "-1001234/42/50" {
		t.Fatalf("backfill calls %v", h.fill.calls)
	}
	texts := h.out.all()
	tail := texts[len(texts)-3:]
	want := []string{
		h.t(i18n.JoinChannelOK, "Tech Deals (-1001234)"),
		h.t(i18n.ScanningMessages),
		h.t(i18n.BackfillMatches, "3"),
	}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("reply[%d] = %q, want %q", i, tail[i], want[i])
		}
	}
}

func TestAddChannelFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		joinErr error
		want    string
		args    []string
	}{
		{"invite", "https://t.me/+AbCdEf", nil, i18n.InviteUnsupported, nil},
		{"joinchat", "t.me/joinchat/AbCdEf", nil, i18n.InviteUnsupported, nil},
		{"invalid", "a b", nil, i18n.InvalidChannelID, nil},
		{"not found", "@ghost_channel", fmt.Errorf("wrap: %w", source.ErrSourceNotFound), i18n.ChannelNotFound, nil},
		{"rate limited", "@busy_channel", &kit.RateLimitError{RetryAfter: 30 * time.Second}, i18n.ChannelRateLimited, []string{"30s"}},
		{"unexpected", "@broken_channel", errors.New("boom"), i18n.GenericError, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{})
			h.join.err = tt.joinErr
			got := h.say("/add_channel " + tt.input)
			if want := h.t(tt.want, tt.args...); got != want {
				t.Fatalf("reply = %q, want %q", got, want)
			}
			if len(h.fill.calls) != 0 {
				t.Fatalf("backfill should not run")
			}
		})
	}
}

func TestRemoveChannelChoice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.store.sources = []model.Source{{ID: 1, Identifier: "alpha"}, {ID: 2, Identifier: "beta"}}
	h.store.memberships[model.Membership{OwnerID: owner, SourceID: 2}] = true

	if got, want := h.say("/remove_channel"), h.t(i18n.LeavePrompt, "1. alpha\n2. beta"); got != want {
		t.Fatalf("prompt = %q, want %q", got, want)
	}
	if got := h.say("x"); got != h.t(i18n.InvalidChoice, "/remove_channel") {
		t.Fatalf("invalid choice reply = %q", got)
	}
	h.say("/remove_channel")
	if got := h.say("3"); got != h.t(i18n.NumberOutOfRange, "/remove_channel") {
		t.Fatalf("out of range reply = %q", got)
	}
	h.say("/remove_channel")
	if got := h.say("2"); got != h.t(i18n.LeaveChannelOK, "beta") {
		t.Fatalf("remove reply = %q", got)
	}
	if len(h.store.memberships) != 0 {
		t.Fatalf("membership not removed")
	}
}

func TestConversationTimeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{ConversationTimeout: time.Minute})
	h.store.watches = []model.Watch{{ID: 1, OwnerID: owner, Name: "ps5"}}
	h.say("/unwatch")

	h.now = h.now.Add(30 * time.Second)
	if exp := h.bot.convs.expired(h.now); len(exp) != 0 {
		t.Fatalf("expired too early")
	}
	h.now = h.now.Add(31 * time.Second)
	exp := h.bot.convs.expired(h.now)
	conv, ok := exp[owner]
	if !ok {
		t.Fatalf("conversation not expired")
	}
	h.bot.expire(context.Background(), owner, conv)
	if got := h.out.last(); got != h.t(i18n.TimedOut, "/unwatch") {
		t.Fatalf("reply = %q", got)
	}
	if h.bot.convs.len() != 0 {
		t.Fatalf("conversation not removed")
	}
	if len(h.store.watches) != 1 {
		t.Fatalf("timeout must not delete anything")
	}
}

func TestUnansweredSuggestionCreatesWatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{ConversationTimeout: time.Minute})
	min := decimal.NewFromInt(20)
	h.store.minPrice = &min

	h.say("/watch book")
	h.say("/skip")
	h.say("/skip")

	h.now = h.now.Add(2 * time.Minute)
	for id, conv := range h.bot.convs.expired(h.now) {
		h.bot.expire(context.Background(), id, conv)
	}
	if len(h.store.watches) != 1 || h.store.watches[0].TargetPrice != nil {
		t.Fatalf("watches = %+v", h.store.watches)
	}
	if got, want := h.out.last(), h.t(i18n.WatchActive, "book", "", ""); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestAnsweredConversationDoesNotExpire(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{ConversationTimeout: time.Minute})
	h.say("/watch")
	stale := h.bot.convs.get(owner)
	h.now = h.now.Add(50 * time.Second)
	h.say("kindle")

	// a sweep computed before the reply must not close the renewed conversation
	h.now = h.now.Add(20 * time.Second)
	h.bot.expire(context.Background(), owner, stale)
	if h.bot.convs.get(owner) == nil {
		t.Fatalf("renewed conversation was expired")
	}
}

func TestHistoryAndUnwatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	price := decimal.RequireFromString("19.90")
	link := "https://t.me/deals/5"
	h.store.watches = []model.Watch{{ID: 1, OwnerID: owner, Name: "book"}}
	h.store.matches[1] = []model.MatchRecord{
		{WatchID: 1, Price: &price, SourceName: "Deals", Link: &link, FoundAt: time.Date(2024, 4, 30, 18, 5, 0, 0, time.UTC)},
		{WatchID: 1, SourceName: "Other", FoundAt: time.Date(2024, 4, 29, 9, 0, 0, 0, time.UTC)},
	}

	got := h.say("/history")
	want := strings.Join([]string{
		h.t(i18n.HistoryHeader, "book", "2"),
		"  2024-04-30 18:05 | " + h.tr.Price("en", price) + " | Deals | " + link,
		"  2024-04-29 09:00 | " + h.t(i18n.NotAvailable) + " | Other",
	}, "\n")
	if got != want {
		t.Fatalf("history =\n%s\nwant\n%s", got, want)
	}

	h.say("/unwatch")
	if got := h.say("1"); got != h.t(i18n.Unwatched, "book") {
		t.Fatalf("unwatch reply = %q", got)
	}
	if got := h.say("/history"); got != h.t(i18n.NoProductsShort) {
		t.Fatalf("history after unwatch = %q", got)
	}
}

func TestListCategories(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	tech, home := "tech", "home"
	h.store.watches = []model.Watch{
		{ID: 1, Name: "tv", Category: &tech},
		{ID: 2, Name: "sofa", Category: &home},
		{ID: 3, Name: "gift"},
		{ID: 4, Name: "laptop", Category: &tech},
	}
	got := h.say("/list_categories")
	want := strings.Join([]string{
		h.t(i18n.CategoriesHeader),
		"\n" + h.t(i18n.Uncategorized) + ":", "  - gift",
		"\nhome:", "  - sofa",
		"\ntech:", "  - tv", "  - laptop",
	}, "\n")
	if got != want {
		t.Fatalf("categories =\n%s\nwant\n%s", got, want)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	if got := h.say("/pause"); got != h.t(i18n.Paused) {
		t.Fatalf("pause reply = %q", got)
	}
	if !h.store.owners[owner].Paused {
		t.Fatalf("owner not paused")
	}
	if got := h.say("/resume@pricewatch_bot"); got != h.t(i18n.Resumed) {
		t.Fatalf("resume reply = %q", got)
	}
	if h.store.owners[owner].Paused {
		t.Fatalf("owner still paused")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.store.stats = model.OwnerStats{
		Watches: 2, Sources: 1, Matches: 5,
		TopProduct: "ps5", TopProductHits: 4,
		TopSource: "Deals", TopSourceHits: 5,
		LastMatchAt: time.Date(2024, 4, 30, 18, 5, 0, 0, time.UTC),
	}
	got := h.say("/stats")
	want := strings.Join([]string{
		h.t(i18n.StatsHeader),
		h.t(i18n.StatsProducts, "2"),
		h.t(i18n.StatsChannels, "1"),
		h.t(i18n.StatsMatches, "5"),
		h.t(i18n.StatsTopProduct, "ps5", "4"),
		h.t(i18n.StatsTopChannel, "Deals", "5"),
		h.t(i18n.StatsLastMatch, "2024-04-30 18:05"),
	}, "\n")
	if got != want {
		t.Fatalf("stats =\n%s\nwant\n%s", got, want)
	}
}

func TestDispatchRunsOnShards(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Workers: 2})
	h.bot.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.bot.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for h.bot.Supervisor() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("bot did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.bot.Dispatch(&kit.Message{ChatID: owner, FromID: owner, Text: "/pause", IsPrivate: true})
	h.bot.Dispatch(&kit.Message{ChatID: -100, FromID: owner, Text: "/resume"}) // group: ignored
	for len(h.out.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no reply")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if got := h.out.all(); len(got) != 1 || got[0] != h.t(i18n.Paused) {
		t.Fatalf("replies = %q", got)
	}
}
