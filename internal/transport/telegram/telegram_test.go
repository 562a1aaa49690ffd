package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	kit "pricewatch/internal/transport"
	logx "pricewatch/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		limit     int
		parseMode string
		want      []string
	}{
		{name: "short", in: "hello", limit: 10, want: []string{"hello"}},
		{name: "hard cut", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "prefers newline", in: "aaaa\nbbbbbb", limit: 8, want: []string{"aaaa", "bbbbbb"}},
		{name: "runes not bytes", in: "€€€€€€", limit: 3, want: []string{"€€€", "€€€"}},
		{name: "html tag kept whole", in: "ab <b>cd</b>", limit: 5, parseMode: "HTML", want: []string{"ab ", "<b>cd", "</b>"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitTelegramText(tt.in, tt.limit, tt.parseMode)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("split(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	if d, ok := kit.RetryAfter(mapError(&tele.FloodError{RetryAfter: 7})); !ok || d != 7*time.Second {
		t.Fatalf("flood mapped to %v, %v", d, ok)
	}
	if err := mapError(tele.ErrChatNotFound); !errors.Is(err, kit.ErrChatNotFound) {
		t.Fatalf("chat not found mapped to %v", err)
	}
	if err := mapError(tele.ErrBlockedByUser); !errors.Is(err, kit.ErrForbidden) {
		t.Fatalf("blocked mapped to %v", err)
	}
	if err := mapError(errors.New("telegram: Bad Request: USERNAME_NOT_OCCUPIED (400)")); !errors.Is(err, kit.ErrChatNotFound) {
		t.Fatalf("plain not-found mapped to %v", err)
	}
	other := errors.New("dial tcp: timeout")
	if err := mapError(other); err != other {
		t.Fatalf("unknown error changed: %v", err)
	}
	if mapError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestSendUpdateFullQueue(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		kind      kit.UpdateKind
		drain     bool
		delivered bool
		warned    bool
	}{
		{name: "command dropped at once", kind: kit.UpdateMessage},
		{name: "post dropped after wait", kind: kit.UpdateChannelPost, warned: true},
		{name: "post delivered once drained", kind: kit.UpdateChannelPost, drain: true, delivered: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			a := &Adapter{log: logx.FromZerolog(zerolog.New(&buf)), postWait: 50 * time.Millisecond}
			ch := make(chan kit.Update, 1)
			ch <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1}}
			a.out.Store((chan<- kit.Update)(ch))

			if tc.drain {
				go func() {
					time.Sleep(5 * time.Millisecond)
					<-ch
				}()
			}
			a.sendUpdate(kit.Update{Kind: tc.kind, Message: &kit.Message{ID: 77, ChatID: -1001}})

			delivered := false
			select {
			case up := <-ch:
				delivered = up.Message.ID == 77
			default:
			}
			if delivered != tc.delivered {
				t.Fatalf("delivered = %v, want %v", delivered, tc.delivered)
			}
			if dropped := a.droppedUpdates == 1; dropped == tc.delivered {
				t.Fatalf("droppedUpdates = %d", a.droppedUpdates)
			}
			if !tc.warned {
				if buf.Len() != 0 {
					t.Fatalf("unexpected log: %s", buf.String())
				}
				return
			}
			var got map[string]any
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v (%q)", err, buf.String())
			}
			if got["level"] != "warn" || got["message_id"] != float64(77) || got["chat_id"] != float64(-1001) {
				t.Fatalf("log = %v", got)
			}
		})
	}
}
