package i18n

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"pricewatch/internal/model"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return tr
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	t.Parallel()
	for key := range catalogs[DefaultLanguage] {
		for lang, msgs := range catalogs {
			if _, ok := msgs[key]; !ok {
				t.Fatalf("catalog %q is missing %q", lang, key)
			}
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":      "en",
		"it":    "it",
		"it-IT": "it",
		"IT":    "it",
		"en_US": "en",
		"de":    "en",
	}
	for in, want := range tests {
		if got := Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	tr := newTranslator(t)

	if got := tr.T(Welcome, "it", "Mario"); !strings.HasPrefix(got, "Ciao Mario") {
		t.Fatalf("T(welcome, it) = %q", got)
	}
	if got := tr.T(Welcome, "fr", "Ann"); !strings.HasPrefix(got, "Hi Ann") {
		t.Fatalf("unsupported language should fall back to en, got %q", got)
	}
	if got := tr.T("no_such_key", "it"); got != "no_such_key" {
		t.Fatalf("missing key should render as itself, got %q", got)
	}
	if got := tr.T(SummaryHeader, "en"); got != "Daily summary ( matches):" {
		t.Fatalf("missing args should render empty, got %q", got)
	}
}

func TestNotifyTemplate(t *testing.T) {
	t.Parallel()
	tr := newTranslator(t)
	line := tr.T(NotifyPriceLine, "en", tr.Price("en", decimal.NewFromInt(799)), tr.Price("en", decimal.NewFromInt(800)))
	got := tr.T(NotifyMatch, "en", "iphone", "Deals", line, "iPhone a 799€", "")
	want := "'iphone' found in Deals!\nPrice found: 799.00 (target: 800.00)\n\niPhone a 799€"
	if got != want {
		t.Fatalf("notify = %q, want %q", got, want)
	}
}

func TestPriceUsesLocaleSeparators(t *testing.T) {
	t.Parallel()
	tr := newTranslator(t)
	p := decimal.RequireFromString("49.99")
	if got := tr.Price("en", p); got != "49.99" {
		t.Fatalf("Price(en) = %q", got)
	}
	if got := tr.Price("it", p); got != "49,99" {
		t.Fatalf("Price(it) = %q", got)
	}
}

func TestMatchNotification(t *testing.T) {
	t.Parallel()
	tr := newTranslator(t)
	link := "https://t.me/deals/5"
	price, target := decimal.NewFromInt(10), decimal.NewFromInt(12)

	tests := []struct {
		name string
		in   MatchNotice
		want string
	}{
		{
			name: "realtime without target",
			in:   MatchNotice{Product: "switch", Source: "Deals", Excerpt: "Switch OLED", Link: &link, Origin: model.OriginRealtime},
			want: "'switch' found in Deals!\nSwitch OLED\n\nGo to message: https://t.me/deals/5",
		},
		{
			name: "backfill with price",
			in:   MatchNotice{Product: "cavo", Source: "Offerte", Price: &price, Target: &target, Excerpt: "Cavo 10€", Origin: model.OriginBackfill},
			want: "[Backfill] 'cavo' found in Offerte!\n10.00 (target: 12.00)\n\nCavo 10€",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tr.MatchNotification("en", tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
