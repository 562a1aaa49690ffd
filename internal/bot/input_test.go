package bot

import (
	"errors"
	"testing"
)

func TestParseChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"deals_tech", "deals_tech", nil},
		{"@deals_tech", "deals_tech", nil},
		{"https://t.me/deals_tech", "deals_tech", nil},
		{"HTTPS://T.ME/deals_tech/", "deals_tech", nil},
		{"telegram.me/deals_tech", "deals_tech", nil},
		{"tg://resolve?domain=deals_tech", "deals_tech", nil},
		{"-1001234567890", "-1001234567890", nil},
		{"https://t.me/+AbC123", "", errInviteLink},
		{"t.me/joinchat/AbC123", "", errInviteLink},
		{"abc", "", errInvalidChannel},
		{"1deals", "", errInvalidChannel},
		{"deals-tech", "", errInvalidChannel},
		{"", "", errInvalidChannel},
	}
	for _, tt := range tests {
		got, err := ParseChannel(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("ParseChannel(%q) err = %v, want %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseChannel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"799", "799", true},
		{"799,90", "799.9", true},
		{"1.299,00 €", "1299", true},
		{"EUR 15", "15", true},
		{"15 euro", "15", true},
		{"12.5", "12.5", true},
		{"0", "", false},
		{"-3", "", false},
		{"cheap", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		if ok != tt.ok {
			t.Fatalf("ParsePrice(%q) ok = %v", tt.in, ok)
		}
		if ok && got.String() != tt.want {
			t.Fatalf("ParsePrice(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		cmd   string
		nargs int
		ok    bool
	}{
		{"/start", "start", 0, true},
		{"  /Watch iphone 15 ", "watch", 2, true},
		{"/history@pricewatch_bot", "history", 0, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
	}
	for _, tt := range tests {
		cmd, args, ok := splitCommand(tt.in)
		if ok != tt.ok || cmd != tt.cmd || len(args) != tt.nargs {
			t.Fatalf("splitCommand(%q) = %q %v %v", tt.in, cmd, args, ok)
		}
	}
}
