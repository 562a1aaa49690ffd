package bot

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	channelNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{3,31}$`)
	channelIDRe   = regexp.MustCompile(`^-?\d{5,20}$`)
)

var (
	cancelWords  = map[string]bool{"/cancel": true, "cancel": true, "/annulla": true, "annulla": true}
	skipWords    = map[string]bool{"/skip": true, "skip": true, "/salta": true, "salta": true}
	confirmWords = map[string]bool{"si": true, "sì": true, "yes": true, "ok": true}
)

// linkPrefixes are stripped from channel input, longest forms first.
var linkPrefixes = []string{
	"https://t.me/",
	"http://t.me/",
	"https://telegram.me/",
	"http://telegram.me/",
	"t.me/",
	"telegram.me/",
	"tg://resolve?domain=",
}

var (
	errInviteLink     = errors.New("invite links are not supported")
	errInvalidChannel = errors.New("invalid channel identifier")
)

func isCancel(s string) bool { return cancelWords[strings.ToLower(strings.TrimSpace(s))] }
func isSkip(s string) bool   { return skipWords[strings.ToLower(strings.TrimSpace(s))] }

// ParseChannel turns user input ("@deals", "https://t.me/deals",
// "-1001234567890") into an identifier accepted by source.Join.
func ParseChannel(input string) (string, error) {
	s := strings.TrimSpace(input)
	for _, p := range linkPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimRight(strings.TrimSpace(s), "/")

	if strings.HasPrefix(s, "+") || strings.HasPrefix(strings.ToLower(s), "joinchat/") {
		return "", errInviteLink
	}
	if channelNameRe.MatchString(s) || channelIDRe.MatchString(s) {
		return s, nil
	}
	return "", errInvalidChannel
}

// ParsePrice reads a target price typed by a user: "799", "799,90",
// "1.299,00 €", "EUR 15". Zero and negative values are rejected.
func ParsePrice(input string) (decimal.Decimal, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	for _, marker := range []string{"€", "euro", "eur"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// splitCommand returns the command word without the leading slash and any
// "@botname" suffix, lowercased, and the remaining arguments.
func splitCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}
