// Package i18n renders user-facing text in the owner's language.
package i18n

import (
	"fmt"
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/it"
	ut "github.com/go-playground/universal-translator"
	"github.com/shopspring/decimal"
)

// DefaultLanguage is used when an owner's language is unknown or unsupported.
const DefaultLanguage = "en"

// Translator looks up catalog entries and formats numbers per locale.
// It never fails at lookup time: a missing key falls back to the default
// language, then to the key itself.
type Translator struct {
	uni *ut.UniversalTranslator
	def ut.Translator
}

// New loads the built-in catalogs.
func New() (*Translator, error) {
	fallback := en.New()
	uni := ut.New(fallback, fallback, it.New())

	for lang, msgs := range catalogs {
		tr, ok := uni.GetTranslator(lang)
		if !ok {
			return nil, fmt.Errorf("i18n: no locale for %q", lang)
		}
		for key, text := range msgs {
			if err := tr.Add(key, text, false); err != nil {
				return nil, fmt.Errorf("i18n: %s/%s: %w", lang, key, err)
			}
		}
	}
	def, _ := uni.GetTranslator(DefaultLanguage)
	return &Translator{uni: uni, def: def}, nil
}

// Resolve maps a client language code ("it-IT", "en_US", "") to a supported
// language, defaulting to DefaultLanguage.
func Resolve(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) > 2 {
		code = code[:2]
	}
	if _, ok := catalogs[code]; ok {
		return code
	}
	return DefaultLanguage
}

// T renders key in lang with positional args.
func (t *Translator) T(key, lang string, args ...string) string {
	if t == nil {
		return key
	}
	if s, ok := render(t.translator(lang), key, args); ok {
		return s
	}
	if s, ok := render(t.def, key, args); ok {
		return s
	}
	return key
}

// Price formats a price with two decimals using the locale separators.
func (t *Translator) Price(lang string, d decimal.Decimal) string {
	if t == nil {
		return d.StringFixed(2)
	}
	return t.translator(lang).FmtNumber(d.Round(2).InexactFloat64(), 2)
}

// Number formats an integer count using the locale grouping.
func (t *Translator) Number(lang string, n int) string {
	if t == nil {
		return fmt.Sprint(n)
	}
	return t.translator(lang).FmtNumber(float64(n), 0)
}

// Locale exposes the underlying locale, e.g. for date formatting.
func (t *Translator) Locale(lang string) locales.Translator {
	return t.translator(lang)
}

func (t *Translator) translator(lang string) ut.Translator {
	if tr, ok := t.uni.GetTranslator(Resolve(lang)); ok {
		return tr
	}
	return t.def
}

// render pads missing args so an under-supplied call still produces text.
func render(tr ut.Translator, key string, args []string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = "", false
		}
	}()
	padded := append(args, make([]string, 8)...)
	s, err := tr.T(key, padded...)
	if err != nil {
		return "", false
	}
	return s, true
}
