package i18n

import (
	"github.com/shopspring/decimal"

	"pricewatch/internal/model"
)

// MatchNotice is everything a match notification shows.
type MatchNotice struct {
	Product string
	Source  string
	Price   *decimal.Decimal
	Target  *decimal.Decimal
	Excerpt string
	Link    *string
	Origin  model.Origin
}

// MatchNotification renders the realtime or backfill notification for one match.
// The price line appears only when both price and target are known.
func (t *Translator) MatchNotification(lang string, n MatchNotice) string {
	tmpl, priceTmpl := NotifyMatch, NotifyPriceLine
	if n.Origin == model.OriginBackfill {
		tmpl, priceTmpl = NotifyBackfillMatch, NotifyBackfillPriceLine
	}
	var priceLine, linkLine string
	if n.Price != nil && n.Target != nil {
		priceLine = t.T(priceTmpl, lang, t.Price(lang, *n.Price), t.Price(lang, *n.Target))
	}
	if n.Link != nil && *n.Link != "" {
		linkLine = t.T(NotifyLinkLine, lang, *n.Link)
	}
	return t.T(tmpl, lang, n.Product, n.Source, priceLine, n.Excerpt, linkLine)
}
