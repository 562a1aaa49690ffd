package match

import (
	"strings"

	"pricewatch/internal/model"
)

// Evaluate decides whether text satisfies w.
//
// The product name must be a substring of the text once both are normalized.
// A watch without a target matches on the name alone. A watch with a target
// needs at least one price in the original text, and the lowest one must not
// exceed the target.
func Evaluate(w model.Watch, text string) (model.MatchOutcome, bool) {
	name := Normalize(w.Name)
	if name == "" {
		return model.MatchOutcome{}, false
	}
	if !strings.Contains(Normalize(text), name) {
		return model.MatchOutcome{}, false
	}
	if !w.HasTarget() {
		return model.MatchOutcome{}, true
	}

	lowest, ok := MinPrice(ExtractPrices(text))
	if !ok || lowest.GreaterThan(*w.TargetPrice) {
		return model.MatchOutcome{}, false
	}
	target := *w.TargetPrice
	return model.MatchOutcome{Price: &lowest, Target: &target}, true
}
