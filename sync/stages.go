// ABOUTME: Pipeline stage normalization and reached-stage derivation
// ABOUTME: Folds diacritics and punctuation so stage names compare reliably
package sync

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/restriden/simpli-immo-sub001/models"
)

// Canonical funnel stages, in order.
const (
	StageNew       = "neu"
	StageContacted = "kontaktiert"
	StageViewing   = "besichtigung"
	StageFinancing = "finanzierung"
	StageNotary    = "notartermin"
	StagePurchase  = "gekauft"
)

// stageAliases lists the normalized external stage names that resolve to each
// canonical stage.
var stageAliases = map[string][]string{
	StageNew:       {"neu", "neuer lead", "new", "new lead", "eingang"},
	StageContacted: {"kontaktiert", "contacted", "erstkontakt", "in kontakt", "qualifiziert"},
	StageViewing:   {"besichtigung", "besichtigt", "viewing", "besichtigung geplant", "besichtigung terminiert", "viewing scheduled"},
	StageFinancing: {"finanzierung", "financing", "finanzierung bestaetigt", "finanzierung bestatigt", "finanzierung in pruefung", "financing confirmed"},
	StageNotary:    {"notartermin", "notar", "notary", "kaufvertrag", "notar kaufvertrag"},
	StagePurchase:  {"gekauft", "verkauft", "won", "closed won", "purchased", "abschluss"},
}

var stageNames = make(map[string]string)

func init() {
	for canonical, aliases := range stageAliases {
		for _, alias := range aliases {
			stageNames[alias] = canonical
		}
	}
}

var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeStageName folds a stage name to its comparison key: lowercase,
// diacritics removed, ß to ss, punctuation to spaces, whitespace collapsed.
func NormalizeStageName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	// ß is a full letter, not a combining mark, so fold it by hand.
	lowered = strings.ReplaceAll(lowered, "ß", "ss")

	folded, _, err := transform.String(diacriticFold, lowered)
	if err != nil {
		folded = lowered
	}

	var b strings.Builder
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// MapStageName resolves an external stage name to its canonical funnel stage.
// Unmapped names pass through normalized, so renamed pipeline stages still
// show up instead of vanishing.
func MapStageName(name string) string {
	normalized := NormalizeStageName(name)
	if canonical, ok := stageNames[normalized]; ok {
		return canonical
	}
	return normalized
}

// StageFlagsFor derives the reached-stage booleans for a canonical stage.
// A later stage implies the earlier ones, keeping the funnel monotone even
// when a lead skips ahead.
func StageFlagsFor(stage string) models.StageFlags {
	switch stage {
	case StageViewing:
		return models.StageFlags{Viewing: true}
	case StageFinancing:
		return models.StageFlags{Viewing: true, Financing: true}
	case StageNotary:
		return models.StageFlags{Viewing: true, Financing: true, Notary: true}
	case StagePurchase:
		return models.StageFlags{Viewing: true, Financing: true, Notary: true, Purchase: true}
	default:
		return models.StageFlags{}
	}
}
