// ABOUTME: Listing matching for leads
// ABOUTME: Label extraction from contact payloads and fuzzy name scoring
package sync

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// MatchThreshold is the minimum score at which a label is considered to name
// an existing listing.
const MatchThreshold = 0.6

// labelFieldNames are the custom-field and top-level names that carry a
// listing label, checked in order.
var labelFieldNames = []string{"objekt", "object", "immobilie", "property", "listing", "objektname"}

// MatchScore rates how well a label names a listing. 1.0 for a
// case-insensitive exact match, 0.9 for containment, otherwise the better of
// edit-distance similarity and token overlap.
func MatchScore(label, candidate string) float64 {
	a := strings.ToLower(strings.TrimSpace(label))
	b := strings.ToLower(strings.TrimSpace(candidate))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	editScore := 1 - float64(levenshtein(a, b))/float64(maxLen)

	if overlap := tokenOverlap(a, b); overlap > editScore {
		return overlap
	}
	if editScore < 0 {
		return 0
	}
	return editScore
}

// levenshtein is the edit distance over runes, two-row dynamic programming.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// tokenOverlap is the fraction of label tokens that substring-match some
// candidate token in either direction.
func tokenOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	matched := 0
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if strings.Contains(at, bt) || strings.Contains(bt, at) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(aTokens))
}

// ExtractListingLabel digs a listing label out of a raw contact payload.
// Search order: array-form custom fields (first non-empty value), object-form
// custom fields (known names, then key substring), the singular customField
// variant, top-level fields, and finally "objekt: <value>" tags. Empty means
// the contact names no listing.
func ExtractListingLabel(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}

	for _, key := range []string{"customFields", "customField"} {
		if label := labelFromCustomFields(payload[key]); label != "" {
			return label
		}
	}

	for _, name := range labelFieldNames {
		if value := stringValue(payload[name]); value != "" {
			return value
		}
	}

	if tags, ok := payload["tags"].([]any); ok {
		for _, tag := range tags {
			s, _ := tag.(string)
			idx := strings.Index(s, ":")
			if idx <= 0 {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(s[:idx]), "objekt") {
				if value := strings.TrimSpace(s[idx+1:]); value != "" {
					return value
				}
			}
		}
	}

	return ""
}

func labelFromCustomFields(v any) string {
	switch fields := v.(type) {
	case []any:
		for _, field := range fields {
			m, ok := field.(map[string]any)
			if !ok {
				continue
			}
			if value := stringValue(m["value"]); value != "" {
				return value
			}
		}
	case map[string]any:
		for _, name := range labelFieldNames {
			if value := stringValue(fields[name]); value != "" {
				return value
			}
		}
		for key, raw := range fields {
			lowered := strings.ToLower(key)
			for _, name := range labelFieldNames {
				if strings.Contains(lowered, name) {
					if value := stringValue(raw); value != "" {
						return value
					}
				}
			}
		}
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// MatchOrCreateListing resolves a label to the best-scoring listing, creating
// a placeholder listing when nothing scores above the threshold. A nil
// listing with nil error means the label was empty.
func MatchOrCreateListing(database *sql.DB, label string) (*models.Listing, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}

	listings, err := db.ListListings(database)
	if err != nil {
		return nil, err
	}

	var best *models.Listing
	bestScore := 0.0
	for i := range listings {
		if score := MatchScore(label, listings[i].Name); score > bestScore {
			best = &listings[i]
			bestScore = score
		}
	}
	if best != nil && bestScore > MatchThreshold {
		return best, nil
	}

	listing := &models.Listing{Name: label}
	if err := db.CreateListing(database, listing); err != nil {
		return nil, err
	}
	return listing, nil
}
