// ABOUTME: Prompt templates for the LLM flows
// ABOUTME: Compiled-in defaults, overridable per name through the database
package llm

import (
	"database/sql"
	"strings"

	"github.com/restriden/simpli-immo-sub001/db"
)

// Template names. A prompt_templates row with one of these names overrides
// the compiled-in default.
const (
	PromptLeadAnalysis  = "lead_analysis"
	PromptFollowupDraft = "followup_draft"
	PromptKnowledge     = "knowledge_extraction"
	PromptTranslation   = "listing_translation"
)

var defaultTemplates = map[string]string{
	PromptLeadAnalysis: `Du bist Assistent eines Immobilienmaklers. Bewerte den folgenden Interessenten anhand seiner Daten und des Nachrichtenverlaufs.

Interessent:
{{lead}}

Nachrichten (neueste zuletzt):
{{messages}}

Antworte nur mit JSON in genau dieser Form:
{"quality_score": 0, "temperature": "heiss|warm|kalt", "summary": "kurze Einschaetzung auf Deutsch", "suggested_status": "neu|kontaktiert|besichtigt|finanzierung_bestaetigt|gekauft"}
quality_score ist eine Zahl von 0 bis 100.`,

	PromptFollowupDraft: `Du bist Assistent eines Immobilienmaklers und schreibst eine kurze, freundliche Follow-up-Nachricht an einen Interessenten, der laenger nicht geantwortet hat. Sprich den Interessenten mit Namen an, beziehe dich auf den bisherigen Verlauf und stelle eine konkrete Frage. Keine Floskeln, kein Betreff.

Interessent:
{{lead}}

Bisheriger Verlauf (neueste zuletzt):
{{messages}}

Wissensbasis zum Objekt:
{{knowledge}}

Antworte nur mit JSON:
{"message": "die Nachricht auf Deutsch", "reasoning": "ein Satz, warum diese Nachricht jetzt passt"}`,

	PromptKnowledge: `Extrahiere wiederverwendbare Frage/Antwort-Paare aus diesem Austausch zwischen einem Interessenten und einem Immobilienmakler. Nur Fakten, die auch anderen Interessenten helfen. Wenn nichts Wiederverwendbares enthalten ist, antworte mit [].

Frage des Interessenten:
{{question}}

Antwort des Maklers:
{{answer}}

Antworte nur mit einem JSON-Array:
[{"question": "...", "answer": "..."}]`,

	PromptTranslation: `Uebersetze die folgende Objektbeschreibung ins Englische. Behalte Ton, Fakten und Absatzstruktur bei. Antworte nur mit der Uebersetzung, ohne Anfuehrungszeichen und ohne Kommentar.

{{description}}`,
}

// LoadTemplate returns the stored override for name, or the compiled-in
// default when none exists.
func LoadTemplate(database *sql.DB, name string) (string, error) {
	stored, err := db.GetPromptTemplate(database, name)
	if err != nil {
		return "", err
	}
	if stored != nil && stored.Template != "" {
		return stored.Template, nil
	}
	return defaultTemplates[name], nil
}

// RenderTemplate substitutes {{placeholder}} tokens. Unknown placeholders are
// left in place.
func RenderTemplate(template string, values map[string]string) string {
	rendered := template
	for key, value := range values {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}
	return rendered
}
