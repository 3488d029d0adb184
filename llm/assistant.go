// ABOUTME: Assistant bundles the LLM-backed flows behind one dependency set
// ABOUTME: Shared prompt-context builders for leads, messages, and knowledge
package llm

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/models"
)

const systemPrompt = "Du bist ein praeziser Assistent fuer Immobilienmakler. Antworte ausschliesslich im geforderten Format."

// Assistant runs the LLM flows: lead classification, follow-up drafting,
// knowledge extraction, and listing translation.
type Assistant struct {
	db  *sql.DB
	llm Completer
	cfg *config.Config
}

func NewAssistant(database *sql.DB, completer Completer, cfg *config.Config) *Assistant {
	return &Assistant{db: database, llm: completer, cfg: cfg}
}

// leadContext renders the lead fields a prompt needs.
func leadContext(lead *models.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Status: %s\n", lead.Status)
	if lead.Email != "" {
		fmt.Fprintf(&b, "E-Mail: %s\n", lead.Email)
	}
	if lead.Phone != "" {
		fmt.Fprintf(&b, "Telefon: %s\n", lead.Phone)
	}
	if lead.Source != "" {
		fmt.Fprintf(&b, "Quelle: %s\n", lead.Source)
	}
	if lead.PipelineStage != "" {
		fmt.Fprintf(&b, "Pipeline-Phase: %s\n", lead.PipelineStage)
	}
	if lead.Tags != "" {
		fmt.Fprintf(&b, "Tags: %s\n", lead.Tags)
	}
	return strings.TrimRight(b.String(), "\n")
}

// messagesContext renders up to limit most recent messages, oldest first.
// The slice is expected newest first, the order ListMessagesByLead returns.
func messagesContext(messages []models.Message, limit int) string {
	if len(messages) == 0 {
		return "(keine Nachrichten)"
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}

	var b strings.Builder
	for i := len(messages) - 1; i >= 0; i-- {
		label := "Makler"
		if messages[i].Direction == models.DirectionIncoming {
			label = "Interessent"
		}
		fmt.Fprintf(&b, "[%s] %s\n", label, strings.TrimSpace(messages[i].Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func knowledgeContext(entries []models.KnowledgeEntry) string {
	if len(entries) == 0 {
		return "(keine Eintraege)"
	}

	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "F: %s\nA: %s\n", entry.Question, entry.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}
