// ABOUTME: Follow-up drafting flow
// ABOUTME: Produces a message draft plus reasoning for agent review
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/restriden/simpli-immo-sub001/models"
)

// FollowupDraft is a proposed outbound message awaiting agent approval.
type FollowupDraft struct {
	Message   string `json:"message"`
	Reasoning string `json:"reasoning"`
}

// DraftFollowup writes a follow-up message for a lead that has gone quiet,
// grounded in the conversation history and the listing's knowledge entries.
func (a *Assistant) DraftFollowup(ctx context.Context, lead *models.Lead, messages []models.Message, knowledge []models.KnowledgeEntry) (*FollowupDraft, error) {
	template, err := LoadTemplate(a.db, PromptFollowupDraft)
	if err != nil {
		return nil, err
	}
	prompt := RenderTemplate(template, map[string]string{
		"lead":      leadContext(lead),
		"messages":  messagesContext(messages, 20),
		"knowledge": knowledgeContext(knowledge),
	})

	raw, err := a.llm.Complete(ctx, systemPrompt, prompt, a.cfg.DraftTemperature)
	if err != nil {
		return nil, err
	}

	span, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var draft FollowupDraft
	if err := json.Unmarshal([]byte(span), &draft); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if draft.Message == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("draft contained no message")}
	}

	return &draft, nil
}
