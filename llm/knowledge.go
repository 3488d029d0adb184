// ABOUTME: Knowledge extraction flow
// ABOUTME: Turns an answered question into reusable Q/A pairs
package llm

import (
	"context"
	"encoding/json"
)

// LearnedEntry is one reusable Q/A pair extracted from an exchange.
type LearnedEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExtractKnowledge mines an inbound question and the agent's response for
// Q/A pairs worth keeping. An empty result is not an error.
func (a *Assistant) ExtractKnowledge(ctx context.Context, question, answer string) ([]LearnedEntry, error) {
	template, err := LoadTemplate(a.db, PromptKnowledge)
	if err != nil {
		return nil, err
	}
	prompt := RenderTemplate(template, map[string]string{
		"question": question,
		"answer":   answer,
	})

	raw, err := a.llm.Complete(ctx, systemPrompt, prompt, a.cfg.ClassifyTemperature)
	if err != nil {
		return nil, err
	}

	span, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var entries []LearnedEntry
	if err := json.Unmarshal([]byte(span), &entries); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.Question != "" && entry.Answer != "" {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}
