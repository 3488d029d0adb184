// ABOUTME: Listing description translation flow
// ABOUTME: German to English, freeform text out
package llm

import (
	"context"
	"fmt"
	"strings"
)

// TranslateListing translates a listing description into English. The model
// answers with plain text, so only fences and stray quotes are stripped.
func (a *Assistant) TranslateListing(ctx context.Context, description string) (string, error) {
	template, err := LoadTemplate(a.db, PromptTranslation)
	if err != nil {
		return "", err
	}
	prompt := RenderTemplate(template, map[string]string{
		"description": description,
	})

	raw, err := a.llm.Complete(ctx, systemPrompt, prompt, a.cfg.TranslateTemperature)
	if err != nil {
		return "", err
	}

	translated := strings.TrimSpace(stripFences(raw))
	translated = strings.Trim(translated, `"`)
	if translated == "" {
		return "", &ParseError{Raw: raw, Err: fmt.Errorf("translation came back empty")}
	}

	return translated, nil
}
