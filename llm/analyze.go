// ABOUTME: Lead classification flow
// ABOUTME: Scores quality, temperature, and a suggested status from message history
package llm

import (
	"context"
	"encoding/json"

	"github.com/restriden/simpli-immo-sub001/models"
)

// LeadAnalysis is the classification for one lead.
type LeadAnalysis struct {
	QualityScore    int    `json:"quality_score"`
	Temperature     string `json:"temperature"`
	Summary         string `json:"summary"`
	SuggestedStatus string `json:"suggested_status"`
}

// AnalyzeLead classifies one lead from its profile and message history.
func (a *Assistant) AnalyzeLead(ctx context.Context, lead *models.Lead, messages []models.Message) (*LeadAnalysis, error) {
	template, err := LoadTemplate(a.db, PromptLeadAnalysis)
	if err != nil {
		return nil, err
	}
	prompt := RenderTemplate(template, map[string]string{
		"lead":     leadContext(lead),
		"messages": messagesContext(messages, 20),
	})

	raw, err := a.llm.Complete(ctx, systemPrompt, prompt, a.cfg.ClassifyTemperature)
	if err != nil {
		return nil, err
	}

	span, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var analysis LeadAnalysis
	if err := json.Unmarshal([]byte(span), &analysis); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	normalizeAnalysis(&analysis)
	return &analysis, nil
}

// normalizeAnalysis clamps the score and substitutes defaults for missing or
// unusable fields.
func normalizeAnalysis(analysis *LeadAnalysis) {
	if analysis.QualityScore < 0 {
		analysis.QualityScore = 0
	}
	if analysis.QualityScore > 100 {
		analysis.QualityScore = 100
	}

	switch analysis.Temperature {
	case models.TemperatureHot, models.TemperatureWarm, models.TemperatureCold:
	case "heiß":
		analysis.Temperature = models.TemperatureHot
	default:
		analysis.Temperature = models.TemperatureCold
	}

	switch analysis.SuggestedStatus {
	case models.LeadStatusNew, models.LeadStatusContacted, models.LeadStatusViewed,
		models.LeadStatusFinanced, models.LeadStatusBought:
	default:
		analysis.SuggestedStatus = ""
	}
}
