package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

const qualityPrompt = `You are a quality reviewer for an IT helpdesk. Evaluate how the ticket below was handled.

[Ticket]
Title: %s
Content: %s
Priority: %s
Category: %s
Status: %s
Created: %s

[Agent responses]
%s

Assess these dimensions: response_time (max 20), solution_quality (max 25), communication (max 20),
professionalism (max 20), follow_up (max 15).

Final score bands: 90-100 excellent, 80-89 good, 70-79 average, 60-69 pass, below 60 fail.

Reply with a single JSON object:
{"score": <0-100>, "comments": [<problems found>], "suggestions": [<improvements>],
 "detailed_analysis": {"<dimension>": {"score": <number>, "comment": "<text>"}}}`

// QualityEvaluator scores handled tickets with a chat model.
type QualityEvaluator struct {
	completer Completer
}

// NewQualityEvaluator builds an evaluator on top of completer.
func NewQualityEvaluator(completer Completer) *QualityEvaluator {
	return &QualityEvaluator{completer: completer}
}

// Evaluate implements service.Evaluator.
func (e *QualityEvaluator) Evaluate(ctx context.Context, summary service.TicketSummary, responses []domain.TicketResponse) (*service.Evaluation, error) {
	category := summary.Category
	if category == "" {
		category = "unclassified"
	}
	prompt := fmt.Sprintf(qualityPrompt,
		summary.Title,
		summary.Content,
		summary.Priority,
		category,
		summary.Status,
		summary.CreatedAt.Format(time.RFC3339),
		service.Transcript(responses))

	completion, err := e.completer.Complete(ctx, prompt, 0.3, 1200)
	if err != nil {
		return nil, err
	}
	return ParseEvaluation(completion)
}

type evaluationDocument struct {
	Score            *float64                   `json:"score"`
	Comments         flexibleStrings            `json:"comments"`
	Suggestions      flexibleStrings            `json:"suggestions"`
	DetailedAnalysis map[string]json.RawMessage `json:"detailed_analysis"`
}

// ParseEvaluation decodes a model completion. A completion without a JSON
// object or without a numeric score is an error.
func ParseEvaluation(completion string) (*service.Evaluation, error) {
	raw, err := ExtractJSONObject(completion)
	if err != nil {
		return nil, err
	}
	var doc evaluationDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	if doc.Score == nil {
		return nil, fmt.Errorf("evaluation has no score")
	}

	analysis := make(map[string]domain.DimensionScore, len(doc.DetailedAnalysis))
	for key, value := range doc.DetailedAnalysis {
		if dim, ok := parseDimension(value); ok {
			analysis[strings.ToLower(strings.TrimSpace(key))] = dim
		}
	}
	return &service.Evaluation{
		Score:            *doc.Score,
		Comments:         []string(doc.Comments),
		Suggestions:      []string(doc.Suggestions),
		DetailedAnalysis: analysis,
	}, nil
}

// parseDimension accepts either {"score": n, "comment": "..."} or a bare number.
func parseDimension(raw json.RawMessage) (domain.DimensionScore, bool) {
	var dim domain.DimensionScore
	if err := json.Unmarshal(raw, &dim); err == nil {
		return dim, true
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err == nil {
		return domain.DimensionScore{Score: score}, true
	}
	return domain.DimensionScore{}, false
}

// flexibleStrings decodes a JSON string, list of strings or null.
type flexibleStrings []string

func (f *flexibleStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if strings.TrimSpace(single) == "" {
		*f = nil
		return nil
	}
	*f = []string{single}
	return nil
}
