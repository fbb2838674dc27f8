package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

const extractionPrompt = `You extract structured fields from IT helpdesk tickets.

[Ticket content]
%s

Return a single JSON object with these fields, omitting any you cannot determine:
priority (low, medium, high, urgent), category (%s), issue_type, severity,
required_skills, estimated_effort (hours), contact_info, device_info,
software_version, error_messages.`

var auxiliaryFields = []string{
	service.MetaIssueType,
	service.MetaSeverity,
	service.MetaRequiredSkills,
	service.MetaEstimatedEffort,
	service.MetaContactInfo,
	service.MetaDeviceInfo,
	service.MetaSoftwareVersion,
	service.MetaErrorMessages,
}

// FieldEnhancer extracts ticket fields with a chat model.
type FieldEnhancer struct {
	completer  Completer
	categories []string
}

// NewFieldEnhancer builds an enhancer that offers categories to the model.
func NewFieldEnhancer(completer Completer, categories []string) *FieldEnhancer {
	return &FieldEnhancer{completer: completer, categories: categories}
}

// Enhance implements service.Enhancer.
func (e *FieldEnhancer) Enhance(ctx context.Context, content string) (*service.Enhancement, error) {
	prompt := fmt.Sprintf(extractionPrompt, content, strings.Join(e.categories, ", "))
	completion, err := e.completer.Complete(ctx, prompt, 0.2, 600)
	if err != nil {
		return nil, err
	}
	return ParseEnhancement(completion)
}

// ParseEnhancement decodes a model completion. Priority and category are
// returned raw; unknown keys are dropped.
func ParseEnhancement(completion string) (*service.Enhancement, error) {
	raw, err := ExtractJSONObject(completion)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}

	out := &service.Enhancement{Auxiliary: map[string]any{}}
	if v, ok := doc["priority"].(string); ok {
		out.Priority = strings.TrimSpace(v)
	}
	if v, ok := doc["category"].(string); ok {
		out.Category = strings.TrimSpace(v)
	}
	for _, key := range auxiliaryFields {
		value, ok := doc[key]
		if !ok || isBlank(value) {
			continue
		}
		out.Auxiliary[key] = value
	}
	return out, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
