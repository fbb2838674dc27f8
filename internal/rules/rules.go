// Package rules holds the keyword tables that drive ticket classification
// and agent specialization. Tables are ordered lists so that "first match
// wins" is a property of the data rather than of map iteration.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

// PriorityRule maps a keyword group onto a priority.
type PriorityRule struct {
	Priority domain.TicketPriority `yaml:"priority"`
	Keywords []string              `yaml:"keywords"`
}

// CategoryRule maps a keyword group onto a category.
type CategoryRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// ExpertiseRule raises an agent's expertise for tickets of a given priority
// when the agent's department matches one of the keywords.
type ExpertiseRule struct {
	Priority domain.TicketPriority `yaml:"priority"`
	Score    int                   `yaml:"score"`
	Keywords []string              `yaml:"keywords"`
}

// Rules is the full keyword configuration.
type Rules struct {
	PriorityKeywords  []PriorityRule  `yaml:"priority_keywords"`
	CategoryKeywords  []CategoryRule  `yaml:"category_keywords"`
	CategoryExpertise []CategoryRule  `yaml:"category_expertise"`
	BaselineExpertise int             `yaml:"baseline_expertise"`
	PriorityExpertise []ExpertiseRule `yaml:"priority_expertise"`
}

// Default returns the embedded rule set.
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML rule document.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

// normalize canonicalizes priorities and lower-cases keywords; matching is
// always done against lower-cased text.
func (r *Rules) normalize() error {
	if len(r.PriorityKeywords) == 0 {
		return errors.New("rules: priority_keywords must not be empty")
	}
	if r.BaselineExpertise <= 0 {
		return errors.New("rules: baseline_expertise must be positive")
	}
	for i := range r.PriorityKeywords {
		p, err := domain.ParseTicketPriority(string(r.PriorityKeywords[i].Priority))
		if err != nil {
			return fmt.Errorf("rules: priority_keywords[%d]: %w", i, err)
		}
		r.PriorityKeywords[i].Priority = p
		r.PriorityKeywords[i].Keywords = lowerAll(r.PriorityKeywords[i].Keywords)
	}
	for i := range r.PriorityExpertise {
		p, err := domain.ParseTicketPriority(string(r.PriorityExpertise[i].Priority))
		if err != nil {
			return fmt.Errorf("rules: priority_expertise[%d]: %w", i, err)
		}
		r.PriorityExpertise[i].Priority = p
		r.PriorityExpertise[i].Keywords = lowerAll(r.PriorityExpertise[i].Keywords)
	}
	seen := map[string]bool{}
	for i := range r.CategoryKeywords {
		name := strings.ToLower(strings.TrimSpace(r.CategoryKeywords[i].Category))
		if name == "" {
			return fmt.Errorf("rules: category_keywords[%d]: empty category", i)
		}
		if seen[name] {
			return fmt.Errorf("rules: duplicate category %q", name)
		}
		seen[name] = true
		r.CategoryKeywords[i].Category = name
		r.CategoryKeywords[i].Keywords = lowerAll(r.CategoryKeywords[i].Keywords)
	}
	for i := range r.CategoryExpertise {
		r.CategoryExpertise[i].Category = strings.ToLower(strings.TrimSpace(r.CategoryExpertise[i].Category))
		r.CategoryExpertise[i].Keywords = lowerAll(r.CategoryExpertise[i].Keywords)
	}
	return nil
}

// Categories lists the known categories in configured order.
func (r *Rules) Categories() []string {
	out := make([]string, 0, len(r.CategoryKeywords))
	for _, c := range r.CategoryKeywords {
		out = append(out, c.Category)
	}
	return out
}

// IsCategory reports whether name is a configured category.
func (r *Rules) IsCategory(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.CategoryKeywords {
		if c.Category == name {
			return true
		}
	}
	return false
}

// ExpertiseKeywords returns the department keywords that mark an agent as
// specialized for category.
func (r *Rules) ExpertiseKeywords(category string) []string {
	category = strings.ToLower(strings.TrimSpace(category))
	for _, c := range r.CategoryExpertise {
		if c.Category == category {
			return c.Keywords
		}
	}
	return nil
}

// PriorityExpertiseFor returns the expertise rule for priority, if any.
func (r *Rules) PriorityExpertiseFor(priority domain.TicketPriority) (ExpertiseRule, bool) {
	for _, rule := range r.PriorityExpertise {
		if rule.Priority == priority {
			return rule, true
		}
	}
	return ExpertiseRule{}, false
}

// ContainsAny reports whether text (already lower-cased) contains any keyword.
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
