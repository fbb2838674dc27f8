package service

import (
	"regexp"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/rules"
)

// Metadata keys written by extraction.
const (
	MetaContactInfo     = "contact_info"
	MetaIssueType       = "issue_type"
	MetaSeverity        = "severity"
	MetaRequiredSkills  = "required_skills"
	MetaEstimatedEffort = "estimated_effort"
	MetaDeviceInfo      = "device_info"
	MetaSoftwareVersion = "software_version"
	MetaErrorMessages   = "error_messages"
	MetaExtraction      = "extraction"
)

var (
	phonePattern = regexp.MustCompile(`1[3-9]\d{9}`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// ExtractedFields is the classification of a ticket body. Category is empty
// when nothing matched.
type ExtractedFields struct {
	Priority domain.TicketPriority
	Category string
	Metadata map[string]any
}

// ContactInfo holds the first phone number and e-mail found in a text.
type ContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsEmpty reports whether nothing was found.
func (c ContactInfo) IsEmpty() bool {
	return c.Phone == "" && c.Email == ""
}

func (c ContactInfo) asMap() map[string]any {
	out := map[string]any{}
	if c.Phone != "" {
		out["phone"] = c.Phone
	}
	if c.Email != "" {
		out["email"] = c.Email
	}
	return out
}

// FieldExtractor classifies ticket text with keyword rules. It is pure.
type FieldExtractor struct {
	rules *rules.Rules
}

// NewFieldExtractor builds an extractor over r.
func NewFieldExtractor(r *rules.Rules) *FieldExtractor {
	return &FieldExtractor{rules: r}
}

// Rules exposes the rule set the extractor was built with.
func (e *FieldExtractor) Rules() *rules.Rules {
	return e.rules
}

// ExtractFields derives priority, category and contact metadata from content.
func (e *FieldExtractor) ExtractFields(content string) ExtractedFields {
	fields := ExtractedFields{
		Priority: e.ExtractPriority(content),
		Category: e.ExtractCategory(content),
		Metadata: map[string]any{},
	}
	if contact := ExtractContactInfo(content); !contact.IsEmpty() {
		fields.Metadata[MetaContactInfo] = contact.asMap()
	}
	return fields
}

// ExtractPriority scans priority groups in configured order and returns the
// first group with a keyword hit; medium when none hits. The first-hit rule
// means a text containing both "urgent" and "low" is urgent.
func (e *FieldExtractor) ExtractPriority(content string) domain.TicketPriority {
	text := strings.ToLower(content)
	for _, group := range e.rules.PriorityKeywords {
		if rules.ContainsAny(text, group.Keywords) {
			return group.Priority
		}
	}
	return domain.TicketPriorityMedium
}

// ExtractCategory counts keyword hits per category and returns the category
// with the most; ties keep the category configured first.
func (e *FieldExtractor) ExtractCategory(content string) string {
	text := strings.ToLower(content)
	best, bestHits := "", 0
	for _, group := range e.rules.CategoryKeywords {
		hits := 0
		for _, kw := range group.Keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = group.Category, hits
		}
	}
	return best
}

// ExtractContactInfo finds the first mobile number and e-mail address.
func ExtractContactInfo(content string) ContactInfo {
	return ContactInfo{
		Phone: phonePattern.FindString(content),
		Email: emailPattern.FindString(content),
	}
}
