package service

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// Enhancement is what an external enhancer extracted from a ticket body.
// Priority and Category are raw strings and are validated before use.
// Auxiliary holds informational fields keyed by the Meta* constants.
type Enhancement struct {
	Priority  string
	Category  string
	Auxiliary map[string]any
}

// Enhancer extracts additional fields from free text.
type Enhancer interface {
	Enhance(ctx context.Context, content string) (*Enhancement, error)
}

// AIFieldExtractor runs keyword extraction and refines it with an Enhancer.
type AIFieldExtractor struct {
	base     *FieldExtractor
	enhancer Enhancer
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// AIFieldExtractorDependencies bundles collaborators for the extractor.
type AIFieldExtractorDependencies struct {
	Base     *FieldExtractor
	Enhancer Enhancer
	Timeout  time.Duration
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewAIFieldExtractor constructs the extractor.
func NewAIFieldExtractor(deps AIFieldExtractorDependencies) *AIFieldExtractor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIFieldExtractor{
		base:     deps.Base,
		enhancer: deps.Enhancer,
		timeout:  deps.Timeout,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

var errNoEnhancer = errors.New("no enhancer configured")

// ExtractFields returns the keyword fields refined by the enhancer. When the
// enhancer fails the keyword fields are returned unchanged as a fallback.
// An enhanced category replaces the keyword one only if it is a known
// category; an enhanced priority is taken only if it does not lower the
// keyword priority.
func (x *AIFieldExtractor) ExtractFields(ctx context.Context, content string) Outcome[ExtractedFields] {
	fields := x.base.ExtractFields(content)

	enhancement, err := x.enhance(ctx, content)
	if err != nil {
		x.metrics.RecordFallback("enhancer")
		x.logger.Warn("field enhancement failed, using keyword extraction", zap.Error(err))
		fields.Metadata[MetaExtraction] = "keyword"
		return Fallback(fields, err)
	}

	if enhancement.Category != "" && x.base.Rules().IsCategory(enhancement.Category) {
		fields.Category = strings.ToLower(strings.TrimSpace(enhancement.Category))
	}
	if enhancement.Priority != "" {
		if p, perr := domain.ParseTicketPriority(enhancement.Priority); perr == nil && p.Rank() >= fields.Priority.Rank() {
			fields.Priority = p
		}
	}
	for key, value := range enhancement.Auxiliary {
		if key == MetaContactInfo {
			if _, found := fields.Metadata[MetaContactInfo]; found {
				continue
			}
		}
		fields.Metadata[key] = value
	}
	fields.Metadata[MetaExtraction] = "enhanced"
	return Definitive(fields)
}

func (x *AIFieldExtractor) enhance(ctx context.Context, content string) (*Enhancement, error) {
	if x.enhancer == nil {
		return nil, errNoEnhancer
	}
	ctx, cancel := externalContext(ctx, x.timeout)
	defer cancel()
	enhancement, err := x.enhancer.Enhance(ctx, content)
	if err != nil {
		return nil, err
	}
	if enhancement == nil {
		return nil, errors.New("enhancer returned no result")
	}
	out := *enhancement
	out.Auxiliary = maps.Clone(enhancement.Auxiliary)
	return &out, nil
}
