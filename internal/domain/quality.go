package domain

import "time"

// QualityCheck is the persisted result of one quality evaluation.
type QualityCheck struct {
	ID            string
	TicketID      string
	Score         float64
	BaseScore     float64
	ExternalScore float64
	FallbackUsed  bool
	Comments      []string
	CheckedAt     time.Time
}

// DimensionScore is one line of an evaluator breakdown.
type DimensionScore struct {
	Score   float64 `json:"score"`
	Comment string  `json:"comment,omitempty"`
}

// ScoreDetail is a rendered breakdown row shown to the ticket owner.
type ScoreDetail struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"maxScore"`
	Description string  `json:"description"`
}

// QualityStatistics summarises all quality checks.
type QualityStatistics struct {
	TotalChecks  int            `json:"total_checks"`
	AverageScore float64        `json:"average_score"`
	Distribution map[string]int `json:"score_distribution"`
}
