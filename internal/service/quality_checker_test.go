package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestBaseScore(t *testing.T) {
	tests := []struct {
		status    domain.TicketStatus
		responses int
		want      float64
	}{
		{domain.TicketStatusClosed, 0, 80},
		{domain.TicketStatusClosed, 2, 100},
		{domain.TicketStatusResolved, 1, 100},
		{domain.TicketStatusProcessing, 0, 60},
		{domain.TicketStatusPending, 3, 90},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseScore(tt.status, tt.responses), "%s/%d", tt.status, tt.responses)
	}
}

func TestFinalScoreIsClipped(t *testing.T) {
	assert.InDelta(t, 68.0, FinalScore(80, 60), 1e-9)
	assert.Equal(t, 100.0, FinalScore(100, 250))
	assert.Equal(t, 0.0, FinalScore(0, -90))
}

func TestRating(t *testing.T) {
	assert.Equal(t, 3.4, Rating(68))
	assert.Equal(t, 5.0, Rating(100))
	assert.Equal(t, 2.5, Rating(50))
	assert.Equal(t, 0.0, Rating(0))
}

func TestCloseRunsQualityCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "owner-1", domain.UserRoleEmployee, "Sales")
	env.seedTicket(t, "t-1", domain.TicketStatusPending, testEpoch, nil)

	result, err := env.workflow.Close(ctx, "t-1", CloseTicketInput{AgentID: "agent-1"})
	require.NoError(t, err)
	require.NotNil(t, result.Quality)

	check := result.Quality.Check
	assert.Equal(t, 80.0, check.BaseScore)
	assert.Equal(t, 60.0, check.ExternalScore)
	assert.InDelta(t, 68.0, check.Score, 1e-9)
	assert.False(t, check.FallbackUsed)
	assert.Equal(t, 3.4, result.Quality.Rating)
	assert.Equal(t, 1, env.evaluator.calls)

	stored, err := env.store.QualityChecks().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	notification := result.Quality.Notification
	assert.Equal(t, "owner-1", notification.UserID)
	assert.Equal(t, domain.NotificationTypeQualityReport, notification.Type)
	require.NotNil(t, notification.Score)
	assert.Equal(t, 34, *notification.Score)
	assert.Equal(t, check.ID, *notification.ReportID)
	assert.Contains(t, notification.Content, "Rating: 3.4")
	assert.Contains(t, notification.Content, "No responses yet")

	var report QualityReportData
	require.NoError(t, json.Unmarshal(notification.ReportData, &report))
	assert.Equal(t, "owner-1", report.User)
	assert.Equal(t, "Sales", report.Department)
	assert.Len(t, report.ScoreDetails, 5)

	require.Len(t, env.sink.delivered, 1)
	assert.Equal(t, notification.ID, env.sink.delivered[0].ID)
}

func TestQualityCheckFallsBackOnEvaluatorFailure(t *testing.T) {
	env := newTestEnv(t)
	env.evaluator.eval = nil
	env.evaluator.err = errors.New("model overloaded")
	env.seedTicket(t, "t-1", domain.TicketStatusPending, testEpoch, nil)

	result, err := env.workflow.Close(context.Background(), "t-1", CloseTicketInput{AgentID: "agent-1", Reply: "replaced toner"})
	require.NoError(t, err)
	check := result.Quality.Check
	assert.True(t, check.FallbackUsed)
	assert.Equal(t, 100.0, check.BaseScore)
	assert.Equal(t, float64(FallbackEvaluationScore), check.ExternalScore)
	assert.InDelta(t, 70.0, check.Score, 1e-9)
	assert.Equal(t, []string{FallbackEvaluationComment}, check.Comments)
	assert.True(t, result.Quality.Evaluation.Fallback)

	var report QualityReportData
	require.NoError(t, json.Unmarshal(result.Quality.Notification.ReportData, &report))
	assert.Equal(t, "unknown user", report.User)
	assert.Contains(t, report.Response, "replaced toner")
}

func TestScoreDetailsUsesEvaluatorBreakdown(t *testing.T) {
	details := ScoreDetails(map[string]domain.DimensionScore{
		"communication": {Score: 12, Comment: "terse"},
	})
	require.Len(t, details, 1)
	assert.Equal(t, domain.ScoreDetail{Name: "Communication", Score: 12, MaxScore: 20, Description: "terse"}, details[0])

	defaults := ScoreDetails(nil)
	require.Len(t, defaults, 5)
	assert.Equal(t, 18.0, defaults[0].Score)
	assert.Equal(t, 20.0, defaults[0].MaxScore)
}

func TestQualityStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stats, err := env.workflow.QualityStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChecks)
	assert.Len(t, stats.Distribution, 5)

	for _, score := range []float64{95, 82, 55} {
		require.NoError(t, env.store.QualityChecks().Create(ctx, &domain.QualityCheck{ID: newID(), TicketID: "t", Score: score}))
	}
	stats, err = env.workflow.QualityStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChecks)
	assert.InDelta(t, 77.333, stats.AverageScore, 0.001)
	assert.Equal(t, map[string]int{"excellent": 1, "good": 1, "average": 0, "pass": 0, "fail": 1}, stats.Distribution)
}

func TestTranscript(t *testing.T) {
	assert.Equal(t, "No responses yet", Transcript(nil))
	out := Transcript([]domain.TicketResponse{
		{Content: "first", CreatedAt: testEpoch},
		{Content: "second", CreatedAt: testEpoch},
	})
	assert.Contains(t, out, "Response 1 (2024-03-01T09:00:00Z):\nfirst")
	assert.Contains(t, out, "Response 2")
}
