package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubRunner struct {
	summary     alerts.Summary
	hadDeadline bool
}

func (s *stubRunner) RunPass(ctx context.Context) alerts.Summary {
	_, s.hadDeadline = ctx.Deadline()
	return s.summary
}

func TestEvaluationJob(t *testing.T) {
	t.Run("completed pass", func(t *testing.T) {
		runner := &stubRunner{summary: alerts.Summary{TotalProcessed: 3, TriggeredCount: 1, FailedCount: 1}}
		job := NewEvaluationJob(runner, time.Minute, zerolog.Nop())

		assert.Equal(t, "evaluation", job.Name())
		assert.NoError(t, job.Run())
		assert.True(t, runner.hadDeadline)
	})

	t.Run("skipped pass", func(t *testing.T) {
		runner := &stubRunner{summary: alerts.Summary{Skipped: true}}
		assert.NoError(t, NewEvaluationJob(runner, 0, zerolog.Nop()).Run())
		assert.False(t, runner.hadDeadline)
	})

	t.Run("pass could not load rules", func(t *testing.T) {
		runner := &stubRunner{summary: alerts.Summary{Error: "database is locked"}}
		assert.EqualError(t, NewEvaluationJob(runner, 0, zerolog.Nop()).Run(), "database is locked")
	})
}
