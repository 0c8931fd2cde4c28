package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/sentinel-alerts/internal/modules/alerts"
	"github.com/rs/zerolog"
)

// PassRunner runs one evaluation pass.
type PassRunner interface {
	RunPass(ctx context.Context) alerts.Summary
}

// EvaluationJob runs an alert evaluation pass.
type EvaluationJob struct {
	runner  PassRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewEvaluationJob creates the evaluation job. A positive timeout stops dispatching
// rules once it elapses; rules already running finish.
func NewEvaluationJob(runner PassRunner, timeout time.Duration, log zerolog.Logger) *EvaluationJob {
	return &EvaluationJob{
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "evaluation").Logger(),
	}
}

// Name returns the job name
func (j *EvaluationJob) Name() string {
	return "evaluation"
}

// Run executes one pass. Per-rule failures are reported in the summary, not as errors;
// only a pass that could not load its rules fails the job.
func (j *EvaluationJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	summary := j.runner.RunPass(ctx)
	if summary.Skipped {
		j.log.Debug().Msg("Previous pass still running")
		return nil
	}
	if summary.Error != "" {
		return errors.New(summary.Error)
	}
	if summary.NotDispatched > 0 {
		j.log.Warn().Int("not_dispatched", summary.NotDispatched).Msg("Pass timed out before all rules were dispatched")
	}
	return nil
}
