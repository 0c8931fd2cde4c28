package di

import (
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/clientdata"
	"github.com/aristath/sentinel-alerts/internal/config"
	"github.com/aristath/sentinel-alerts/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs and registers them on a new scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{Scheduler: scheduler.New(log)}

	// A pass that outlives its schedule interval stops dispatching new rules.
	passTimeout := 4 * time.Minute
	jobs.Evaluation = scheduler.NewEvaluationJob(container.AlertService, passTimeout, log)

	jobs.Maintenance = scheduler.NewMaintenanceJob(
		container.AlertHistoryRepo,
		container.Inbox,
		container.Databases(),
		time.Duration(cfg.Jobs.RetentionDays)*24*time.Hour,
		container.Events,
		log,
	)

	jobs.QuoteCleanup = clientdata.NewCleanupJob(container.QuoteCache, log)

	if container.History != nil {
		jobs.HistorySync = scheduler.NewHistorySyncJob(
			container.HoldingRepo,
			container.History,
			container.PriceHistoryRepo,
			cfg.Risk.BenchmarkSymbol,
			cfg.Risk.LookbackDays,
			log,
		)
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Evaluation.Schedule, jobs.Evaluation},
		{cfg.Jobs.MaintenanceSchedule, jobs.Maintenance},
		{"0 0 * * * *", jobs.QuoteCleanup},
	}
	if jobs.HistorySync != nil {
		registrations = append(registrations, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Jobs.HistorySyncSchedule, jobs.HistorySync})
	}

	for _, r := range registrations {
		if err := jobs.Scheduler.AddJob(r.schedule, r.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", r.job.Name(), err)
		}
	}

	return jobs, nil
}
