package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/database"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/rs/zerolog"
)

// Pruner deletes records created before cutoff.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceJob prunes old alert history, checks every database's integrity
// and checkpoints the WAL of the healthy ones.
type MaintenanceJob struct {
	alerts    Pruner
	inbox     Pruner
	databases []*database.DB
	retention time.Duration
	events    *events.Manager
	now       domain.Clock
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job. inbox may be nil.
func NewMaintenanceJob(
	alerts Pruner,
	inbox Pruner,
	databases []*database.DB,
	retention time.Duration,
	manager *events.Manager,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		alerts:    alerts,
		inbox:     inbox,
		databases: databases,
		retention: retention,
		events:    manager,
		now:       time.Now,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// WithClock overrides the clock used to compute the retention cutoff.
func (j *MaintenanceJob) WithClock(clock domain.Clock) *MaintenanceJob {
	j.now = clock
	return j
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()
	ctx := context.Background()
	cutoff := j.now().Add(-j.retention)

	pruned, err := j.alerts.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune triggered alerts: %w", err)
	}

	if j.inbox != nil {
		n, err := j.inbox.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune notifications: %w", err)
		}
		pruned += n
	}

	var unhealthy []string
	var healthErrs []error
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			j.events.EmitError("maintenance", err, map[string]any{"database": db.Name()})
			unhealthy = append(unhealthy, db.Name())
			healthErrs = append(healthErrs, err)
			continue
		}
		// Not critical; the next run retries.
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	j.events.Emit("maintenance", &events.MaintenanceData{PrunedAlerts: pruned, Unhealthy: unhealthy})

	j.log.Info().
		Int64("pruned", pruned).
		Time("cutoff", cutoff).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed")

	if len(healthErrs) > 0 {
		return fmt.Errorf("unhealthy databases: %w", errors.Join(healthErrs...))
	}
	return nil
}
