package clientdata

import (
	"context"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired quotes from the cache database.
type CleanupJob struct {
	repo *QuoteRepository
	log  zerolog.Logger
}

// NewCleanupJob creates a new quote cache cleanup job.
func NewCleanupJob(repo *QuoteRepository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "quote_cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired(context.Background())
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired quotes")
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Cleaned up expired cached quotes")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "quote_cache_cleanup"
}
