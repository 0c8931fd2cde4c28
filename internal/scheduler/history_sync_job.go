package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// SymbolLister returns the symbols currently held.
type SymbolLister interface {
	Symbols(ctx context.Context) ([]string, error)
}

// CloseRecorder stores a symbol's daily closes atomically.
type CloseRecorder interface {
	RecordSeries(ctx context.Context, symbol string, bars []domain.DailyBar) (int, error)
}

// HistorySyncJob backfills daily closes for held symbols and the benchmark,
// which the risk metrics read from history.db.
type HistorySyncJob struct {
	symbols   SymbolLister
	provider  domain.HistoryProvider
	store     CloseRecorder
	benchmark string
	lookback  int
	now       domain.Clock
	log       zerolog.Logger
}

// NewHistorySyncJob creates a new history sync job covering lookbackDays of closes.
func NewHistorySyncJob(
	symbols SymbolLister,
	provider domain.HistoryProvider,
	store CloseRecorder,
	benchmark string,
	lookbackDays int,
	log zerolog.Logger,
) *HistorySyncJob {
	return &HistorySyncJob{
		symbols:   symbols,
		provider:  provider,
		store:     store,
		benchmark: benchmark,
		lookback:  lookbackDays,
		now:       time.Now,
		log:       log.With().Str("job", "history_sync").Logger(),
	}
}

// WithClock overrides the clock used for the lookback window.
func (j *HistorySyncJob) WithClock(clock domain.Clock) *HistorySyncJob {
	j.now = clock
	return j
}

// Name returns the job name
func (j *HistorySyncJob) Name() string {
	return "history_sync"
}

// Run fetches and stores closes for every symbol. Symbols the provider cannot serve are
// skipped; the job fails only when nothing could be synced.
func (j *HistorySyncJob) Run() error {
	ctx := context.Background()

	symbols, err := j.symbols.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list held symbols: %w", err)
	}
	if j.benchmark != "" && !slices.Contains(symbols, j.benchmark) {
		symbols = append(symbols, j.benchmark)
	}
	if len(symbols) == 0 {
		return nil
	}

	// Calendar days; weekends and holidays have no bars.
	start := j.now().AddDate(0, 0, -j.lookback*7/5)

	synced, stored := 0, 0
	var errs []error
	for _, symbol := range symbols {
		bars, err := j.provider.DailyCloses(ctx, symbol, start)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				j.log.Debug().Str("symbol", symbol).Msg("No daily history available")
				continue
			}
			errs = append(errs, err)
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch daily closes")
			continue
		}

		n, err := j.store.RecordSeries(ctx, symbol, bars)
		if err != nil {
			return err
		}
		stored += n
		synced++
	}

	j.log.Info().
		Int("symbols", len(symbols)).
		Int("synced", synced).
		Int("closes", stored).
		Msg("History sync completed")

	if synced == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
