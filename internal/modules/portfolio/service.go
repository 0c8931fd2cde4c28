package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// HoldingSource supplies the stored lots of an owner.
type HoldingSource interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Holding, error)
}

// Service values holdings against live quotes.
//
// A failed quote never fails the snapshot: the holding is reported as
// unpriced and left out of the totals.
type Service struct {
	holdings HoldingSource
	now      domain.Clock
	log      zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(holdings HoldingSource, log zerolog.Logger) *Service {
	return &Service{
		holdings: holdings,
		now:      time.Now,
		log:      log.With().Str("service", "portfolio").Logger(),
	}
}

// WithClock overrides the clock used to stamp snapshots.
func (s *Service) WithClock(clock domain.Clock) *Service {
	s.now = clock
	return s
}

// Snapshot loads and values the owner's holdings.
// Returns domain.ErrNoHoldings when the owner has none.
func (s *Service) Snapshot(ctx context.Context, ownerID string, quotes domain.QuoteSource) (*Snapshot, error) {
	holdings, err := s.holdings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, domain.DataUnavailableError(fmt.Sprintf("holdings for %s", ownerID), err)
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("owner %s: %w", ownerID, domain.ErrNoHoldings)
	}

	snap := &Snapshot{
		TakenAt: s.now(),
		OwnerID: ownerID,
		Lots:    make([]Lot, 0, len(holdings)),
	}

	for _, h := range holdings {
		if h.Quantity <= 0 {
			s.log.Debug().Int64("holding_id", h.ID).Str("symbol", h.Symbol).Msg("Skipping empty holding")
			continue
		}

		quote, err := quotes.Quote(ctx, h.Symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			s.log.Warn().
				Err(err).
				Str("owner_id", ownerID).
				Str("symbol", h.Symbol).
				Msg("Holding left unpriced")
			snap.Unpriced = append(snap.Unpriced, UnpricedHolding{Holding: h, Reason: err.Error()})
			continue
		}

		lot := Lot{
			AcquiredAt:   h.AcquiredAt,
			Symbol:       h.Symbol,
			HoldingID:    h.ID,
			Quantity:     h.Quantity,
			CostBasis:    h.CostBasis,
			CurrentPrice: quote.Price,
			Change24h:    quote.Change24h,
		}
		snap.Lots = append(snap.Lots, lot)
		snap.TotalValue += lot.Value()
		snap.TotalInvested += lot.Invested()
	}

	s.log.Debug().
		Str("owner_id", ownerID).
		Int("lots", len(snap.Lots)).
		Int("unpriced", len(snap.Unpriced)).
		Float64("total_value", snap.TotalValue).
		Msg("Portfolio snapshot taken")

	return snap, nil
}
