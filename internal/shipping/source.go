package shipping

import (
	"context"
	"errors"

	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
)

// fallbackSource asks the live source first and serves the snapshot when it
// fails or returns an empty table.
type fallbackSource struct {
	primary  RateSource
	snapshot RateSource
	logger   zerolog.Logger
}

// NewFallbackSource combines a live rate source with a snapshot. Either may be nil.
func NewFallbackSource(primary, snapshot RateSource, logger zerolog.Logger) RateSource {
	return &fallbackSource{
		primary:  primary,
		snapshot: snapshot,
		logger:   logger.With().Str("component", "rate-source").Logger(),
	}
}

func (s *fallbackSource) Rates(ctx context.Context) ([]model.ShippingRate, error) {
	var primaryErr error
	if s.primary != nil {
		rates, err := s.primary.Rates(ctx)
		if err == nil && len(rates) > 0 {
			return rates, nil
		}
		primaryErr = err
		s.logger.Warn().Err(err).Int("rates", len(rates)).Msg("live shipping rates unavailable, using snapshot")
	}

	if s.snapshot == nil {
		if primaryErr != nil {
			return nil, primaryErr
		}
		return nil, nil
	}

	rates, err := s.snapshot.Rates(ctx)
	if err != nil {
		return nil, errors.Join(primaryErr, err)
	}
	return rates, nil
}
