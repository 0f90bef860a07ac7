package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"kart-checkout/internal/model"

	"github.com/klauspost/pgzip"
	"github.com/rs/zerolog"
)

// Loader reads a gzipped JSON rate snapshot.
type Loader interface {
	// Load returns the rate table stored under path.
	Load(ctx context.Context, path string) ([]model.ShippingRate, error)
}

// fileLoader implements Loader for snapshots on the local file system.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based snapshot loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "rate-snapshot-loader").Logger(),
	}
}

// Load reads a gzipped JSON array of shipping rates.
func (l *fileLoader) Load(ctx context.Context, path string) ([]model.ShippingRate, error) {
	l.logger.Info().Str("file", path).Msg("loading rate snapshot")

	file, err := os.Open(path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to open rate snapshot")
		return nil, fmt.Errorf("failed to open rate snapshot %s: %w", path, err)
	}
	defer file.Close()

	rates, err := decodeSnapshot(ctx, file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to decode rate snapshot")
		return nil, fmt.Errorf("failed to decode rate snapshot %s: %w", path, err)
	}

	l.logger.Info().
		Str("file", path).
		Int("rates_loaded", len(rates)).
		Msg("rate snapshot loaded successfully")

	return rates, nil
}

func decodeSnapshot(ctx context.Context, r io.Reader) ([]model.ShippingRate, error) {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var rates []model.ShippingRate
	if err := json.NewDecoder(gz).Decode(&rates); err != nil {
		return nil, fmt.Errorf("failed to parse rates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rates, nil
}

// SnapshotSource serves a rate table read from a snapshot through a Loader.
type SnapshotSource struct {
	loader Loader
	path   string
}

// NewSnapshotSource returns a RateSource reading path through loader.
func NewSnapshotSource(loader Loader, path string) *SnapshotSource {
	return &SnapshotSource{loader: loader, path: path}
}

// Rates loads the snapshot.
func (s *SnapshotSource) Rates(ctx context.Context) ([]model.ShippingRate, error) {
	return s.loader.Load(ctx, s.path)
}
