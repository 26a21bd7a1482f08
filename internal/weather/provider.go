package weather

import "context"

// Provider fetches weather data for a coordinate.
type Provider interface {
	// Fetch returns the provider's snapshot for a location.
	Fetch(ctx context.Context, c Coordinate) (Snapshot, error)

	// Name returns the provider name for logging.
	Name() string
}
