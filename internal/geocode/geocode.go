// Package geocode resolves free-text city names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

// Geocoder resolves a city name to a named place.
// Implementations return an error wrapping weather.ErrCityNotFound when the
// lookup succeeds but yields no result.
type Geocoder interface {
	Geocode(ctx context.Context, city string) (weather.Place, error)
}

// Chain tries each geocoder in order and returns the first success.
type Chain struct {
	geocoders []Geocoder
	logger    zerolog.Logger
}

// NewChain creates a geocoder chain. Nil entries are skipped.
func NewChain(logger zerolog.Logger, geocoders ...Geocoder) *Chain {
	c := &Chain{logger: logger}
	for _, g := range geocoders {
		if g != nil {
			c.geocoders = append(c.geocoders, g)
		}
	}
	return c
}

// Len returns the number of geocoders in the chain.
func (c *Chain) Len() int {
	return len(c.geocoders)
}

// Geocode resolves city with the first geocoder that finds it. A result with
// out-of-range coordinates counts as a miss. When every geocoder misses the
// result is weather.ErrCityNotFound; otherwise the last transport error is
// returned.
func (c *Chain) Geocode(ctx context.Context, city string) (weather.Place, error) {
	if len(c.geocoders) == 0 {
		return weather.Place{}, errors.New("no geocoder configured")
	}

	var lastErr error
	for i, g := range c.geocoders {
		place, err := g.Geocode(ctx, city)
		if err == nil {
			err = place.Validate()
		}
		if err == nil {
			return place, nil
		}
		if ctx.Err() != nil {
			return weather.Place{}, ctx.Err()
		}

		c.logger.Debug().
			Err(err).
			Int("geocoder", i).
			Str("city", city).
			Msg("geocoder miss")

		if errors.Is(err, weather.ErrCityNotFound) || errors.Is(err, weather.ErrInvalidCoordinates) {
			continue
		}
		lastErr = err
	}

	if lastErr != nil {
		return weather.Place{}, fmt.Errorf("geocoding %q: %w", city, lastErr)
	}
	return weather.Place{}, fmt.Errorf("%w: %s", weather.ErrCityNotFound, city)
}
