package geocode_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherdiffusers/weatherdiffusers/internal/geocode"
	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

type stubGeocoder struct {
	place weather.Place
	err   error
	calls int
}

func (s *stubGeocoder) Geocode(_ context.Context, _ string) (weather.Place, error) {
	s.calls++
	return s.place, s.err
}

func found(name string, lat, lon float64) *stubGeocoder {
	return &stubGeocoder{place: weather.Place{Coordinate: weather.Coordinate{Lat: lat, Lon: lon}, Name: name}}
}

func notFound() *stubGeocoder {
	return &stubGeocoder{err: fmt.Errorf("%w: x", weather.ErrCityNotFound)}
}

func failing(msg string) *stubGeocoder {
	return &stubGeocoder{err: errors.New(msg)}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := found("Chennai", 13.08, 80.27)
	second := found("Other", 1, 1)

	chain := geocode.NewChain(zerolog.Nop(), first, second)
	place, err := chain.Geocode(context.Background(), "Chennai")
	require.NoError(t, err)

	assert.Equal(t, "Chennai", place.Name)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestChain_FallsBack(t *testing.T) {
	tests := []struct {
		name  string
		first *stubGeocoder
	}{
		{"after not found", notFound()},
		{"after transport error", failing("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := found("Pune", 18.52, 73.85)
			chain := geocode.NewChain(zerolog.Nop(), tt.first, second)

			place, err := chain.Geocode(context.Background(), "Pune")
			require.NoError(t, err)
			assert.Equal(t, "Pune", place.Name)
			assert.Equal(t, 1, second.calls)
		})
	}
}

func TestChain_AllMiss(t *testing.T) {
	chain := geocode.NewChain(zerolog.Nop(), notFound(), notFound())

	_, err := chain.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, weather.ErrCityNotFound)
}

func TestChain_TransportErrorReported(t *testing.T) {
	chain := geocode.NewChain(zerolog.Nop(), failing("first"), notFound(), failing("connection refused"))

	_, err := chain.Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.NotErrorIs(t, err, weather.ErrCityNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestChain_SkipsNil(t *testing.T) {
	chain := geocode.NewChain(zerolog.Nop(), nil, found("Oslo", 59.9, 10.7))
	assert.Equal(t, 1, chain.Len())

	place, err := chain.Geocode(context.Background(), "Oslo")
	require.NoError(t, err)
	assert.Equal(t, "Oslo", place.Name)
}

func TestChain_Empty(t *testing.T) {
	_, err := geocode.NewChain(zerolog.Nop()).Geocode(context.Background(), "Oslo")
	assert.Error(t, err)
}

func TestChain_InvalidCoordinatesAreAMiss(t *testing.T) {
	bogus := found("Nowhere", 123, 80)
	second := found("Chennai", 13.08, 80.27)

	place, err := geocode.NewChain(zerolog.Nop(), bogus, second).Geocode(context.Background(), "Chennai")
	require.NoError(t, err)
	assert.Equal(t, "Chennai", place.Name)

	_, err = geocode.NewChain(zerolog.Nop(), found("Nowhere", 0, 200)).Geocode(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, weather.ErrCityNotFound)
}
