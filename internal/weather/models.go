// Package weather defines the provider-neutral weather model shared by the
// provider clients, the detector and the alert orchestrator.
package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Weather errors.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrCityNotFound       = errors.New("city not found")
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate is within latitude/longitude bounds.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Place is the result of resolving a free-text city name.
type Place struct {
	Coordinate

	// Name is the canonical display name returned by the geocoder.
	Name string
}

// ConditionCode is one entry of a categorical provider's condition list.
// The hundreds digit of ID groups the phenomenon family.
type ConditionCode struct {
	ID          int
	Main        string
	Description string
}

// CurrentConditions is the most recent categorical reading for a location.
type CurrentConditions struct {
	Conditions []ConditionCode
	ObservedAt time.Time
}

// ForecastBlock is one 3-hour slot of a categorical forecast.
type ForecastBlock struct {
	Time       time.Time
	Conditions []ConditionCode
}

// LeadCode returns the first condition ID in the list.
func LeadCode(conditions []ConditionCode) (int, bool) {
	if len(conditions) == 0 {
		return 0, false
	}
	return conditions[0].ID, true
}

// Sample is one value of a continuous series. Entries that are not numeric
// decode as invalid samples instead of failing the whole series.
type Sample struct {
	Value float64
	Valid bool
}

// Num returns a valid sample holding v.
func Num(v float64) Sample {
	return Sample{Value: v, Valid: true}
}

// UnmarshalJSON accepts numbers and numeric strings.
func (s *Sample) UnmarshalJSON(data []byte) error {
	*s = Sample{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		if v, err := n.Float64(); err == nil {
			*s = Num(v)
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(trimmed, &str); err == nil {
		if v, err := strconv.ParseFloat(str, 64); err == nil {
			*s = Num(v)
		}
	}
	return nil
}

// MarshalJSON encodes invalid samples as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// TimeSeries maps a parameter name to magnitudes at a fixed step, index 0 = now.
type TimeSeries map[string][]Sample

// Kind tags which variant of a Snapshot is populated.
type Kind int

const (
	KindUnknown Kind = iota
	KindCategorical
	KindContinuous
)

func (k Kind) String() string {
	switch k {
	case KindCategorical:
		return "categorical"
	case KindContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// Snapshot is what a provider returns for a coordinate: either categorical
// current/forecast readings or a continuous time series.
type Snapshot struct {
	Kind Kind

	// Categorical variant.
	Current  *CurrentConditions
	Forecast []ForecastBlock

	// Continuous variant.
	Series TimeSeries

	FetchedAt time.Time
}

// Categorical builds a categorical snapshot.
func Categorical(current *CurrentConditions, forecast []ForecastBlock) Snapshot {
	return Snapshot{
		Kind:      KindCategorical,
		Current:   current,
		Forecast:  forecast,
		FetchedAt: time.Now(),
	}
}

// Continuous builds a continuous snapshot.
func Continuous(series TimeSeries) Snapshot {
	return Snapshot{
		Kind:      KindContinuous,
		Series:    series,
		FetchedAt: time.Now(),
	}
}

// Condition tags a detection result.
type Condition string

const (
	ConditionPrecipitation Condition = "precipitation"
	ConditionNone          Condition = "none"
)

// Detection is an imminent-event signal with an estimated time to onset.
type Detection struct {
	Condition  Condition
	ETAMinutes float64
}
