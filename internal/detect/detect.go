// Package detect decides whether precipitation is imminent from provider data.
//
// Every function here is pure and total: a missing signal is reported as
// (Detection{}, false), never as an error.
package detect

import (
	"math"

	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

const (
	// ForecastStepMinutes is the spacing of categorical forecast blocks.
	ForecastStepMinutes = 180

	// ForecastLookahead is how many forecast blocks are examined (6 hours).
	ForecastLookahead = 2

	snowFamily = 6
)

// rainFamilies are the hundreds prefixes of thunderstorm, drizzle and rain codes.
var rainFamilies = [...]int{2, 3, 5}

// Series parameters in preference order.
const (
	ParamPrecip = "precip"
	ParamPrate  = "prate"
)

// Window bounds the continuous-series scan.
type Window struct {
	// StepMinutes is the spacing between series samples.
	StepMinutes int

	// WindowMinutes is the furthest ETA that still counts as imminent.
	// Zero admits only the first sample.
	WindowMinutes int
}

// DefaultWindow returns an hourly step with a three hour horizon.
func DefaultWindow() Window {
	return Window{StepMinutes: 60, WindowMinutes: 180}
}

// Valid reports whether the step is positive and the horizon is not negative.
func (w Window) Valid() bool {
	return w.StepMinutes > 0 && w.WindowMinutes >= 0
}

// IsPrecipitationCode reports whether a condition code belongs to the rain or snow family.
func IsPrecipitationCode(code int) bool {
	prefix := code / 100
	if prefix == snowFamily {
		return true
	}
	for _, f := range rainFamilies {
		if prefix == f {
			return true
		}
	}
	return false
}

// FromCurrent signals precipitation happening now when the first listed
// condition is in a precipitation family.
func FromCurrent(current weather.CurrentConditions) (weather.Detection, bool) {
	code, ok := weather.LeadCode(current.Conditions)
	if !ok || !IsPrecipitationCode(code) {
		return weather.Detection{}, false
	}
	return precipitation(0), true
}

// FromForecast examines the first two forecast blocks and returns the first
// match with an ETA of 180 minutes per block.
func FromForecast(blocks []weather.ForecastBlock) (weather.Detection, bool) {
	for idx, block := range blocks {
		if idx >= ForecastLookahead {
			break
		}
		code, ok := weather.LeadCode(block.Conditions)
		if !ok {
			continue
		}
		if IsPrecipitationCode(code) {
			return precipitation(float64(ForecastStepMinutes * (idx + 1))), true
		}
	}
	return weather.Detection{}, false
}

// Imminent checks current conditions first and falls back to the forecast.
func Imminent(current weather.CurrentConditions, blocks []weather.ForecastBlock) (weather.Detection, bool) {
	if d, ok := FromCurrent(current); ok {
		return d, true
	}
	return FromForecast(blocks)
}

// FromSeries scans the "precip" (or else "prate") series for the first
// positive value. A positive value beyond the window ends the scan.
// Non-numeric samples are skipped.
func FromSeries(series weather.TimeSeries, w Window) (weather.Detection, bool) {
	values, ok := series[ParamPrecip]
	if !ok {
		values, ok = series[ParamPrate]
	}
	if !ok || len(values) == 0 {
		return weather.Detection{}, false
	}

	for idx, s := range values {
		if !s.Valid || !(s.Value > 0) {
			continue
		}
		eta := float64(idx * w.StepMinutes)
		if eta > float64(w.WindowMinutes) {
			return weather.Detection{}, false
		}
		return precipitation(math.Max(0, eta)), true
	}
	return weather.Detection{}, false
}

// Evaluate dispatches a provider snapshot to the matching detector.
func Evaluate(snap weather.Snapshot, w Window) (weather.Detection, bool) {
	switch snap.Kind {
	case weather.KindCategorical:
		var current weather.CurrentConditions
		if snap.Current != nil {
			current = *snap.Current
		}
		return Imminent(current, snap.Forecast)
	case weather.KindContinuous:
		return FromSeries(snap.Series, w)
	default:
		return weather.Detection{}, false
	}
}

func precipitation(eta float64) weather.Detection {
	return weather.Detection{
		Condition:  weather.ConditionPrecipitation,
		ETAMinutes: eta,
	}
}
