// Package prompt turns a detection into the text used to render a notice.
package prompt

import (
	"fmt"

	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

// Style hints appended to each description.
const (
	StylePrecipitation = "dark stormy sky, dramatic clouds, approaching rain, city skyline"
	StyleCalm          = "calm city skyline, partly cloudy sky, soft lighting"
	StyleGeneric       = "weather scene"
)

// Build returns a single sentence describing the condition followed by a
// "Visualize:" style hint.
func Build(city string, condition weather.Condition, etaMinutes float64) string {
	var base, style string
	switch condition {
	case weather.ConditionPrecipitation:
		base = fmt.Sprintf("Weather alert for %s: precipitation expected in ~%d minutes.", city, int(etaMinutes))
		style = StylePrecipitation
	case weather.ConditionNone:
		base = fmt.Sprintf("Weather snapshot for %s: no immediate precipitation detected.", city)
		style = StyleCalm
	default:
		base = fmt.Sprintf("Weather update for %s: %s in ~%d minutes.", city, condition, int(etaMinutes))
		style = StyleGeneric
	}
	return fmt.Sprintf("%s Visualize: %s.", base, style)
}
