package timezone

import (
	"chalet/config"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

var appLocation = load(config.Get().App.Timezone)

// load resolves an IANA zone name. Unknown or empty names fall back to UTC.
func load(name string) *time.Location {
	if name == "" {
		log.Warn().Msg("No timezone configured, using UTC")

		return time.UTC
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Error().Err(err).Str("timezone", name).Msg("Unknown timezone, using UTC")

		return time.UTC
	}

	return loc
}

// Now is the wall clock in the application timezone. Record timestamps use it.
func Now() time.Time {
	return time.Now().In(appLocation)
}

// Format renders a timestamp in the application timezone.
func Format(t time.Time, layout string) string {
	return t.In(appLocation).Format(layout)
}

// ParseDay parses a YYYY-MM-DD calendar day. Calendar days carry no zone, so the
// result is midnight UTC and day arithmetic never crosses a DST boundary.
func ParseDay(value string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", value, err)
	}

	return day, nil
}

func FormatDay(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}

// Nights returns the number of nights between two calendar days, rounding partial days up.
func Nights(checkIn, checkOut time.Time) int {
	const hoursPerDay = 24

	return int(math.Ceil(checkOut.Sub(checkIn).Hours() / hoursPerDay))
}
