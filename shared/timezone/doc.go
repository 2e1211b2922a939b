// Package timezone keeps wall-clock timestamps in the zone named by APP_TIMEZONE (UTC when
// unset) and handles stay dates, which carry no zone at all.
//
//	now := timezone.Now()
//	checkIn, err := timezone.ParseDay("2025-12-20")
//	nights := timezone.Nights(checkIn, checkOut)
//
// The location is loaded once when the package is imported. Use IANA names such as
// "Europe/Zurich".
package timezone
