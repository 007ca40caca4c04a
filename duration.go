package main

import (
	"fmt"
	"strconv"
)

// DecomposedDuration breaks an elapsed duration into displayable units.
// All values are derived from TotalSeconds by floor division, so the
// struct is immutable once built.
type DecomposedDuration struct {
	TotalSeconds     int64  `json:"total_seconds"`
	Minutes          int64  `json:"minutes"`
	Hours            int64  `json:"hours"`
	Days             int64  `json:"days"`
	SecondsRemainder int64  `json:"seconds_remainder"`
	MinutesRemainder int64  `json:"minutes_remainder"`
	HoursRemainder   int64  `json:"hours_remainder"`
	HoursMinutes     string `json:"hours_minutes"`
	DaysHoursMinutes string `json:"days_hours_minutes"`
}

// Decompose converts an elapsed second count into all display units.
// Negative input is clamped to zero so the function is total.
func Decompose(totalSeconds int64) DecomposedDuration {
	if totalSeconds < 0 {
		totalSeconds = 0
	}

	minutes := totalSeconds / 60
	hours := minutes / 60
	days := hours / 24

	d := DecomposedDuration{
		TotalSeconds:     totalSeconds,
		Minutes:          minutes,
		Hours:            hours,
		Days:             days,
		SecondsRemainder: totalSeconds % 60,
		MinutesRemainder: minutes % 60,
		HoursRemainder:   hours % 24,
	}

	// Leading unit unpadded, trailing remainders zero-padded to two digits
	d.HoursMinutes = fmt.Sprintf("%dh %02dm", hours, d.MinutesRemainder)
	d.DaysHoursMinutes = fmt.Sprintf("%dd %02dh %02dm", days, d.HoursRemainder, d.MinutesRemainder)

	return d
}

// Fields returns the placeholder map for template rendering. Every field is
// always present regardless of tier, so any template may mix units freely.
func (d DecomposedDuration) Fields() map[string]string {
	return map[string]string{
		"totalSeconds":     strconv.FormatInt(d.TotalSeconds, 10),
		"minutes":          strconv.FormatInt(d.Minutes, 10),
		"hours":            strconv.FormatInt(d.Hours, 10),
		"days":             strconv.FormatInt(d.Days, 10),
		"secondsRemainder": strconv.FormatInt(d.SecondsRemainder, 10),
		"minutesRemainder": strconv.FormatInt(d.MinutesRemainder, 10),
		"hoursRemainder":   strconv.FormatInt(d.HoursRemainder, 10),
		"hoursMinutes":     d.HoursMinutes,
		"daysHoursMinutes": d.DaysHoursMinutes,
	}
}

// SelectTier picks the message tier for a decomposed duration. The rules are
// evaluated in order and are exhaustive over non-negative input.
func SelectTier(d DecomposedDuration) string {
	switch {
	case d.TotalSeconds < 60:
		return TierUnderMinute
	case d.Minutes < 60:
		return TierUnderHour
	case d.Hours < 24:
		return TierUnderDay
	default:
		return TierOverDay
	}
}

// TemplateForTier returns the configured template string for a tier.
func (s *Settings) TemplateForTier(tier string) string {
	switch tier {
	case TierUnderMinute:
		return s.TemplateUnderMinute
	case TierUnderHour:
		return s.TemplateUnderHour
	case TierUnderDay:
		return s.TemplateUnderDay
	default:
		return s.TemplateOverDay
	}
}
