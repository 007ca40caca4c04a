package main

import (
	"testing"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name         string
		totalSeconds int64
		want         DecomposedDuration
	}{
		{"Zero", 0, DecomposedDuration{
			TotalSeconds: 0, Minutes: 0, Hours: 0, Days: 0,
			SecondsRemainder: 0, MinutesRemainder: 0, HoursRemainder: 0,
			HoursMinutes: "0h 00m", DaysHoursMinutes: "0d 00h 00m",
		}},
		{"Negative clamps to zero", -5, DecomposedDuration{
			TotalSeconds: 0, Minutes: 0, Hours: 0, Days: 0,
			SecondsRemainder: 0, MinutesRemainder: 0, HoursRemainder: 0,
			HoursMinutes: "0h 00m", DaysHoursMinutes: "0d 00h 00m",
		}},
		{"Last second before a minute", 59, DecomposedDuration{
			TotalSeconds: 59, Minutes: 0, Hours: 0, Days: 0,
			SecondsRemainder: 59, MinutesRemainder: 0, HoursRemainder: 0,
			HoursMinutes: "0h 00m", DaysHoursMinutes: "0d 00h 00m",
		}},
		{"Exactly one minute", 60, DecomposedDuration{
			TotalSeconds: 60, Minutes: 1, Hours: 0, Days: 0,
			SecondsRemainder: 0, MinutesRemainder: 1, HoursRemainder: 0,
			HoursMinutes: "0h 01m", DaysHoursMinutes: "0d 00h 01m",
		}},
		{"One hour one minute one second", 3661, DecomposedDuration{
			TotalSeconds: 3661, Minutes: 61, Hours: 1, Days: 0,
			SecondsRemainder: 1, MinutesRemainder: 1, HoursRemainder: 1,
			HoursMinutes: "1h 01m", DaysHoursMinutes: "0d 01h 01m",
		}},
		{"Last second before an hour", 3599, DecomposedDuration{
			TotalSeconds: 3599, Minutes: 59, Hours: 0, Days: 0,
			SecondsRemainder: 59, MinutesRemainder: 59, HoursRemainder: 0,
			HoursMinutes: "0h 59m", DaysHoursMinutes: "0d 00h 59m",
		}},
		{"Exactly one hour", 3600, DecomposedDuration{
			TotalSeconds: 3600, Minutes: 60, Hours: 1, Days: 0,
			SecondsRemainder: 0, MinutesRemainder: 0, HoursRemainder: 1,
			HoursMinutes: "1h 00m", DaysHoursMinutes: "0d 01h 00m",
		}},
		{"Composite padding", 11045, DecomposedDuration{
			TotalSeconds: 11045, Minutes: 184, Hours: 3, Days: 0,
			SecondsRemainder: 5, MinutesRemainder: 4, HoursRemainder: 3,
			HoursMinutes: "3h 04m", DaysHoursMinutes: "0d 03h 04m",
		}},
		{"Last second before a day", 86399, DecomposedDuration{
			TotalSeconds: 86399, Minutes: 1439, Hours: 23, Days: 0,
			SecondsRemainder: 59, MinutesRemainder: 59, HoursRemainder: 23,
			HoursMinutes: "23h 59m", DaysHoursMinutes: "0d 23h 59m",
		}},
		{"Exactly one day", 86400, DecomposedDuration{
			TotalSeconds: 86400, Minutes: 1440, Hours: 24, Days: 1,
			SecondsRemainder: 0, MinutesRemainder: 0, HoursRemainder: 0,
			HoursMinutes: "24h 00m", DaysHoursMinutes: "1d 00h 00m",
		}},
		{"Multi day", 190260, DecomposedDuration{
			TotalSeconds: 190260, Minutes: 3171, Hours: 52, Days: 2,
			SecondsRemainder: 0, MinutesRemainder: 51, HoursRemainder: 4,
			HoursMinutes: "52h 51m", DaysHoursMinutes: "2d 04h 51m",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decompose(tt.totalSeconds)
			if got != tt.want {
				t.Errorf("Decompose(%d) = %+v, want %+v", tt.totalSeconds, got, tt.want)
			}
		})
	}
}

func TestDecomposeFields(t *testing.T) {
	fields := Decompose(190260).Fields()

	want := map[string]string{
		"totalSeconds":     "190260",
		"minutes":          "3171",
		"hours":            "52",
		"days":             "2",
		"secondsRemainder": "0",
		"minutesRemainder": "51",
		"hoursRemainder":   "4",
		"hoursMinutes":     "52h 51m",
		"daysHoursMinutes": "2d 04h 51m",
	}

	if len(fields) != len(want) {
		t.Errorf("Fields() has %d entries, want %d", len(fields), len(want))
	}
	for key, wantValue := range want {
		if got, ok := fields[key]; !ok {
			t.Errorf("Fields() missing key %q", key)
		} else if got != wantValue {
			t.Errorf("Fields()[%q] = %q, want %q", key, got, wantValue)
		}
	}
}

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name         string
		totalSeconds int64
		want         string
	}{
		{"Zero", 0, TierUnderMinute},
		{"Last second of under minute", 59, TierUnderMinute},
		{"First second of under hour", 60, TierUnderHour},
		{"Last second of under hour", 3599, TierUnderHour},
		{"First second of under day", 3600, TierUnderDay},
		{"Last second of under day", 86399, TierUnderDay},
		{"First second of over day", 86400, TierOverDay},
		{"Deep into over day", 1000000, TierOverDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectTier(Decompose(tt.totalSeconds))
			if got != tt.want {
				t.Errorf("SelectTier(Decompose(%d)) = %q, want %q", tt.totalSeconds, got, tt.want)
			}
		})
	}
}

func TestTemplateForTier(t *testing.T) {
	settings := &Settings{
		TemplateUnderMinute: "a",
		TemplateUnderHour:   "b",
		TemplateUnderDay:    "c",
		TemplateOverDay:     "d",
	}

	tests := []struct {
		tier string
		want string
	}{
		{TierUnderMinute, "a"},
		{TierUnderHour, "b"},
		{TierUnderDay, "c"},
		{TierOverDay, "d"},
	}

	for _, tt := range tests {
		if got := settings.TemplateForTier(tt.tier); got != tt.want {
			t.Errorf("TemplateForTier(%q) = %q, want %q", tt.tier, got, tt.want)
		}
	}
}
