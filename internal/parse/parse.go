// Package parse holds the free-text extraction helpers the dispatcher
// uses to normalize model-supplied arguments: relative dates, clock
// times, phone numbers and service names. All functions are pure.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"apptchat/internal/models"
)

var (
	isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	clockRe   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	hourRe    = regexp.MustCompile(`(?i)(?:at\s+)?(\d{1,2})\s*(am|pm|h|o'clock)`)
	phoneRe   = regexp.MustCompile(`\+?\d{8,15}`)
)

// Date resolves a date expression to "YYYY-MM-DD". Relative words are
// resolved against now; an embedded ISO date wins over nothing.
func Date(text string, now time.Time) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch {
	case lower == "today" || strings.Contains(lower, "өнөөдөр"):
		return now.Format(models.DateLayout), true
	case lower == "tomorrow" || strings.Contains(lower, "маргааш"):
		return now.AddDate(0, 0, 1).Format(models.DateLayout), true
	case lower == "day after tomorrow" || strings.Contains(lower, "нөгөөдөр"):
		return now.AddDate(0, 0, 2).Format(models.DateLayout), true
	}

	if m := isoDateRe.FindString(text); m != "" {
		if _, err := time.Parse(models.DateLayout, m); err == nil {
			return m, true
		}
	}

	return "", false
}

// Time extracts a time of day as "HH:MM".
func Time(text string) (string, bool) {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		var hour, minute int
		fmt.Sscanf(m[1], "%d", &hour)
		fmt.Sscanf(m[2], "%d", &minute)
		if hour <= 23 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", hour, minute), true
		}
		return "", false
	}

	if m := hourRe.FindStringSubmatch(text); m != nil {
		var hour int
		fmt.Sscanf(m[1], "%d", &hour)
		if strings.EqualFold(m[2], "pm") && hour < 12 {
			hour += 12
		}
		if hour <= 23 {
			return fmt.Sprintf("%02d:00", hour), true
		}
	}

	return "", false
}

// Phone extracts the first phone-number-looking digit run.
func Phone(text string) (string, bool) {
	m := phoneRe.FindString(text)
	return m, m != ""
}

// Service matches a catalog service mentioned in the text.
func Service(text string, services []models.Service) (string, bool) {
	lower := strings.ToLower(text)
	for _, svc := range services {
		if strings.Contains(lower, strings.ToLower(svc.Name)) {
			return svc.Name, true
		}
		if svc.Label != "" && strings.Contains(lower, strings.ToLower(svc.Label)) {
			return svc.Name, true
		}
	}
	return "", false
}

// MinutesOfDay converts "HH:MM" to minutes since midnight.
func MinutesOfDay(clock string) (int, error) {
	t, err := time.Parse(models.TimeLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ClockFromMinutes converts minutes since midnight to "HH:MM".
func ClockFromMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
