// Package scheduler implements the reminder dispatch job: deciding which
// users are due a digest, and running one dispatch batch over all users.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"lysje/internal/types"
)

// EligibilityWindow is the tolerance around a user's preferred time within
// which a trigger counts as on time. An hourly trigger therefore catches every
// preferred minute once per day.
const EligibilityWindow = 60 * time.Minute

var (
	// ErrNotConfigured is returned for users missing any of time, days or
	// timezone.
	ErrNotConfigured = errors.New("notification preferences not configured")
	// ErrInvalidPreferences wraps every parse failure of stored preferences.
	ErrInvalidPreferences = errors.New("invalid notification preferences")
)

// Schedule is the parsed, configured form of a user's notification
// preferences.
type Schedule struct {
	Hour     int
	Minute   int
	Days     WeekdaySet
	Location *time.Location
}

// WeekdaySet is a bitset of time.Weekday values.
type WeekdaySet uint8

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Add returns the set with d included.
func (s WeekdaySet) Add(d time.Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

// Weekdays returns the members of the set in Sunday..Saturday order.
func (s WeekdaySet) Weekdays() []int {
	var out []int
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, int(d))
		}
	}
	return out
}

// ParseSchedule validates raw preferences. It returns ErrNotConfigured when
// any field is absent and an error wrapping ErrInvalidPreferences when a
// present field cannot be parsed.
func ParseSchedule(prefs types.NotificationPreferences) (Schedule, error) {
	if !prefs.Configured() {
		return Schedule{}, ErrNotConfigured
	}

	hour, minute, err := parseTimeOfDay(strings.TrimSpace(*prefs.Time))
	if err != nil {
		return Schedule{}, invalidPrefs(types.ErrCodeValidationInvalidTime, "notification_time", *prefs.Time, err)
	}

	days, err := parseWeekdays(*prefs.Days)
	if err != nil {
		return Schedule{}, invalidPrefs(types.ErrCodeValidationInvalidDays, "notification_days", *prefs.Days, err)
	}

	tz := strings.TrimSpace(*prefs.Timezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Schedule{}, invalidPrefs(types.ErrCodeValidationInvalidTimezone, "timezone", tz, err)
	}

	return Schedule{Hour: hour, Minute: minute, Days: days, Location: loc}, nil
}

func invalidPrefs(code types.ErrorCode, field, value string, err error) error {
	appErr := types.NewAppError(code, "invalid "+field, err).WithDetails(map[string]any{field: value})
	return fmt.Errorf("%w: %w", ErrInvalidPreferences, appErr)
}

// ShouldNotify reports whether now falls on one of the schedule's weekdays
// (in its location) and within EligibilityWindow of the preferred time.
//
// The distance is measured on a linear same-day clock: a preference of 00:30
// is not matched by 23:50 the previous evening.
func (s Schedule) ShouldNotify(now time.Time) bool {
	local := now.In(s.Location)
	if !s.Days.Has(local.Weekday()) {
		return false
	}
	current := local.Hour()*60 + local.Minute()
	preferred := s.Hour*60 + s.Minute
	diff := current - preferred
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Minute <= EligibilityWindow
}

// ShouldNotify evaluates raw preferences at now. Unconfigured or malformed
// preferences yield false; malformed ones are logged.
func ShouldNotify(prefs types.NotificationPreferences, now time.Time, logger *slog.Logger) bool {
	sched, err := ParseSchedule(prefs)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("ignoring malformed notification preferences", "error", err)
		}
		return false
	}
	return sched.ShouldNotify(now)
}

// parseTimeOfDay parses "H:MM" or "HH:MM" (24h) into hour and minute.
func parseTimeOfDay(s string) (int, int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || !isDigits(h) {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || !isDigits(m) {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	if hour > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range [0,59]", minute)
	}
	return hour, minute, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseWeekdays parses a comma-separated list of weekday numbers, 0=Sunday.
// Blank entries are ignored; the resulting set must not be empty.
func parseWeekdays(s string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return 0, fmt.Errorf("weekday %q out of range [0,6]", part)
		}
		set = set.Add(time.Weekday(d))
	}
	if set == 0 {
		return 0, fmt.Errorf("no weekdays in %q", s)
	}
	return set, nil
}
