package recurring

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jimdaga/reelsip/internal/models"
)

// ToleranceWindow is the maximum distance between a rule's schedule time and
// the evaluation time for the rule to be due. It matches the trigger cadence.
const ToleranceWindow = 30 * time.Minute

// Weekday codes indexed by time.Weekday.
var weekdayCodes = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// Verdict is the outcome of evaluating one rule against the current time.
type Verdict int

const (
	VerdictDue Verdict = iota
	VerdictInactive
	VerdictWrongDay
	VerdictOutsideWindow
	VerdictAlreadyRan
)

func (v Verdict) String() string {
	switch v {
	case VerdictDue:
		return "due"
	case VerdictInactive:
		return "inactive"
	case VerdictWrongDay:
		return "wrong_day"
	case VerdictOutsideWindow:
		return "outside_window"
	case VerdictAlreadyRan:
		return "already_ran_today"
	}
	return "unknown"
}

// Select returns the rules that must fire at now. Rules with a malformed
// schedule are left out. The input slice is not modified.
func Select(rules []models.RecurringRule, now time.Time) []models.RecurringRule {
	due := make([]models.RecurringRule, 0, len(rules))
	for _, rule := range rules {
		verdict, err := Evaluate(rule, now)
		if err != nil || verdict != VerdictDue {
			continue
		}
		due = append(due, rule)
	}
	return due
}

// Evaluate decides whether rule is due at now. Checks run in order and stop
// at the first one that rejects the rule. All clock arithmetic happens in
// now's location.
func Evaluate(rule models.RecurringRule, now time.Time) (Verdict, error) {
	if !rule.Active {
		return VerdictInactive, nil
	}

	days, err := ParseSchedule(rule.Schedule)
	if err != nil {
		return VerdictWrongDay, err
	}
	if _, ok := days[WeekdayCode(now)]; !ok {
		return VerdictWrongDay, nil
	}

	scheduled, err := ParseScheduleTime(rule.ScheduleTime)
	if err != nil {
		return VerdictOutsideWindow, err
	}
	current := now.Hour()*60 + now.Minute()
	diff := current - scheduled
	if diff < 0 {
		diff = -diff
	}
	if time.Duration(diff)*time.Minute > ToleranceWindow {
		return VerdictOutsideWindow, nil
	}

	if rule.LastRunAt != nil && !rule.LastRunAt.Before(StartOfDay(now)) {
		return VerdictAlreadyRan, nil
	}

	return VerdictDue, nil
}

// WeekdayCode returns the three-letter code of t's weekday, e.g. "MON".
func WeekdayCode(t time.Time) string {
	return weekdayCodes[t.Weekday()]
}

// StartOfDay returns local midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseSchedule validates weekday codes and returns them as a set.
func ParseSchedule(codes []string) (map[string]struct{}, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: no weekdays", ErrMalformedSchedule)
	}
	days := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		normalized := strings.ToUpper(strings.TrimSpace(code))
		if !IsWeekdayCode(normalized) {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrMalformedSchedule, code)
		}
		days[normalized] = struct{}{}
	}
	return days, nil
}

// IsWeekdayCode reports whether code is one of SUN..SAT.
func IsWeekdayCode(code string) bool {
	for _, c := range weekdayCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ParseScheduleTime parses a 24-hour "HH:MM" value into minutes after midnight.
func ParseScheduleTime(value string) (int, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("%w: schedule time %q is not HH:MM", ErrMalformedSchedule, value)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrMalformedSchedule, value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || len(minutePart) != 2 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrMalformedSchedule, value)
	}
	return hour*60 + minute, nil
}
