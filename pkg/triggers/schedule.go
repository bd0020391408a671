package triggers

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
	"github.com/robfig/cron/v3"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

const defaultTimeOfDay = "09:00"

// DeriveCronExpression translates a time trigger into a standard 5-field
// cron expression. Daily and monthly use the time of day (monthly fires on
// the first of the month); weekly adds the configured days of week; custom
// uses the expression verbatim.
func DeriveCronExpression(t *models.TimeTrigger) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: time trigger is nil", ErrInvalidSchedule)
	}

	if t.Frequency == models.FrequencyCustom {
		if strings.TrimSpace(t.CronExpression) == "" {
			return "", fmt.Errorf("%w: custom frequency requires a cron expression", ErrInvalidSchedule)
		}

		return t.CronExpression, nil
	}

	hour, minute, err := parseTimeOfDay(t.TimeOfDay)
	if err != nil {
		return "", err
	}

	switch t.Frequency {
	case models.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case models.FrequencyWeekly:
		days := t.DaysOfWeek
		if len(days) == 0 {
			return "", fmt.Errorf("%w: weekly frequency requires days of week", ErrInvalidSchedule)
		}

		sorted := make([]int, len(days))
		copy(sorted, days)
		sort.Ints(sorted)

		fields := make([]string, len(sorted))
		for i, d := range sorted {
			if d < 0 || d > 6 {
				return "", fmt.Errorf("%w: day of week %d out of range", ErrInvalidSchedule, d)
			}

			fields[i] = strconv.Itoa(d)
		}

		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(fields, ",")), nil
	case models.FrequencyMonthly:
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, t.Frequency)
	}
}

// ValidateSchedule validates a time trigger and returns the derived cron
// expression and the location it runs in. Malformed expressions and unknown
// timezones are rejected here, before anything is registered.
func ValidateSchedule(t *models.TimeTrigger) (string, *time.Location, error) {
	expr, err := DeriveCronExpression(t)
	if err != nil {
		return "", nil, err
	}

	loc, err := location(t)
	if err != nil {
		return "", nil, err
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	return expr, loc, nil
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	if value == "" {
		value = defaultTimeOfDay
	}

	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad time of day %q", ErrInvalidSchedule, value)
	}

	return parsed.Hour(), parsed.Minute(), nil
}

func location(t *models.TimeTrigger) (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, t.Timezone)
	}

	return loc, nil
}
