package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"supportdesk/internal/models"
	"supportdesk/internal/utils"
)

// AvailabilityService answers "is a human reachable right now, and if not,
// when next". It is pure over the slot set and the clock; it holds no state
// and is safe to call concurrently.
type AvailabilityService struct{}

func NewAvailabilityService() *AvailabilityService {
	return &AvailabilityService{}
}

// CheckAvailability scans every enabled slot. A slot matches when "now",
// converted into the slot's own timezone, falls inside its weekday window.
// The conversion is calendar-aware, so daylight-saving shifts are handled by
// the location database rather than a fixed offset.
//
// When nothing matches, the soonest upcoming window is computed per slot in
// that slot's own timezone and the smallest positive distance wins, ties
// going to the first-seen slot. A slot with a bad timezone or a malformed
// time is skipped, never fatal.
func (a *AvailabilityService) CheckAvailability(now time.Time, slots []models.AvailabilitySlot) models.Availability {
	ctx := context.Background()

	var best *models.NextSlot
	var bestDistance time.Duration

	for _, slot := range slots {
		if !slot.Enabled {
			continue
		}

		loc, err := time.LoadLocation(slot.Timezone)
		if err != nil {
			utils.LogWarn(ctx, "skipping slot with invalid timezone",
				slog.String("slot_id", slot.ID.String()),
				slog.String("timezone", slot.Timezone),
			)
			continue
		}

		startMin, err := parseClock(slot.StartTime)
		if err != nil {
			utils.LogWarn(ctx, "skipping slot with malformed start time",
				slog.String("slot_id", slot.ID.String()),
				slog.String("start_time", slot.StartTime),
			)
			continue
		}
		endMin, err := parseClock(slot.EndTime)
		if err != nil {
			utils.LogWarn(ctx, "skipping slot with malformed end time",
				slog.String("slot_id", slot.ID.String()),
				slog.String("end_time", slot.EndTime),
			)
			continue
		}

		local := now.In(loc)
		minuteOfDay := local.Hour()*60 + local.Minute()

		if int(local.Weekday()) == slot.DayOfWeek && minuteOfDay >= startMin && minuteOfDay < endMin {
			return models.Availability{Available: true}
		}

		distance := timeUntilSlot(local, loc, slot.DayOfWeek, startMin)
		if distance <= 0 {
			continue
		}
		if best == nil || distance < bestDistance {
			bestDistance = distance
			best = &models.NextSlot{
				Day:       slot.DayOfWeek,
				StartTime: slot.StartTime,
				Timezone:  slot.Timezone,
			}
		}
	}

	return models.Availability{Available: false, NextSlot: best}
}

// timeUntilSlot returns how long until the slot next opens, measured from
// "local" which is already expressed in the slot's timezone. The candidate
// date is built through the location so a DST transition between now and the
// opening cannot skew the wall-clock start.
func timeUntilSlot(local time.Time, loc *time.Location, dayOfWeek, startMin int) time.Duration {
	daysAhead := (dayOfWeek - int(local.Weekday()) + 7) % 7

	candidate := time.Date(local.Year(), local.Month(), local.Day()+daysAhead,
		startMin/60, startMin%60, 0, 0, loc)

	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+daysAhead+7,
			startMin/60, startMin%60, 0, 0, loc)
	}

	return candidate.Sub(local)
}

// parseClock converts a minute-precision "HH:MM" string into minutes of day.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return h*60 + m, nil
}
