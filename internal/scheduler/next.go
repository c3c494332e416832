package scheduler

import (
	"time"

	"github.com/hvolkman/stock-report/internal/model"
)

// NextProcessTime returns the next moment the process gate opens after now.
func (s *DailyScheduler) NextProcessTime(now time.Time) time.Time {
	return nextDaily(now.In(s.cfg.Loc), s.processMin)
}

// NextSendTime returns the next moment the send gate opens after now.
func (s *DailyScheduler) NextSendTime(now time.Time) time.Time {
	return nextDaily(now.In(s.cfg.Loc), s.sendMin)
}

// NextCaptureTime returns the next capture slot after now, honoring the
// weekday/weekend split, or the zero time when imaging is disabled.
func (s *DailyScheduler) NextCaptureTime(now time.Time) time.Time {
	if !s.cfg.IncludeImages {
		return time.Time{}
	}
	now = now.In(s.cfg.Loc)

	// The first slot within the next week strictly after now. Slots are
	// sorted, so the first hit on a given day is the earliest.
	for offset := 0; offset < 8; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, slot := range s.slotsFor(day) {
			candidate := atMinutes(day, slot.minutes)
			if candidate.After(now) {
				return candidate
			}
		}
	}
	return time.Time{}
}

// Schedule returns the configured times and the next occurrence of each
// action, expressed in the configured time zone.
func (s *DailyScheduler) Schedule() *model.ScheduleInfo {
	now := s.clock.Now().In(s.cfg.Loc)

	info := &model.ScheduleInfo{
		ProcessTime: s.cfg.ProcessTime,
		SendTime:    s.cfg.SendTime,
		Timezone:    s.cfg.Loc.String(),
		NextProcess: s.NextProcessTime(now),
		NextSend:    s.NextSendTime(now),
		DayType:     dayTypeOf(now),
	}

	if s.cfg.IncludeImages {
		info.CaptureTimesWeekday = s.cfg.CaptureTimesWeekday
		info.CaptureTimesWeekend = s.cfg.CaptureTimesWeekend
		if isWeekday(now) {
			info.CurrentCaptureTimes = s.cfg.CaptureTimesWeekday
		} else {
			info.CurrentCaptureTimes = s.cfg.CaptureTimesWeekend
		}
		if next := s.NextCaptureTime(now); !next.IsZero() {
			info.NextCapture = &next
		}
	}

	return info
}

// nextDaily returns today's occurrence of the given minutes-of-day if still
// ahead, otherwise tomorrow's.
func nextDaily(now time.Time, minutes int) time.Time {
	candidate := atMinutes(now, minutes)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func atMinutes(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}
