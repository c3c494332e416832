package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/model"
	"github.com/hvolkman/stock-report/internal/state"
)

// Manual commands bypass the time-of-day gates but read and mutate the same
// persisted state under the same lock, so automatic ticks never duplicate a
// manually triggered action.

// ParseDay parses a manual-command day identifier. An empty value means the
// current day in the configured zone.
func (s *DailyScheduler) ParseDay(day string) (time.Time, error) {
	now := s.clock.Now().In(s.cfg.Loc)
	if day == "" {
		return now, nil
	}
	t, err := time.ParseInLocation(DayFormat, day, s.cfg.Loc)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return t, nil
}

// ProcessDay builds the workbook for the given day immediately. When the day
// is the one the automatic tick would target (the previous calendar day), the
// per-day guard is marked so the tick does not process again today; backfills
// for other days leave today's guard alone.
func (s *DailyScheduler) ProcessDay(ctx context.Context, day time.Time) (string, error) {
	var path string
	err := s.store.With(ctx, func(st *state.State) error {
		now := s.clock.Now().In(s.cfg.Loc)
		if err := s.runProcess(ctx, st, day, model.TriggerManual); err != nil {
			return err
		}
		path = st.LastWorkbookPath
		if sameDay(day, now.AddDate(0, 0, -1)) {
			st.LastProcessedDate = now.Format(state.DateFormat)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// SendDay emails the workbook for the given day immediately.
func (s *DailyScheduler) SendDay(ctx context.Context, day time.Time) error {
	return s.store.With(ctx, func(st *state.State) error {
		now := s.clock.Now().In(s.cfg.Loc)

		workbook := s.processor.WorkbookPath(day)
		if _, err := os.Stat(workbook); err != nil {
			// Fall back to the most recent workbook when the exact
			// day's file is gone but state still points at one.
			if !sameDay(day, now.AddDate(0, 0, -1)) || st.LastWorkbookPath == "" || !fileExists(st.LastWorkbookPath) {
				return fmt.Errorf("%w for day %s", ErrNoWorkbook, day.Format(state.DateFormat))
			}
			workbook = st.LastWorkbookPath
		}

		if err := s.runSend(ctx, st, now, workbook, model.TriggerManual); err != nil {
			return err
		}
		if sameDay(day, now.AddDate(0, 0, -1)) || sameDay(day, now) {
			st.LastSentDate = now.Format(state.DateFormat)
		}
		return nil
	})
}

// ProcessAndSend runs both actions back-to-back for the given day under a
// single lock acquisition.
func (s *DailyScheduler) ProcessAndSend(ctx context.Context, day time.Time) error {
	return s.store.With(ctx, func(st *state.State) error {
		now := s.clock.Now().In(s.cfg.Loc)
		if err := s.runProcess(ctx, st, day, model.TriggerManual); err != nil {
			return err
		}
		if sameDay(day, now.AddDate(0, 0, -1)) {
			st.LastProcessedDate = now.Format(state.DateFormat)
		}
		if err := s.runSend(ctx, st, now, st.LastWorkbookPath, model.TriggerManual); err != nil {
			return err
		}
		st.LastSentDate = now.Format(state.DateFormat)
		return nil
	})
}

// CaptureNow takes an immediate snapshot. It records history but does not
// consume any scheduled capture slot.
func (s *DailyScheduler) CaptureNow(ctx context.Context) (string, error) {
	if !s.cfg.IncludeImages || s.capturer == nil {
		return "", ErrCaptureDisabled
	}
	now := s.clock.Now().In(s.cfg.Loc)
	started := time.Now()
	path, err := s.capturer.Capture(ctx, now)
	s.record(ctx, model.ActionCapture, now.Format(state.DateFormat), model.TriggerManual, started, path, err)
	if err != nil {
		return "", err
	}
	s.logger.Info("Captured image on demand", zap.String("path", path))
	return path, nil
}

// TestEmail sends a short verification email.
func (s *DailyScheduler) TestEmail(ctx context.Context) error {
	now := s.clock.Now().In(s.cfg.Loc)
	started := time.Now()
	err := s.sender.SendTest(ctx, now)
	s.record(ctx, model.ActionTestEmail, now.Format(state.DateFormat), model.TriggerManual, started, "", err)
	return err
}

// Status reports the persisted state and current day type.
func (s *DailyScheduler) Status(ctx context.Context) (*model.StatusInfo, error) {
	var info model.StatusInfo
	err := s.store.With(ctx, func(st *state.State) error {
		now := s.clock.Now().In(s.cfg.Loc)
		info = model.StatusInfo{
			Location:          s.cfg.Location,
			LastProcessedDate: st.LastProcessedDate,
			LastSentDate:      st.LastSentDate,
			LastWorkbookPath:  st.LastWorkbookPath,
			TotalReportsSent:  st.TotalReportsSent,
			ReportStatus:      st.ReportStatus,
			WorkbookStatus:    st.WorkbookStatus,
			IncludeImages:     s.cfg.IncludeImages,
			DayType:           dayTypeOf(now),
			PID:               os.Getpid(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayTypeOf(t time.Time) model.DayType {
	if isWeekday(t) {
		return model.DayTypeWeekday
	}
	return model.DayTypeWeekend
}
