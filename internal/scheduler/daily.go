package scheduler

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/clock"
	"github.com/hvolkman/stock-report/internal/config"
	"github.com/hvolkman/stock-report/internal/model"
	"github.com/hvolkman/stock-report/internal/state"
	"github.com/hvolkman/stock-report/internal/storage"
)

// Config holds the schedule settings the daily loop evaluates against.
type Config struct {
	Location string
	// ProcessTime and SendTime are "HH:MM" times of day in Loc.
	ProcessTime string
	SendTime    string
	Loc         *time.Location

	IncludeImages       bool
	CaptureTimesWeekday []string
	CaptureTimesWeekend []string

	// TickInterval defaults to one minute.
	TickInterval time.Duration
}

// captureSlot is a parsed capture time.
type captureSlot struct {
	label   string
	minutes int
}

// DailyScheduler owns the persisted schedule state and the recurring check
// loop. On each tick it compares the current local time against the
// configured action times and the persisted last-action dates, and fires each
// action at most once per calendar day (per slot for captures).
type DailyScheduler struct {
	logger *zap.Logger
	cfg    Config

	processMin     int
	sendMin        int
	captureWeekday []captureSlot
	captureWeekend []captureSlot

	clock     clock.Clock
	store     *state.Store
	processor Processor
	sender    Sender
	capturer  Capturer
	history   storage.ActionHistoryStore

	cron *cron.Cron
}

// cronLogger adapts zap.Logger to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// New creates a daily scheduler. history may be nil when run recording is not
// wanted (tests).
func New(logger *zap.Logger, cfg Config, store *state.Store, processor Processor, sender Sender, capturer Capturer, history storage.ActionHistoryStore, clk clock.Clock) (*DailyScheduler, error) {
	if cfg.Loc == nil {
		return nil, fmt.Errorf("scheduler requires a time zone")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}

	sendMin, err := config.ParseTimeOfDay(cfg.SendTime)
	if err != nil {
		return nil, fmt.Errorf("invalid send time %q: %w", cfg.SendTime, err)
	}
	processMin, err := config.ParseTimeOfDay(cfg.ProcessTime)
	if err != nil {
		return nil, fmt.Errorf("invalid process time %q: %w", cfg.ProcessTime, err)
	}

	s := &DailyScheduler{
		logger:     logger.Named("scheduler"),
		cfg:        cfg,
		processMin: processMin,
		sendMin:    sendMin,
		clock:      clk,
		store:      store,
		processor:  processor,
		sender:     sender,
		capturer:   capturer,
		history:    history,
	}

	if cfg.IncludeImages {
		if s.captureWeekday, err = parseSlots(cfg.CaptureTimesWeekday); err != nil {
			return nil, fmt.Errorf("invalid weekday capture times: %w", err)
		}
		if s.captureWeekend, err = parseSlots(cfg.CaptureTimesWeekend); err != nil {
			return nil, fmt.Errorf("invalid weekend capture times: %w", err)
		}
	}

	return s, nil
}

func parseSlots(times []string) ([]captureSlot, error) {
	slots := make([]captureSlot, 0, len(times))
	seen := make(map[string]bool)
	for _, t := range times {
		if seen[t] {
			continue
		}
		seen[t] = true
		m, err := config.ParseTimeOfDay(t)
		if err != nil {
			return nil, err
		}
		slots = append(slots, captureSlot{label: t, minutes: m})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].minutes < slots[j].minutes })
	return slots, nil
}

// Start begins the periodic evaluation loop.
func (s *DailyScheduler) Start(ctx context.Context) error {
	cl := &cronLogger{logger: s.logger.Named("cron")}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))

	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to add tick job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Started daily scheduler",
		zap.String("process_time", s.cfg.ProcessTime),
		zap.String("send_time", s.cfg.SendTime),
		zap.String("timezone", s.cfg.Loc.String()),
		zap.Bool("include_images", s.cfg.IncludeImages),
		zap.Duration("tick_interval", s.cfg.TickInterval))
	return nil
}

// Stop stops the tick loop and waits for a running tick to finish.
func (s *DailyScheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Stopped daily scheduler")
}

// Tick runs one evaluation against the current time and persisted state. The
// state lock is held for the read-decide-act-persist cycle only; when another
// process instance holds it the tick is a benign no-op.
func (s *DailyScheduler) Tick(ctx context.Context) {
	now := s.clock.Now().In(s.cfg.Loc)

	locked, err := s.store.TryLock()
	if err != nil {
		s.logger.Error("Failed to acquire state lock", zap.Error(err))
		return
	}
	if !locked {
		s.logger.Debug("State lock held by another instance, skipping tick")
		return
	}
	defer s.store.Unlock()

	st, err := s.store.Load()
	if err != nil {
		s.logger.Error("Failed to load state", zap.Error(err))
		return
	}

	s.evaluate(ctx, st, now)
}

// evaluate applies the per-tick contract. Action failures are logged and left
// unmarked so the next tick retries; a late tick past both gates fires
// process and send back-to-back.
func (s *DailyScheduler) evaluate(ctx context.Context, st *state.State, now time.Time) {
	today := now.Format(state.DateFormat)
	nowMin := minutesOfDay(now)

	st.PruneCaptures(now.Add(-captureRetention).Format(state.DateFormat))

	if nowMin >= s.processMin && st.LastProcessedDate != today {
		target := now.AddDate(0, 0, -1)
		if err := s.runProcess(ctx, st, target, model.TriggerScheduled); err != nil {
			s.logger.Error("Process action failed, will retry next tick",
				zap.String("target_day", target.Format(state.DateFormat)),
				zap.Error(err))
		} else {
			st.LastProcessedDate = today
		}
		s.persist(st)
	}

	if nowMin >= s.sendMin && st.LastSentDate != today {
		switch {
		case st.LastWorkbookPath == "" || !fileExists(st.LastWorkbookPath):
			s.logger.Warn("Send due but no processed workbook available, will retry next tick")
		default:
			if err := s.runSend(ctx, st, now, st.LastWorkbookPath, model.TriggerScheduled); err != nil {
				s.logger.Error("Send action failed, will retry next tick", zap.Error(err))
			} else {
				st.LastSentDate = today
			}
			s.persist(st)
		}
	}

	if s.cfg.IncludeImages && s.capturer != nil {
		for _, slot := range s.slotsFor(now) {
			if nowMin < slot.minutes || st.Captured(today, slot.label) {
				continue
			}
			if err := s.runCapture(ctx, now, slot.label, model.TriggerScheduled); err != nil {
				s.logger.Error("Capture action failed, will retry next tick",
					zap.String("slot", slot.label),
					zap.Error(err))
				continue
			}
			st.RecordCapture(today, slot.label)
			s.persist(st)
		}
	}
}

func (s *DailyScheduler) runProcess(ctx context.Context, st *state.State, target time.Time, trigger model.Trigger) error {
	started := time.Now()
	path, err := s.processor.Process(ctx, target)
	s.record(ctx, model.ActionProcess, target.Format(state.DateFormat), trigger, started, path, err)

	if err != nil {
		st.WorkbookStatus = model.WorkbookError
		return err
	}

	st.LastWorkbookPath = path
	st.WorkbookStatus = model.WorkbookProcessed
	s.logger.Info("Processed report workbook",
		zap.String("target_day", target.Format(state.DateFormat)),
		zap.String("path", path))
	return nil
}

func (s *DailyScheduler) runSend(ctx context.Context, st *state.State, now time.Time, workbookPath string, trigger model.Trigger) error {
	started := time.Now()
	err := s.sender.Send(ctx, now, workbookPath)
	s.record(ctx, model.ActionSend, now.Format(state.DateFormat), trigger, started, workbookPath, err)

	if err != nil {
		st.ReportStatus = model.ReportError
		return err
	}

	st.TotalReportsSent++
	st.ReportStatus = model.ReportSent
	s.logger.Info("Sent report email",
		zap.String("workbook", workbookPath),
		zap.Int("total_sent", st.TotalReportsSent))
	return nil
}

func (s *DailyScheduler) runCapture(ctx context.Context, now time.Time, label string, trigger model.Trigger) error {
	started := time.Now()
	path, err := s.capturer.Capture(ctx, now)
	s.record(ctx, model.ActionCapture, now.Format(state.DateFormat), trigger, started, path, err)
	if err != nil {
		return err
	}
	s.logger.Info("Captured image", zap.String("slot", label), zap.String("path", path))
	return nil
}

// persist writes state after an action. Write errors are logged only; state
// stays at the last successfully written version, which can at worst repeat
// one action after the next successful run.
func (s *DailyScheduler) persist(st *state.State) {
	if err := s.store.Save(st); err != nil {
		s.logger.Error("Failed to persist state", zap.Error(err))
	}
}

func (s *DailyScheduler) record(ctx context.Context, kind model.ActionKind, day string, trigger model.Trigger, started time.Time, detail string, actionErr error) {
	if s.history == nil {
		return
	}
	run := storage.NewActionRun(kind, day, trigger, started, detail, actionErr)
	if err := s.history.Store(ctx, run); err != nil {
		s.logger.Error("Failed to record action history",
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// slotsFor returns the capture slots for the day type of t.
func (s *DailyScheduler) slotsFor(t time.Time) []captureSlot {
	if isWeekday(t) {
		return s.captureWeekday
	}
	return s.captureWeekend
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
