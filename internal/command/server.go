package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/model"
	"github.com/hvolkman/stock-report/internal/monitor"
)

// commandTimeout bounds a single manual command; processing a day can take a
// while when the export window is large.
const commandTimeout = 5 * time.Minute

// ReportScheduler is the scheduler surface the command server drives. Manual
// commands bypass the time gates but share the scheduler's persisted state.
type ReportScheduler interface {
	ParseDay(day string) (time.Time, error)
	ProcessDay(ctx context.Context, day time.Time) (string, error)
	SendDay(ctx context.Context, day time.Time) error
	ProcessAndSend(ctx context.Context, day time.Time) error
	CaptureNow(ctx context.Context) (string, error)
	TestEmail(ctx context.Context) error
	Schedule() *model.ScheduleInfo
	Status(ctx context.Context) (*model.StatusInfo, error)
}

// Request is the JSON body of a manual command. Day is optional "YYYYMMDD".
type Request struct {
	Day string `json:"day,omitempty"`
}

// Reply is the JSON body of a command response.
type Reply struct {
	Status   string              `json:"status"`
	Message  string              `json:"message,omitempty"`
	Path     string              `json:"path,omitempty"`
	Schedule *model.ScheduleInfo `json:"schedule,omitempty"`
	Info     *model.StatusInfo   `json:"info,omitempty"`
}

// Server exposes the manual command surface as NATS request/reply subjects.
type Server struct {
	logger    *zap.Logger
	nc        *nats.Conn
	scheduler ReportScheduler
	resources *monitor.Collector
	subs      []*nats.Subscription
}

// NewServer creates a command server. resources may be nil; the status reply
// then omits the resource snapshot.
func NewServer(logger *zap.Logger, nc *nats.Conn, scheduler ReportScheduler, resources *monitor.Collector) *Server {
	return &Server{
		logger:    logger.Named("command"),
		nc:        nc,
		scheduler: scheduler,
		resources: resources,
	}
}

// Start subscribes to all command subjects.
func (s *Server) Start(ctx context.Context) error {
	handlers := map[string]func(context.Context, Request) Reply{
		processAndSendSubject: s.handleProcessAndSend,
		processSubject:        s.handleProcess,
		sendSubject:           s.handleSend,
		captureNowSubject:     s.handleCaptureNow,
		testEmailSubject:      s.handleTestEmail,
		getScheduleSubject:    s.handleGetSchedule,
		statusSubject:         s.handleStatus,
	}

	for subject, handler := range handlers {
		handler := handler
		sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
			s.dispatch(ctx, msg, handler)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("Command surface ready", zap.Int("subjects", len(handlers)))
	return nil
}

// Stop drains all subscriptions.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	s.subs = nil
}

func (s *Server) dispatch(ctx context.Context, msg *nats.Msg, handler func(context.Context, Request) Reply) {
	var req Request
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.respond(msg, errorReply(fmt.Sprintf("invalid request: %v", err)))
			return
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply := handler(cmdCtx, req)
	s.respond(msg, reply)
}

func (s *Server) respond(msg *nats.Msg, reply Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("Failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (s *Server) handleProcessAndSend(ctx context.Context, req Request) Reply {
	day, err := s.scheduler.ParseDay(req.Day)
	if err != nil {
		return errorReply(err.Error())
	}
	if err := s.scheduler.ProcessAndSend(ctx, day); err != nil {
		return errorReply(err.Error())
	}
	return Reply{
		Status:  statusCompleted,
		Message: fmt.Sprintf("Processed and sent report for %s", day.Format("2006-01-02")),
	}
}

func (s *Server) handleProcess(ctx context.Context, req Request) Reply {
	day, err := s.scheduler.ParseDay(req.Day)
	if err != nil {
		return errorReply(err.Error())
	}
	path, err := s.scheduler.ProcessDay(ctx, day)
	if err != nil {
		return errorReply(err.Error())
	}
	return Reply{
		Status:  statusCompleted,
		Message: fmt.Sprintf("Processed workbook for %s", day.Format("2006-01-02")),
		Path:    path,
	}
}

func (s *Server) handleSend(ctx context.Context, req Request) Reply {
	day, err := s.scheduler.ParseDay(req.Day)
	if err != nil {
		return errorReply(err.Error())
	}
	if err := s.scheduler.SendDay(ctx, day); err != nil {
		return errorReply(err.Error())
	}
	return Reply{
		Status:  statusCompleted,
		Message: fmt.Sprintf("Sent report for %s", day.Format("2006-01-02")),
	}
}

func (s *Server) handleCaptureNow(ctx context.Context, req Request) Reply {
	path, err := s.scheduler.CaptureNow(ctx)
	if err != nil {
		return errorReply(err.Error())
	}
	return Reply{
		Status:  statusCompleted,
		Message: "Captured image",
		Path:    path,
	}
}

func (s *Server) handleTestEmail(ctx context.Context, req Request) Reply {
	if err := s.scheduler.TestEmail(ctx); err != nil {
		return errorReply(err.Error())
	}
	return Reply{Status: statusCompleted, Message: "Test email sent"}
}

func (s *Server) handleGetSchedule(ctx context.Context, req Request) Reply {
	return Reply{Status: statusCompleted, Schedule: s.scheduler.Schedule()}
}

func (s *Server) handleStatus(ctx context.Context, req Request) Reply {
	info, err := s.scheduler.Status(ctx)
	if err != nil {
		return errorReply(err.Error())
	}

	if s.resources != nil {
		snapshot, err := s.resources.Sample(ctx)
		if err != nil {
			s.logger.Warn("Failed to sample resources", zap.Error(err))
		} else {
			info.CPUPercent = snapshot.CPUPercent
			info.MemoryPercent = snapshot.MemoryPercent
		}
	}

	return Reply{Status: statusCompleted, Info: info}
}

func errorReply(msg string) Reply {
	return Reply{Status: statusError, Message: msg}
}
