package state

import (
	"sort"

	"github.com/hvolkman/stock-report/internal/model"
)

// DateFormat is the calendar-date key used by all per-day guards.
const DateFormat = "2006-01-02"

// State is the persisted schedule state. It is the sole source of truth for
// idempotence: after a restart the scheduler reconstructs intent purely from
// these dates, never from in-memory flags.
type State struct {
	LastProcessedDate string `json:"last_processed_date,omitempty"`
	LastSentDate      string `json:"last_sent_date,omitempty"`

	// Captures maps a date to the capture-time labels already taken that
	// day. Empty when imaging is disabled.
	Captures map[string][]string `json:"captures,omitempty"`

	LastWorkbookPath string               `json:"last_workbook_path,omitempty"`
	TotalReportsSent int                  `json:"total_reports_sent"`
	ReportStatus     model.ReportStatus   `json:"report_status,omitempty"`
	WorkbookStatus   model.WorkbookStatus `json:"workbook_status,omitempty"`
}

// New returns an empty state with status fields initialized.
func New() *State {
	return &State{
		ReportStatus:   model.ReportNotSent,
		WorkbookStatus: model.WorkbookNotProcessed,
	}
}

// Captured reports whether the capture slot label has already fired on date.
func (s *State) Captured(date, label string) bool {
	for _, l := range s.Captures[date] {
		if l == label {
			return true
		}
	}
	return false
}

// RecordCapture marks the capture slot label as taken on date.
func (s *State) RecordCapture(date, label string) {
	if s.Captured(date, label) {
		return
	}
	if s.Captures == nil {
		s.Captures = make(map[string][]string)
	}
	s.Captures[date] = append(s.Captures[date], label)
	sort.Strings(s.Captures[date])
}

// PruneCaptures drops capture records for dates before keepFrom. The per-day
// guards only ever consult the current date, so older entries are dead weight.
func (s *State) PruneCaptures(keepFrom string) {
	for date := range s.Captures {
		if date < keepFrom {
			delete(s.Captures, date)
		}
	}
}
