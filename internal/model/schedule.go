package model

import "time"

// ScheduleInfo is the reply payload for the get_schedule command. All
// timestamps are expressed in the configured report time zone.
type ScheduleInfo struct {
	ProcessTime         string     `json:"process_time"`
	SendTime            string     `json:"send_time"`
	Timezone            string     `json:"timezone"`
	NextProcess         time.Time  `json:"next_process"`
	NextSend            time.Time  `json:"next_send"`
	NextCapture         *time.Time `json:"next_capture,omitempty"`
	DayType             DayType    `json:"current_day_type"`
	CaptureTimesWeekday []string   `json:"capture_times_weekday,omitempty"`
	CaptureTimesWeekend []string   `json:"capture_times_weekend,omitempty"`
	CurrentCaptureTimes []string   `json:"current_capture_times,omitempty"`
}

// StatusInfo is the reply payload for the status command.
type StatusInfo struct {
	Location          string         `json:"location"`
	LastProcessedDate string         `json:"last_processed_date,omitempty"`
	LastSentDate      string         `json:"last_sent_date,omitempty"`
	LastWorkbookPath  string         `json:"last_workbook_path,omitempty"`
	TotalReportsSent  int            `json:"total_reports_sent"`
	ReportStatus      ReportStatus   `json:"report_status"`
	WorkbookStatus    WorkbookStatus `json:"workbook_status"`
	IncludeImages     bool           `json:"include_images"`
	DayType           DayType        `json:"current_day_type"`
	PID               int            `json:"pid"`
	CPUPercent        float64        `json:"cpu_percent,omitempty"`
	MemoryPercent     float64        `json:"memory_percent,omitempty"`
}
