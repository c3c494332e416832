package model

// WorkbookStatus describes the state of the most recent workbook build.
type WorkbookStatus string

const (
	WorkbookNotProcessed WorkbookStatus = "not_processed"
	WorkbookProcessed    WorkbookStatus = "processed"
	WorkbookError        WorkbookStatus = "error"
)

// ReportStatus describes the state of the most recent report delivery.
type ReportStatus string

const (
	ReportNotSent ReportStatus = "not_sent"
	ReportSent    ReportStatus = "sent"
	ReportError   ReportStatus = "error"
)

// DayType distinguishes weekday from weekend schedules.
type DayType string

const (
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
)
