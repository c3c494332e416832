package scheduler

import "time"

const (
	// DayFormat is the compact day identifier used by manual commands.
	DayFormat = "20060102"

	defaultTickInterval = time.Minute

	// captureRetention bounds how long per-slot capture records are kept.
	captureRetention = 7 * 24 * time.Hour
)
