package scheduler

import "errors"

var (
	// ErrNoWorkbook is returned when a send is requested but no processed
	// workbook exists for the relevant day.
	ErrNoWorkbook = errors.New("no processed workbook available")

	// ErrCaptureDisabled is returned when a capture is requested but
	// imaging is not configured.
	ErrCaptureDisabled = errors.New("image capture not enabled")

	// ErrInvalidDay is returned for a malformed day identifier.
	ErrInvalidDay = errors.New("invalid day, use YYYYMMDD")
)
