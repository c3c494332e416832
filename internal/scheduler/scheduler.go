package scheduler

import (
	"context"
	"time"
)

// Processor builds the report workbook for a target day and returns its path.
type Processor interface {
	Process(ctx context.Context, day time.Time) (string, error)

	// WorkbookPath returns the path a finished workbook for day would
	// have, whether or not it exists yet.
	WorkbookPath(day time.Time) string
}

// Sender emails a finished report. The timestamp is the moment of sending in
// the report time zone; implementations use it to pick up the day's captured
// images and date the subject line.
type Sender interface {
	Send(ctx context.Context, now time.Time, workbookPath string) error

	// SendTest delivers a short verification email.
	SendTest(ctx context.Context, now time.Time) error
}

// Capturer takes a camera snapshot and returns the stored image path.
type Capturer interface {
	Capture(ctx context.Context, now time.Time) (string, error)
}
