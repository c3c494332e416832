package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Options controls bucketing and workbook layout for an export.
type Options struct {
	BucketPeriod time.Duration
	BucketMethod string
	IncludeKeys  string
	TabName      string
	Timezone     *time.Location
}

// Exporter pulls telemetry for a time window and writes it to an xlsx sheet:
// one header row (time_received plus sorted reading keys), one row per bucket.
type Exporter struct {
	logger        *zap.Logger
	client        *Client
	componentName string
	opts          Options
}

// NewExporter creates an exporter for the given component.
func NewExporter(logger *zap.Logger, client *Client, componentName string, opts Options) *Exporter {
	if opts.TabName == "" {
		opts.TabName = "RAW"
	}
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &Exporter{
		logger:        logger.Named("exporter"),
		client:        client,
		componentName: componentName,
		opts:          opts,
	}
}

// ExportToWorkbook fetches, buckets and writes telemetry for [start, end)
// into a new workbook at path, returning the number of data rows written.
func (e *Exporter) ExportToWorkbook(ctx context.Context, path string, start, end time.Time) (int, error) {
	readings, err := e.client.Fetch(ctx, e.componentName, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch telemetry: %w", err)
	}

	if e.opts.BucketPeriod > 0 {
		readings, err = Bucket(readings, e.opts.BucketPeriod, e.opts.BucketMethod, e.opts.IncludeKeys)
		if err != nil {
			return 0, fmt.Errorf("failed to bucket telemetry: %w", err)
		}
	}

	if err := e.writeWorkbook(path, readings); err != nil {
		return 0, err
	}

	e.logger.Info("Exported telemetry workbook",
		zap.String("path", path),
		zap.Int("rows", len(readings)))
	return len(readings), nil
}

func (e *Exporter) writeWorkbook(path string, readings []Reading) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.opts.TabName
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	keys := readingKeys(readings)
	if err := f.SetCellValue(sheet, "A1", "time_received"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, key := range keys {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		if err := f.SetCellValue(sheet, cell, key); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, r := range readings {
		local := r.TimeReceived.In(e.opts.Timezone)
		cell, _ := excelize.CoordinatesToCellName(1, row+2)
		if err := f.SetCellValue(sheet, cell, local.Format("2006-01-02 15:04:05")); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		for col, key := range keys {
			value, ok := r.Readings[key]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+2, row+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// readingKeys returns the union of reading keys across all rows, sorted.
func readingKeys(readings []Reading) []string {
	seen := make(map[string]bool)
	for _, r := range readings {
		for key := range r.Readings {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
