package workbook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	rawSheet    = "RAW"
	importSheet = "Raw Import"
)

// derivedSheets reference Raw Import by row and carry stale template rows
// that must be trimmed to the exported row count.
var derivedSheets = []string{"Calibrated Values", "Bounded Calibrated", "Empty Shelf Tracker"}

// Exporter produces the raw telemetry workbook for a time window.
type Exporter interface {
	ExportToWorkbook(ctx context.Context, path string, start, end time.Time) (int, error)
}

// Config holds the processor's paths and report-window settings.
type Config struct {
	WorkDir      string
	TemplatePath string
	// Location is the store label used in workbook filenames.
	Location string
	Loc      *time.Location
	// StoreHours returns the [open, close] "HH:MM" pair for a weekday;
	// it bounds the telemetry export window for that day.
	StoreHours func(time.Weekday) [2]string
}

// Processor builds the daily report workbook: it exports raw telemetry for
// the day's store hours, copies the template, fills the Raw Import sheet and
// trims the derived sheets to the exported row count.
type Processor struct {
	logger   *zap.Logger
	cfg      Config
	exporter Exporter
}

// NewProcessor creates a workbook processor.
func NewProcessor(logger *zap.Logger, cfg Config, exporter Exporter) *Processor {
	return &Processor{
		logger:   logger.Named("workbook"),
		cfg:      cfg,
		exporter: exporter,
	}
}

// WorkbookPath returns the final workbook path for a day.
func (p *Processor) WorkbookPath(day time.Time) string {
	name := fmt.Sprintf("%s_%s.xlsx", day.Format("20060102"), p.cfg.Location)
	return filepath.Join(p.cfg.WorkDir, name)
}

// Process builds the report workbook for day and returns its path.
func (p *Processor) Process(ctx context.Context, day time.Time) (string, error) {
	if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	if _, err := os.Stat(p.cfg.TemplatePath); err != nil {
		return "", fmt.Errorf("template file not found: %w", err)
	}

	start, end := p.exportWindow(day)
	p.logger.Info("Processing workbook",
		zap.String("day", day.Format("2006-01-02")),
		zap.Time("window_start", start),
		zap.Time("window_end", end))

	rawPath := filepath.Join(p.cfg.WorkDir, "raw_export.xlsx")
	rows, err := p.exporter.ExportToWorkbook(ctx, rawPath, start, end)
	if err != nil {
		return "", fmt.Errorf("failed to export raw data: %w", err)
	}

	finalPath := p.WorkbookPath(day)
	wipPath := finalPath + ".wip"
	if err := copyFile(p.cfg.TemplatePath, wipPath); err != nil {
		return "", fmt.Errorf("failed to copy template: %w", err)
	}
	defer os.Remove(wipPath)

	if err := p.fill(wipPath, rawPath, rows, finalPath); err != nil {
		return "", err
	}

	p.logger.Info("Created final workbook",
		zap.String("path", finalPath),
		zap.Int("data_rows", rows))
	return finalPath, nil
}

// exportWindow bounds the telemetry window by the day's store hours. Config
// validation guarantees the window does not span midnight.
func (p *Processor) exportWindow(day time.Time) (time.Time, time.Time) {
	hours := p.cfg.StoreHours(day.Weekday())
	local := day.In(p.cfg.Loc)
	return atClockTime(local, hours[0]), atClockTime(local, hours[1])
}

func atClockTime(day time.Time, hhmm string) time.Time {
	t, _ := time.Parse("15:04", hhmm)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

// fill copies the raw export into the template's Raw Import sheet, trims the
// derived sheets and saves the result to finalPath.
func (p *Processor) fill(wipPath, rawPath string, dataRows int, finalPath string) error {
	raw, err := excelize.OpenFile(rawPath)
	if err != nil {
		return fmt.Errorf("failed to open raw export: %w", err)
	}
	defer raw.Close()

	rawRows, err := raw.GetRows(rawSheet)
	if err != nil {
		return fmt.Errorf("%s sheet not found in exported data: %w", rawSheet, err)
	}

	out, err := excelize.OpenFile(wipPath)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer out.Close()

	if idx, err := out.GetSheetIndex(importSheet); err != nil || idx < 0 {
		return fmt.Errorf("%s sheet not found in template", importSheet)
	}

	if err := p.replaceImportRows(out, rawRows); err != nil {
		return err
	}

	for _, sheet := range derivedSheets {
		if err := p.trimSheet(out, sheet, dataRows); err != nil {
			return err
		}
	}

	if err := out.SaveAs(finalPath); err != nil {
		return fmt.Errorf("failed to save final workbook: %w", err)
	}
	return nil
}

// replaceImportRows clears existing Raw Import data (keeping the header) and
// writes the raw export rows, skipping the raw header.
func (p *Processor) replaceImportRows(out *excelize.File, rawRows [][]string) error {
	existing, err := out.GetRows(importSheet)
	if err != nil {
		return fmt.Errorf("failed to read %s sheet: %w", importSheet, err)
	}
	for r := 1; r < len(existing); r++ {
		for c := range existing[r] {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := out.SetCellValue(importSheet, cell, nil); err != nil {
				return fmt.Errorf("failed to clear %s: %w", importSheet, err)
			}
		}
	}

	for r := 1; r < len(rawRows); r++ {
		for c, value := range rawRows[r] {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := out.SetCellValue(importSheet, cell, cellValue(value)); err != nil {
				return fmt.Errorf("failed to write %s: %w", importSheet, err)
			}
		}
	}

	p.logger.Debug("Updated Raw Import sheet", zap.Int("rows", len(rawRows)-1))
	return nil
}

// trimSheet removes rows beyond dataRows+1 (header) from a derived sheet.
// Missing sheets are skipped so a simplified template still processes.
func (p *Processor) trimSheet(out *excelize.File, sheet string, dataRows int) error {
	idx, err := out.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		p.logger.Warn("Sheet not found in workbook, skipping", zap.String("sheet", sheet))
		return nil
	}

	rows, err := out.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	removed := 0
	for r := len(rows); r > dataRows+1; r-- {
		if err := out.RemoveRow(sheet, r); err != nil {
			return fmt.Errorf("failed to remove row %d from %s: %w", r, sheet, err)
		}
		removed++
	}
	if removed > 0 {
		p.logger.Debug("Trimmed excess rows",
			zap.String("sheet", sheet),
			zap.Int("removed", removed))
	}
	return nil
}

// cellValue converts a string cell back to a number when possible so derived
// formulas keep operating on numeric data.
func cellValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
