package workbook

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// fakeExporter writes a small RAW workbook and records the requested window.
type fakeExporter struct {
	rows  int
	start time.Time
	end   time.Time
	fail  bool
}

func (e *fakeExporter) ExportToWorkbook(ctx context.Context, path string, start, end time.Time) (int, error) {
	e.start, e.end = start, end
	if e.fail {
		return 0, assert.AnError
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "RAW"); err != nil {
		return 0, err
	}
	header := []interface{}{"time_received", "shelf_1_raw"}
	if err := f.SetSheetRow("RAW", "A1", &header); err != nil {
		return 0, err
	}
	for i := 0; i < e.rows; i++ {
		row := []interface{}{fmt.Sprintf("2025-06-09 09:%02d:00", i), float64(10 + i)}
		if err := f.SetSheetRow("RAW", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return 0, err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return 0, err
	}
	return e.rows, nil
}

// writeTemplate builds a template with a Raw Import sheet full of stale rows
// and one derived sheet longer than the exported data.
func writeTemplate(t *testing.T, path string, staleRows, derivedRows int) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Raw Import"))
	header := []interface{}{"time_received", "shelf_1_raw"}
	require.NoError(t, f.SetSheetRow("Raw Import", "A1", &header))
	for i := 0; i < staleRows; i++ {
		row := []interface{}{"stale", 99.0}
		require.NoError(t, f.SetSheetRow("Raw Import", fmt.Sprintf("A%d", i+2), &row))
	}

	_, err := f.NewSheet("Calibrated Values")
	require.NoError(t, err)
	derivedHeader := []interface{}{"shelf_1"}
	require.NoError(t, f.SetSheetRow("Calibrated Values", "A1", &derivedHeader))
	for i := 0; i < derivedRows; i++ {
		row := []interface{}{float64(i)}
		require.NoError(t, f.SetSheetRow("Calibrated Values", fmt.Sprintf("A%d", i+2), &row))
	}

	require.NoError(t, f.SaveAs(path))
}

func newTestProcessor(t *testing.T, exporter Exporter) (*Processor, string) {
	t.Helper()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	dir := t.TempDir()
	template := filepath.Join(dir, "template.xlsx")
	writeTemplate(t, template, 6, 8)

	p := NewProcessor(zap.NewNop(), Config{
		WorkDir:      filepath.Join(dir, "workbooks"),
		TemplatePath: template,
		Location:     "Test",
		Loc:          loc,
		StoreHours: func(d time.Weekday) [2]string {
			if d == time.Saturday || d == time.Sunday {
				return [2]string{"08:00", "17:00"}
			}
			return [2]string{"07:00", "19:30"}
		},
	}, exporter)
	return p, dir
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// A Monday.
	day := time.Date(2025, 6, 9, 0, 0, 0, 0, loc)

	t.Run("WorkbookPath", func(t *testing.T) {
		p, dir := newTestProcessor(t, &fakeExporter{})
		want := filepath.Join(dir, "workbooks", "20250609_Test.xlsx")
		assert.Equal(t, want, p.WorkbookPath(day))
	})

	t.Run("Process Fills Template From Export", func(t *testing.T) {
		exporter := &fakeExporter{rows: 3}
		p, _ := newTestProcessor(t, exporter)

		path, err := p.Process(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, p.WorkbookPath(day), path)
		require.FileExists(t, path)

		out, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer out.Close()

		imported, err := out.GetRows("Raw Import")
		require.NoError(t, err)
		// Header plus the three exported rows; stale template rows cleared.
		require.GreaterOrEqual(t, len(imported), 4)
		assert.Equal(t, "time_received", imported[0][0])
		assert.Equal(t, "2025-06-09 09:00:00", imported[1][0])
		for r := 4; r < len(imported); r++ {
			for _, cell := range imported[r] {
				assert.Empty(t, cell)
			}
		}

		derived, err := out.GetRows("Calibrated Values")
		require.NoError(t, err)
		assert.Len(t, derived, 4)
	})

	t.Run("Export Window Follows Store Hours", func(t *testing.T) {
		exporter := &fakeExporter{rows: 1}
		p, _ := newTestProcessor(t, exporter)

		_, err := p.Process(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 9, 7, 0, 0, 0, loc), exporter.start)
		assert.Equal(t, time.Date(2025, 6, 9, 19, 30, 0, 0, loc), exporter.end)

		// Weekend hours differ.
		saturday := time.Date(2025, 6, 14, 0, 0, 0, 0, loc)
		_, err = p.Process(ctx, saturday)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 14, 8, 0, 0, 0, loc), exporter.start)
		assert.Equal(t, time.Date(2025, 6, 14, 17, 0, 0, 0, loc), exporter.end)
	})

	t.Run("Export Failure Aborts", func(t *testing.T) {
		exporter := &fakeExporter{fail: true}
		p, _ := newTestProcessor(t, exporter)

		_, err := p.Process(ctx, day)
		require.Error(t, err)
		assert.NoFileExists(t, p.WorkbookPath(day))
	})

	t.Run("Missing Template Aborts", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		p := NewProcessor(zap.NewNop(), Config{
			WorkDir:      t.TempDir(),
			TemplatePath: "/nonexistent/template.xlsx",
			Location:     "Test",
			Loc:          loc,
			StoreHours:   func(time.Weekday) [2]string { return [2]string{"07:00", "19:30"} },
		}, &fakeExporter{})

		_, err = p.Process(ctx, day)
		assert.ErrorContains(t, err, "template")
	})

	t.Run("No Wip File Left Behind", func(t *testing.T) {
		exporter := &fakeExporter{rows: 2}
		p, _ := newTestProcessor(t, exporter)

		path, err := p.Process(ctx, day)
		require.NoError(t, err)
		assert.NoFileExists(t, path+".wip")
	})
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, 12.5, cellValue("12.5"))
	assert.Equal(t, 7.0, cellValue("7"))
	assert.Equal(t, "n/a", cellValue("n/a"))
}
