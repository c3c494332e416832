package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const dayDirFormat = "20060102"

// Capturer fetches snapshots from a camera HTTP endpoint and stores them
// under a per-day directory.
type Capturer struct {
	logger      *zap.Logger
	httpClient  *http.Client
	snapshotURL string
	imagesDir   string
	name        string
}

// NewCapturer creates a capturer. name is used in image filenames.
func NewCapturer(logger *zap.Logger, snapshotURL, imagesDir, name string) *Capturer {
	return &Capturer{
		logger:      logger.Named("camera"),
		snapshotURL: snapshotURL,
		imagesDir:   imagesDir,
		name:        name,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Capture fetches one snapshot and writes it to
// images/<YYYYMMDD>/<HHMMSS>_<name>.jpg, returning the stored path.
func (c *Capturer) Capture(ctx context.Context, now time.Time) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.snapshotURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot: %w", err)
	}

	dayDir := filepath.Join(c.imagesDir, now.Format(dayDirFormat))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	path := filepath.Join(dayDir, fmt.Sprintf("%s_%s.jpg", now.Format("150405"), c.name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	c.logger.Info("Saved snapshot", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// DailyImages returns the snapshots captured on the given day, oldest first.
// Filenames start with HHMMSS so lexical order is capture order.
func (c *Capturer) DailyImages(day time.Time) ([]string, error) {
	dayDir := filepath.Join(c.imagesDir, day.Format(dayDirFormat))
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list image directory: %w", err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		images = append(images, filepath.Join(dayDir, e.Name()))
	}
	sort.Strings(images)
	return images, nil
}
