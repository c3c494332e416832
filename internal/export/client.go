package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// fetchLimit is the page size for tabular data queries.
const fetchLimit = 1000

// Reading is one timestamped set of sensor values.
type Reading struct {
	TimeReceived time.Time          `json:"time_received"`
	Readings     map[string]float64 `json:"readings"`
}

// ClientConfig holds the data-source credentials and endpoint.
type ClientConfig struct {
	BaseURL  string
	APIKeyID string
	APIKey   string
	OrgID    string
}

// Client fetches tabular sensor telemetry from the platform data API.
type Client struct {
	logger     *zap.Logger
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a data API client.
func NewClient(logger *zap.Logger, cfg ClientConfig) *Client {
	return &Client{
		logger: logger.Named("export-client"),
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type tabularQuery struct {
	OrganizationID string    `json:"organization_id"`
	ComponentName  string    `json:"component_name"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Skip           int       `json:"skip"`
	Limit          int       `json:"limit"`
}

type tabularResponse struct {
	Data []Reading `json:"data"`
}

// Fetch retrieves all readings for the component within [start, end), paging
// through the API in fetchLimit batches sorted by time received.
func (c *Client) Fetch(ctx context.Context, componentName string, start, end time.Time) ([]Reading, error) {
	var all []Reading
	skip := 0

	for {
		batch, err := c.fetchPage(ctx, tabularQuery{
			OrganizationID: c.cfg.OrgID,
			ComponentName:  componentName,
			Start:          start,
			End:            end,
			Skip:           skip,
			Limit:          fetchLimit,
		})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		all = append(all, batch...)
		c.logger.Debug("Retrieved telemetry batch",
			zap.Int("skip", skip),
			zap.Int("count", len(batch)))

		if len(batch) < fetchLimit {
			break
		}
		skip += fetchLimit
	}

	c.logger.Info("Fetched telemetry",
		zap.String("component", componentName),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("records", len(all)))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, query tabularQuery) ([]Reading, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/data/tabular", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key-ID", c.cfg.APIKeyID)
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("data API returned status %d: %s", resp.StatusCode, data)
	}

	var parsed tabularResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return parsed.Data, nil
}
