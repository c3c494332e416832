package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientFetch(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 9, 7, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 9, 19, 30, 0, 0, time.UTC)

	t.Run("Pages Through All Records", func(t *testing.T) {
		// First page is full, second is partial, so exactly two requests.
		total := fetchLimit + 42
		var requests int

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			assert.Equal(t, "/v1/data/tabular", r.URL.Path)
			assert.Equal(t, "key-id", r.Header.Get("X-API-Key-ID"))
			assert.Equal(t, "key", r.Header.Get("X-API-Key"))

			var query tabularQuery
			require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
			assert.Equal(t, "org", query.OrganizationID)
			assert.Equal(t, "langer_fill", query.ComponentName)

			count := fetchLimit
			if remaining := total - query.Skip; remaining < count {
				count = remaining
			}
			data := make([]Reading, count)
			for i := range data {
				data[i] = Reading{
					TimeReceived: start.Add(time.Duration(query.Skip+i) * time.Second),
					Readings:     map[string]float64{"shelf_1_raw": float64(query.Skip + i)},
				}
			}
			json.NewEncoder(w).Encode(tabularResponse{Data: data})
		}))
		defer srv.Close()

		c := NewClient(zap.NewNop(), ClientConfig{
			BaseURL:  srv.URL,
			APIKeyID: "key-id",
			APIKey:   "key",
			OrgID:    "org",
		})

		readings, err := c.Fetch(ctx, "langer_fill", start, end)
		require.NoError(t, err)
		assert.Len(t, readings, total)
		assert.Equal(t, 2, requests)
	})

	t.Run("Empty Window", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(tabularResponse{})
		}))
		defer srv.Close()

		c := NewClient(zap.NewNop(), ClientConfig{BaseURL: srv.URL})
		readings, err := c.Fetch(ctx, "langer_fill", start, end)
		require.NoError(t, err)
		assert.Empty(t, readings)
	})

	t.Run("API Error Status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(zap.NewNop(), ClientConfig{BaseURL: srv.URL})
		_, err := c.Fetch(ctx, "langer_fill", start, end)
		assert.ErrorContains(t, err, fmt.Sprintf("status %d", http.StatusUnauthorized))
	})

	t.Run("Malformed Response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}))
		defer srv.Close()

		c := NewClient(zap.NewNop(), ClientConfig{BaseURL: srv.URL})
		_, err := c.Fetch(ctx, "langer_fill", start, end)
		assert.ErrorContains(t, err, "failed to parse response")
	})
}
