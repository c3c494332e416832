package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
report:
  location: Test Store
email:
  host: smtp.example.com
  from: reports@example.com
  recipients:
    - ops@example.com
data_source:
  base_url: https://data.example.com
  api_key_id: id
  api_key: key
  org_id: org
paths:
  template_path: /tmp/template.xlsx
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("Minimal Config With Defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)

		assert.Equal(t, "Test Store", cfg.Report.Location)
		assert.Equal(t, "20:00", cfg.Schedule.SendTime)
		assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
		assert.Equal(t, 5*time.Minute, cfg.DataSource.BucketPeriod)
		assert.Equal(t, "pct99", cfg.DataSource.BucketMethod)
		assert.Equal(t, ".*_raw", cfg.DataSource.IncludeKeys)
		assert.Equal(t, 587, cfg.Email.Port)
	})

	t.Run("Process Time Defaults To One Hour Before Send", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig+`
schedule:
  send_time: "21:30"
`))
		require.NoError(t, err)
		assert.Equal(t, "20:30", cfg.Schedule.ProcessTime)
	})

	t.Run("Explicit Process Time Wins", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig+`
schedule:
  send_time: "20:00"
  process_time: "18:00"
`))
		require.NoError(t, err)
		assert.Equal(t, "18:00", cfg.Schedule.ProcessTime)
	})

	t.Run("Missing Config File", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("Missing Recipients", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
report:
  location: Test Store
email:
  host: smtp.example.com
  from: reports@example.com
data_source:
  base_url: https://data.example.com
  api_key_id: id
  api_key: key
  org_id: org
paths:
  template_path: /tmp/template.xlsx
`))
		assert.ErrorContains(t, err, "email.recipients")
	})

	t.Run("Invalid Timezone", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
schedule:
  timezone: Mars/Olympus_Mons
`))
		assert.ErrorContains(t, err, "timezone")
	})

	t.Run("Invalid Send Time", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
schedule:
  send_time: "8pm"
`))
		assert.ErrorContains(t, err, "send_time")
	})

	t.Run("Store Hours Must Not Span Midnight", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
hours:
  friday: ["20:00", "02:00"]
`))
		assert.ErrorContains(t, err, "hours.friday")
	})

	t.Run("Store Hours Need An Open Close Pair", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
hours:
  monday: ["07:00"]
`))
		assert.ErrorContains(t, err, "hours.monday")
	})

	t.Run("Snapshot URL Required With Imaging", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
camera:
  include_images: true
`))
		assert.ErrorContains(t, err, "snapshot_url")
	})
}

func TestStoreHours(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
hours:
  saturday: ["09:00", "13:00"]
`))
	require.NoError(t, err)

	assert.Equal(t, [2]string{"07:00", "19:30"}, cfg.StoreHours(time.Monday))
	assert.Equal(t, [2]string{"09:00", "13:00"}, cfg.StoreHours(time.Saturday))
}

func TestParseTimeOfDay(t *testing.T) {
	minutes, err := ParseTimeOfDay("19:30")
	require.NoError(t, err)
	assert.Equal(t, 19*60+30, minutes)

	minutes, err = ParseTimeOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, minutes)

	_, err = ParseTimeOfDay("7pm")
	assert.Error(t, err)

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}
