package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all static configuration for the report module. It is loaded
// once at startup and immutable for the process lifetime; changing any value
// requires a restart.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Report     ReportConfig     `mapstructure:"report"`
	Email      EmailConfig      `mapstructure:"email"`
	DataSource DataSourceConfig `mapstructure:"data_source"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Hours      HoursConfig      `mapstructure:"hours"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
}

type ReportConfig struct {
	// Location is the human-readable store label used in filenames,
	// email subjects and status replies.
	Location string `mapstructure:"location"`
	// TeleopURL, when set, is linked from the report body for a live view.
	TeleopURL string `mapstructure:"teleop_url"`
}

type EmailConfig struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	SenderName string   `mapstructure:"sender_name"`
	Recipients []string `mapstructure:"recipients"`
}

type DataSourceConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKeyID     string        `mapstructure:"api_key_id"`
	APIKey       string        `mapstructure:"api_key"`
	OrgID        string        `mapstructure:"org_id"`
	ResourceName string        `mapstructure:"resource_name"`
	BucketPeriod time.Duration `mapstructure:"bucket_period"`
	BucketMethod string        `mapstructure:"bucket_method"`
	IncludeKeys  string        `mapstructure:"include_keys"`
}

type ScheduleConfig struct {
	// ProcessTime and SendTime are local times of day in "HH:MM" format.
	// An empty ProcessTime defaults to one hour before SendTime.
	ProcessTime string `mapstructure:"process_time"`
	SendTime    string `mapstructure:"send_time"`
	Timezone    string `mapstructure:"timezone"`
}

// HoursConfig is the per-weekday open/close table. Each entry is a two-element
// [open, close] pair in "HH:MM" format bounding the telemetry export window.
type HoursConfig struct {
	Monday    []string `mapstructure:"monday"`
	Tuesday   []string `mapstructure:"tuesday"`
	Wednesday []string `mapstructure:"wednesday"`
	Thursday  []string `mapstructure:"thursday"`
	Friday    []string `mapstructure:"friday"`
	Saturday  []string `mapstructure:"saturday"`
	Sunday    []string `mapstructure:"sunday"`
}

type CameraConfig struct {
	IncludeImages       bool     `mapstructure:"include_images"`
	SnapshotURL         string   `mapstructure:"snapshot_url"`
	CaptureTimesWeekday []string `mapstructure:"capture_times_weekday"`
	CaptureTimesWeekend []string `mapstructure:"capture_times_weekend"`
}

type PathsConfig struct {
	// OutputDir holds the state file plus workbooks/ and images/ subdirs.
	OutputDir    string `mapstructure:"output_dir"`
	TemplatePath string `mapstructure:"template_path"`
	HistoryDB    string `mapstructure:"history_db"`
}

// Load reads and validates configuration from the given directory using viper.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stock-report")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.connect_timeout", "5s")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.sender_name", "Stock Report Module")
	v.SetDefault("data_source.resource_name", "langer_fill")
	v.SetDefault("data_source.bucket_period", "5m")
	v.SetDefault("data_source.bucket_method", "pct99")
	v.SetDefault("data_source.include_keys", ".*_raw")
	v.SetDefault("schedule.send_time", "20:00")
	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("hours.monday", []string{"07:00", "19:30"})
	v.SetDefault("hours.tuesday", []string{"07:00", "19:30"})
	v.SetDefault("hours.wednesday", []string{"07:00", "19:30"})
	v.SetDefault("hours.thursday", []string{"07:00", "19:30"})
	v.SetDefault("hours.friday", []string{"07:00", "19:30"})
	v.SetDefault("hours.saturday", []string{"08:00", "17:00"})
	v.SetDefault("hours.sunday", []string{"08:00", "17:00"})
	v.SetDefault("camera.capture_times_weekday", []string{"07:00", "08:00", "10:00", "12:00", "14:00", "16:00", "18:00"})
	v.SetDefault("camera.capture_times_weekend", []string{"08:00", "09:00", "11:00", "16:00"})
	v.SetDefault("paths.output_dir", "./data")
	v.SetDefault("paths.history_db", "./data/history.db")
}

// Validate checks required fields and derives defaults that depend on other
// fields. Any error here is fatal at startup.
func (c *Config) Validate() error {
	if c.Report.Location == "" {
		return fmt.Errorf("report.location is required")
	}
	if len(c.Email.Recipients) == 0 {
		return fmt.Errorf("email.recipients must be a non-empty list")
	}
	if c.Email.Host == "" || c.Email.From == "" {
		return fmt.Errorf("email.host and email.from are required")
	}
	if c.DataSource.BaseURL == "" {
		return fmt.Errorf("data_source.base_url is required")
	}
	if c.DataSource.APIKeyID == "" || c.DataSource.APIKey == "" || c.DataSource.OrgID == "" {
		return fmt.Errorf("data_source credentials (api_key_id, api_key, org_id) are required")
	}
	if c.Paths.TemplatePath == "" {
		return fmt.Errorf("paths.template_path is required")
	}

	if _, err := ParseTimeOfDay(c.Schedule.SendTime); err != nil {
		return fmt.Errorf("invalid schedule.send_time %q: %w", c.Schedule.SendTime, err)
	}
	if c.Schedule.ProcessTime == "" {
		c.Schedule.ProcessTime = minusHour(c.Schedule.SendTime)
	}
	if _, err := ParseTimeOfDay(c.Schedule.ProcessTime); err != nil {
		return fmt.Errorf("invalid schedule.process_time %q: %w", c.Schedule.ProcessTime, err)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}

	for day, hours := range c.Hours.table() {
		if len(hours) != 2 {
			return fmt.Errorf("hours.%s must be a two-element [open, close] pair", day)
		}
		openMin, err := ParseTimeOfDay(hours[0])
		if err != nil {
			return fmt.Errorf("invalid opening time in hours.%s: %w", day, err)
		}
		closeMin, err := ParseTimeOfDay(hours[1])
		if err != nil {
			return fmt.Errorf("invalid closing time in hours.%s: %w", day, err)
		}
		// Windows spanning midnight describe hours of two different calendar
		// days and are rejected rather than split.
		if closeMin <= openMin {
			return fmt.Errorf("hours.%s: closing time %q must be after opening time %q within the same day", day, hours[1], hours[0])
		}
	}

	if c.Camera.IncludeImages {
		if c.Camera.SnapshotURL == "" {
			return fmt.Errorf("camera.snapshot_url is required when camera.include_images is true")
		}
		for _, t := range append(append([]string{}, c.Camera.CaptureTimesWeekday...), c.Camera.CaptureTimesWeekend...) {
			if _, err := ParseTimeOfDay(t); err != nil {
				return fmt.Errorf("invalid capture time %q: %w", t, err)
			}
		}
	}

	return nil
}

// Location resolves the configured time zone. Validate guarantees this
// succeeds after startup.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// StoreHours returns the [open, close] pair for the given weekday.
func (c *Config) StoreHours(day time.Weekday) [2]string {
	h := c.Hours
	var pair []string
	switch day {
	case time.Monday:
		pair = h.Monday
	case time.Tuesday:
		pair = h.Tuesday
	case time.Wednesday:
		pair = h.Wednesday
	case time.Thursday:
		pair = h.Thursday
	case time.Friday:
		pair = h.Friday
	case time.Saturday:
		pair = h.Saturday
	default:
		pair = h.Sunday
	}
	return [2]string{pair[0], pair[1]}
}

func (h HoursConfig) table() map[string][]string {
	return map[string][]string{
		"monday":    h.Monday,
		"tuesday":   h.Tuesday,
		"wednesday": h.Wednesday,
		"thursday":  h.Thursday,
		"friday":    h.Friday,
		"saturday":  h.Saturday,
		"sunday":    h.Sunday,
	}
}

// ParseTimeOfDay parses an "HH:MM" string into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("must be in 'HH:MM' format: %w", err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minusHour(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Add(-time.Hour).Format("15:04")
}
