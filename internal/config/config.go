package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = "config.toml"

// Bounds for app.max_notif.
const (
	MinMaxNotif = 1
	MaxMaxNotif = 100
)

type Config struct {
	Zabbix    ZabbixConfig    `toml:"zabbix"`
	Notify    NotifyConfig    `toml:"notify"`
	App       AppConfig       `toml:"app"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ZabbixConfig struct {
	URL            string            `toml:"url"`
	Token          string            `toml:"token"`
	Limit          int               `toml:"limit"`
	Concurrency    int               `toml:"concurrency"`
	AckFilter      problem.AckFilter `toml:"ack_filter"`
	RequestTimeout Duration          `toml:"request_timeout"`
	ConnectTimeout Duration          `toml:"connect_timeout"`
	Insecure       bool              `toml:"insecure"`
}

type NotifyConfig struct {
	AppName        string   `toml:"appname"`
	Sticky         bool     `toml:"sticky"`
	Timeout        Duration `toml:"timeout"`
	DefaultTimeout bool     `toml:"default_timeout"`
	Icon           string   `toml:"icon"`
	OpenLabel      string   `toml:"open_label"`
	NotifyAcked    bool     `toml:"notify_acked"`
	AskMessage     bool     `toml:"ask_message"`
	AllowUnack     bool     `toml:"allow_unack"`
}

type AppConfig struct {
	MaxNotif        int      `toml:"max_notif"`
	QueueBound      int      `toml:"queue_bound"`
	RateLimitMax    int      `toml:"rate_limit_max"`
	RateLimitWindow Duration `toml:"rate_limit_window"`
	PollInterval    Duration `toml:"poll_interval"`
	OpenURLFmt      string   `toml:"open_url_fmt"`
	HostCacheSize   int      `toml:"host_cache_size"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string   `toml:"otlp_endpoint"`
	ExportInterval Duration `toml:"export_interval"`
}

// Duration is a time.Duration read from a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// LoadFrom reads the TOML file at path, then applies environment overrides
// from the process environment and validates the result. A missing file is
// not an error: defaults and the environment still apply.
func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = nil
	}
	return load(string(data), os.LookupEnv)
}

// LoadFromString parses data as TOML without consulting the environment.
func LoadFromString(data string) (*LoadResult, error) {
	return load(data, func(string) (string, bool) { return "", false })
}

// LoadWithEnv parses data and applies overrides from lookup.
func LoadWithEnv(data string, lookup func(string) (string, bool)) (*LoadResult, error) {
	return load(data, lookup)
}

func load(data string, lookup func(string) (string, bool)) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	if data != "" {
		md, err := toml.Decode(data, &result.Config)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		result.Warnings = unknownKeyWarnings(md)
	}

	if err := applyEnv(&result.Config, lookup); err != nil {
		return nil, err
	}

	if err := Validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

func unknownKeyWarnings(md toml.MetaData) []string {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(undecoded))
	for _, key := range undecoded {
		warnings = append(warnings, fmt.Sprintf("unknown config key: %q", key.String()))
	}
	sort.Strings(warnings)
	return warnings
}

// Validate checks every field and reports all failures at once.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Zabbix.URL) == "" {
		errs = append(errs, "zabbix.url is required")
	}
	if strings.TrimSpace(cfg.Zabbix.Token) == "" {
		errs = append(errs, "zabbix.token is required and cannot be empty")
	}
	if cfg.Zabbix.Limit < 1 {
		errs = append(errs, fmt.Sprintf("zabbix.limit must be positive, got %d", cfg.Zabbix.Limit))
	}
	if cfg.Zabbix.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("zabbix.concurrency must be positive, got %d", cfg.Zabbix.Concurrency))
	}
	if cfg.Zabbix.RequestTimeout.Duration <= 0 {
		errs = append(errs, "zabbix.request_timeout must be greater than zero")
	}
	if cfg.Zabbix.ConnectTimeout.Duration <= 0 {
		errs = append(errs, "zabbix.connect_timeout must be greater than zero")
	}

	if cfg.Notify.Timeout.Duration < 0 {
		errs = append(errs, "notify.timeout cannot be negative")
	}

	if cfg.App.MaxNotif < MinMaxNotif || cfg.App.MaxNotif > MaxMaxNotif {
		errs = append(errs, fmt.Sprintf("app.max_notif must be %d-%d, got %d", MinMaxNotif, MaxMaxNotif, cfg.App.MaxNotif))
	}
	if cfg.App.QueueBound < 1 {
		errs = append(errs, fmt.Sprintf("app.queue_bound must be greater than zero, got %d", cfg.App.QueueBound))
	}
	if cfg.App.RateLimitMax < 1 {
		errs = append(errs, fmt.Sprintf("app.rate_limit_max must allow at least one event, got %d", cfg.App.RateLimitMax))
	}
	if cfg.App.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "app.rate_limit_window must be greater than zero")
	}
	if cfg.App.PollInterval.Duration <= 0 {
		errs = append(errs, "app.poll_interval must be greater than zero")
	}
	if cfg.App.HostCacheSize < 0 {
		errs = append(errs, fmt.Sprintf("app.host_cache_size cannot be negative, got %d", cfg.App.HostCacheSize))
	}
	if cfg.App.OpenURLFmt != "" && !strings.Contains(cfg.App.OpenURLFmt, EventIDPlaceholder) {
		errs = append(errs, fmt.Sprintf("app.open_url_fmt must contain %s", EventIDPlaceholder))
	}

	if cfg.Telemetry.OTLPEndpoint != "" && cfg.Telemetry.ExportInterval.Duration <= 0 {
		errs = append(errs, "telemetry.export_interval must be greater than zero")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EventIDPlaceholder is substituted with the event ID in app.open_url_fmt.
const EventIDPlaceholder = "{eventid}"

// OpenURL expands the configured viewer template for eventID. It returns
// "" when no template is configured.
func (c Config) OpenURL(eventID string) string {
	if c.App.OpenURLFmt == "" {
		return ""
	}
	return strings.ReplaceAll(c.App.OpenURLFmt, EventIDPlaceholder, eventID)
}
