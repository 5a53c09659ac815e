package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// applyEnv overlays environment variables on top of the file values.
// Blank variables are ignored; malformed ones are errors naming the variable.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("ZBX_URL", &cfg.Zabbix.URL)
	e.str("ZBX_TOKEN", &cfg.Zabbix.Token)
	e.integer("LIMIT", &cfg.Zabbix.Limit)
	e.integer("CONCURRENCY", &cfg.Zabbix.Concurrency)
	e.ackFilter("ACK_FILTER", &cfg.Zabbix.AckFilter)

	e.integer("MAX_NOTIF", &cfg.App.MaxNotif)
	e.integer("NOTIFY_QUEUE_BOUND", &cfg.App.QueueBound)
	e.integer("RATE_LIMIT_MAX", &cfg.App.RateLimitMax)
	e.duration("RATE_LIMIT_WINDOW", &cfg.App.RateLimitWindow)
	e.duration("POLL_INTERVAL", &cfg.App.PollInterval)
	e.str("ZBX_OPEN_URL_FMT", &cfg.App.OpenURLFmt)

	e.str("NOTIFY_APPNAME", &cfg.Notify.AppName)
	e.boolean("NOTIFY_STICKY", &cfg.Notify.Sticky)
	e.duration("NOTIFY_TIMEOUT", &cfg.Notify.Timeout)
	e.boolean("NOTIFY_ACKED", &cfg.Notify.NotifyAcked)
	e.str("NOTIFY_OPEN_LABEL", &cfg.Notify.OpenLabel)
	e.str("NOTIFY_ICON", &cfg.Notify.Icon)

	e.str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	if len(e.errs) > 0 {
		return fmt.Errorf("environment override error: %s", strings.Join(e.errs, "; "))
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return
	}
	dst.Duration = d
}

func (e *envReader) ackFilter(key string, dst *problem.AckFilter) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	f, err := problem.ParseAckFilter(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
		return
	}
	*dst = f
}
