package config

import (
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

func DefaultConfig() Config {
	return Config{
		Zabbix: ZabbixConfig{
			Limit:          20,
			Concurrency:    4,
			AckFilter:      problem.AckFilterUnacked,
			RequestTimeout: Duration{10 * time.Second},
			ConnectTimeout: Duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			AppName:    "Alerting",
			OpenLabel:  "Open",
			AskMessage: true,
			AllowUnack: true,
		},
		App: AppConfig{
			MaxNotif:        5,
			QueueBound:      64,
			RateLimitMax:    3,
			RateLimitWindow: Duration{5 * time.Second},
			PollInterval:    Duration{30 * time.Second},
		},
		Telemetry: TelemetryConfig{
			ExportInterval: Duration{15 * time.Second},
		},
	}
}
