package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/alerts"
	"github.com/nixlim/zbx-alerting/internal/bridge"
	"github.com/nixlim/zbx-alerting/internal/config"
	"github.com/nixlim/zbx-alerting/internal/console"
	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/poller"
	"github.com/nixlim/zbx-alerting/internal/queue"
	"github.com/nixlim/zbx-alerting/internal/ratelimit"
	"github.com/nixlim/zbx-alerting/internal/resolver"
	"github.com/nixlim/zbx-alerting/internal/telemetry"
	"github.com/nixlim/zbx-alerting/internal/zabbix"
)

type flags struct {
	configPath  string
	once        bool
	dryRun      bool
	interval    time.Duration
	maxNotif    int
	insecure    bool
	jsonLogs    bool
	logLevel    string
	logFile     string
	consoleMode bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", config.DefaultPath, "Path to the TOML configuration file")
	flag.BoolVar(&f.once, "once", false, "Run a single poll cycle, wait for the rendered alerts, then exit")
	flag.BoolVar(&f.dryRun, "dry-run", false, "Log alerts instead of showing them")
	flag.DurationVar(&f.interval, "interval", 0, "Override app.poll_interval")
	flag.IntVar(&f.maxNotif, "max-notif", 0, fmt.Sprintf("Override app.max_notif (%d-%d)", config.MinMaxNotif, config.MaxMaxNotif))
	flag.BoolVar(&f.insecure, "insecure", false, "Allow a plain http:// backend URL")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Write logs as JSON")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&f.logFile, "log-file", "", "Write logs to this file instead of stderr")
	flag.BoolVar(&f.consoleMode, "console", false, "Show alerts in an interactive terminal console")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

func run(f flags) int {
	loadResult, err := config.LoadFrom(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zbx-alerting: config error: %v\n", err)
		return 1
	}
	cfg := loadResult.Config
	if err := applyFlags(&cfg, f); err != nil {
		fmt.Fprintf(os.Stderr, "zbx-alerting: config error: %v\n", err)
		return 1
	}
	if f.once && f.consoleMode {
		fmt.Fprintln(os.Stderr, "zbx-alerting: --once and --console cannot be combined")
		return 1
	}

	logOut, closeLog, err := logOutput(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zbx-alerting: %v\n", err)
		return 1
	}
	defer closeLog()

	logger, err := logging.New(logging.Options{Level: f.logLevel, JSON: f.jsonLogs, Output: logOut})
	if err != nil {
		fmt.Fprintf(os.Stderr, "zbx-alerting: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range loadResult.Warnings {
		logger.Warn("config warning", zap.String("warning", w))
	}

	app, err := newApp(cfg, f, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		if errors.Is(err, zabbix.ErrInsecureTransport) {
			fmt.Fprintln(os.Stderr, "zbx-alerting: refusing plain http backend URL; pass --insecure to allow it")
		} else {
			fmt.Fprintf(os.Stderr, "zbx-alerting: %v\n", err)
		}
		return 1
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("version", zabbix.Version),
		zap.String("url", cfg.Zabbix.URL),
		zap.Stringer("ack_filter", cfg.Zabbix.AckFilter),
		zap.Duration("poll_interval", cfg.App.PollInterval.Duration),
		zap.Int("max_notif", cfg.App.MaxNotif),
		zap.Bool("dry_run", f.dryRun),
		zap.Bool("once", f.once),
	)

	if f.once {
		return app.runOnce(ctx)
	}
	return app.runForever(ctx)
}

// applyFlags overlays command-line overrides and revalidates.
func applyFlags(cfg *config.Config, f flags) error {
	if f.interval != 0 {
		cfg.App.PollInterval.Duration = f.interval
	}
	if f.maxNotif != 0 {
		cfg.App.MaxNotif = f.maxNotif
	}
	if f.insecure {
		cfg.Zabbix.Insecure = true
	}
	return config.Validate(cfg)
}

// logOutput picks where logs go. The console owns the terminal, so without
// --log-file its logs are discarded.
func logOutput(f flags) (io.Writer, func(), error) {
	if f.logFile != "" {
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", f.logFile, err)
		}
		return file, func() { _ = file.Close() }, nil
	}
	if f.consoleMode {
		return io.Discard, func() {}, nil
	}
	return os.Stderr, func() {}, nil
}

type app struct {
	cfg    config.Config
	logger *zap.Logger

	table       *display.Table
	queue       *queue.Queue
	poller      *poller.Poller
	bridge      *bridge.Bridge
	dispatcher  *alerts.Dispatcher
	actions     alerts.ChanSink
	exporter    *telemetry.Exporter
	stopExport  context.CancelFunc
	stopConsole context.CancelFunc

	desktop *alerts.Desktop // nil unless desktop notifications are used
	program *tea.Program    // nil unless --console
}

func newApp(cfg config.Config, f flags, logger *zap.Logger) (*app, error) {
	client, err := zabbix.New(zabbix.Options{
		URL:            cfg.Zabbix.URL,
		Token:          cfg.Zabbix.Token,
		RequestTimeout: cfg.Zabbix.RequestTimeout.Duration,
		ConnectTimeout: cfg.Zabbix.ConnectTimeout.Duration,
		Insecure:       cfg.Zabbix.Insecure,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	res, err := resolver.New(client, cfg.Zabbix.Concurrency, cfg.App.HostCacheSize, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		table:   display.NewTable(),
		queue:   queue.New(cfg.App.QueueBound),
		actions: make(alerts.ChanSink, cfg.App.MaxNotif),
	}
	counters := telemetry.NewCounters()

	a.poller = poller.New(client, res,
		ratelimit.New(cfg.App.RateLimitMax, cfg.App.RateLimitWindow.Duration),
		a.table, a.queue, counters,
		poller.Options{
			AckFilter:   cfg.Zabbix.AckFilter,
			Limit:       cfg.Zabbix.Limit,
			MaxNotif:    cfg.App.MaxNotif,
			NotifyAcked: cfg.Notify.NotifyAcked,
			Interval:    cfg.App.PollInterval.Duration,
		}, logger)

	a.bridge = bridge.New(client, a.table, counters, bridge.Options{
		OpenURL:    cfg.OpenURL,
		AckTimeout: time.Duration(zabbix.MaxAttempts) * cfg.Zabbix.RequestTimeout.Duration,
		Opener:     alerts.NewPlatformOpener(),
	}, logger)

	var notifier alerts.Notifier
	switch {
	case f.dryRun:
		notifier = alerts.NewLogNotifier(logger)
	case f.consoleMode:
		// Key presses stop reaching the bridge once the console is gone.
		submitCtx, stopConsole := context.WithCancel(context.Background())
		a.stopConsole = stopConsole
		model := console.NewModel(a.table, a.actions,
			console.WithAllowUnack(cfg.Notify.AllowUnack),
			console.WithContext(submitCtx),
			console.WithOnQuit(stopConsole),
		)
		a.program = tea.NewProgram(model, tea.WithAltScreen())
		notifier = console.NewNotifier(a.program)
	default:
		a.desktop = alerts.NewPlatformNotifier(a.actions, logger)
		notifier = a.desktop
	}

	formatter := alerts.NewFormatter(alerts.FormatOptions{
		AppName:        cfg.Notify.AppName,
		Icon:           cfg.Notify.Icon,
		OpenLabel:      cfg.Notify.OpenLabel,
		Sticky:         cfg.Notify.Sticky,
		Timeout:        cfg.Notify.Timeout.Duration,
		DefaultTimeout: cfg.Notify.DefaultTimeout,
		AllowUnack:     cfg.Notify.AllowUnack,
		AskMessage:     cfg.Notify.AskMessage,
		CanOpen:        cfg.App.OpenURLFmt != "",
	})
	a.dispatcher = alerts.NewDispatcher(a.queue, a.table, formatter, notifier, counters, logger)

	if cfg.Telemetry.OTLPEndpoint != "" {
		a.exporter, err = telemetry.NewExporter(counters, telemetry.ExporterOptions{
			Endpoint: cfg.Telemetry.OTLPEndpoint,
			Interval: cfg.Telemetry.ExportInterval.Duration,
			Version:  zabbix.Version,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// runOnce polls once, renders what was admitted and handles the operator's
// answers until every shown alert is closed.
func (a *app) runOnce(ctx context.Context) int {
	var bg sync.WaitGroup
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		a.bridge.Run(ctx, a.actions)
	}()
	a.startExporter(ctx, &bg)

	cycleCtx, cancel := context.WithTimeout(ctx, 2*a.cfg.App.PollInterval.Duration)
	report, err := a.poller.RunCycle(cycleCtx)
	cancel()

	a.queue.Close()
	shown := a.dispatcher.Flush(ctx)
	if a.desktop != nil {
		a.desktop.Wait()
	}
	// Every sender is done; the bridge ends once it has handled the rest.
	close(a.actions)
	<-bridgeDone
	a.stopExporter()
	bg.Wait()

	a.logger.Info("single cycle finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("admitted", report.Admitted),
		zap.Int("rendered", shown),
		zap.Duration("latency", report.Duration),
	)
	if err != nil {
		return 1
	}
	return 0
}

func (a *app) runForever(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		a.bridge.Run(ctx, a.actions)
	}()
	go func() {
		defer bg.Done()
		a.dispatcher.Run(ctx)
	}()
	a.startExporter(ctx, &bg)

	code := 0
	if a.program != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			_ = a.poller.Run(ctx)
		}()
		go func() {
			<-ctx.Done()
			a.program.Quit()
		}()
		if _, err := a.program.Run(); err != nil {
			a.logger.Error("console failed", zap.Error(err))
			code = 1
		}
		a.stopConsole()
		cancel()
	} else if err := a.poller.Run(ctx); err != nil {
		a.logger.Error("poll loop failed", zap.Error(err))
		code = 1
		cancel()
	}

	a.logger.Info("shutting down")
	a.queue.Close()
	if a.desktop != nil {
		a.desktop.Wait()
	}
	a.stopExporter()
	bg.Wait()
	a.logger.Info("stopped")
	return code
}

func (a *app) startExporter(ctx context.Context, bg *sync.WaitGroup) {
	if a.exporter == nil {
		return
	}
	bg.Add(1)
	exportCtx, cancel := context.WithCancel(ctx)
	a.stopExport = cancel
	go func() {
		defer bg.Done()
		a.exporter.Run(exportCtx)
	}()
}

func (a *app) stopExporter() {
	if a.stopExport != nil {
		a.stopExport()
	}
}

func (a *app) close() {
	if a.exporter != nil {
		_ = a.exporter.Close()
	}
}
