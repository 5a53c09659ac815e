package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/zbx-alerting/internal/logging"
)

const (
	serviceName = "zbx-alerting"
	scopeName   = "github.com/nixlim/zbx-alerting/internal/telemetry"
)

// Exporter pushes Counters to an OTLP/gRPC metrics endpoint.
type Exporter struct {
	conn     *grpc.ClientConn
	client   colmetricspb.MetricsServiceClient
	counters *Counters
	interval time.Duration
	version  string
	started  time.Time
	logger   *zap.Logger
}

type ExporterOptions struct {
	Endpoint string // host:port, plaintext
	Interval time.Duration
	Version  string
	Logger   *zap.Logger
}

// NewExporter creates the client connection lazily; no RPC is made until
// the first export.
func NewExporter(counters *Counters, opts ExporterOptions) (*Exporter, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("telemetry: endpoint is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)

	conn, err := grpc.NewClient(opts.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating grpc client for %s: %w", opts.Endpoint, err)
	}
	return &Exporter{
		conn:     conn,
		client:   colmetricspb.NewMetricsServiceClient(conn),
		counters: counters,
		interval: opts.Interval,
		version:  opts.Version,
		started:  time.Now(),
		logger:   logger.Named("telemetry"),
	}, nil
}

// Run exports on every interval until ctx is done, then performs one last
// export bounded by a short timeout.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if err := e.Export(flushCtx); err != nil {
				e.logger.Debug("final metrics export failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := e.Export(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("metrics export failed", zap.Error(err))
			}
		}
	}
}

// Export sends the current counter values once.
func (e *Exporter) Export(ctx context.Context) error {
	req := e.buildRequest(time.Now())
	callCtx, cancel := context.WithTimeout(ctx, e.interval)
	defer cancel()

	started := time.Now()
	if _, err := e.client.Export(callCtx, req); err != nil {
		return fmt.Errorf("exporting metrics: %w", err)
	}
	e.logger.Debug("metrics exported",
		zap.Int("bytes", proto.Size(req)),
		zap.Duration("latency", time.Since(started)),
	)
	return nil
}

func (e *Exporter) Close() error {
	return e.conn.Close()
}

func (e *Exporter) buildRequest(now time.Time) *colmetricspb.ExportMetricsServiceRequest {
	start := uint64(e.started.UnixNano())
	ts := uint64(now.UnixNano())

	samples := e.counters.Snapshot()
	metrics := make([]*metricspb.Metric, 0, len(samples))
	for _, s := range samples {
		metrics = append(metrics, &metricspb.Metric{
			Name: s.Name,
			Unit: "1",
			Data: &metricspb.Metric_Sum{
				Sum: &metricspb.Sum{
					AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
					IsMonotonic:            true,
					DataPoints: []*metricspb.NumberDataPoint{
						{
							StartTimeUnixNano: start,
							TimeUnixNano:      ts,
							Value:             &metricspb.NumberDataPoint_AsInt{AsInt: s.Value},
						},
					},
				},
			},
		})
	}

	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringAttr("service.name", serviceName),
						stringAttr("service.version", e.version),
					},
				},
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Scope:   &commonpb.InstrumentationScope{Name: scopeName, Version: e.version},
						Metrics: metrics,
					},
				},
			},
		},
	}
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}
