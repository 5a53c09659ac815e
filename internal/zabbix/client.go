// Package zabbix is the backend client: JSON-RPC 2.0 over HTTPS with
// correlation ids and bounded retry of transient failures.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/logging"
)

const (
	// MaxAttempts bounds every call, the first try included.
	MaxAttempts = 3

	CorrelationHeader = "X-Correlation-ID"
	contentType       = "application/json-rpc"
	maxBodyBytes      = 8 << 20
)

// Version is reported in the User-Agent header.
var Version = "dev"

type Options struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Insecure       bool
	Logger         *zap.Logger

	// HTTPClient replaces the client built from the timeouts above.
	HTTPClient *http.Client
	// NewBackOff builds the retry schedule for one call. Nil uses
	// DefaultBackOff.
	NewBackOff func() backoff.BackOff
}

type Client struct {
	endpoint   string
	token      string
	http       *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
	nextID     atomic.Uint64
}

// New validates opts and builds a client. Plain http is rejected with
// ErrInsecureTransport unless opts.Insecure is set.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("parsing zabbix url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("zabbix url %q has no host", opts.URL)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !opts.Insecure {
			return nil, ErrInsecureTransport
		}
	default:
		return nil, fmt.Errorf("zabbix url %q: unsupported scheme %q", opts.URL, u.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.RequestTimeout, opts.ConnectTimeout)
	}
	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)

	return &Client{
		endpoint:   u.String(),
		token:      opts.Token,
		http:       httpClient,
		logger:     logger.Named("zabbix"),
		newBackOff: newBackOff,
	}, nil
}

func newHTTPClient(requestTimeout, connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.IdleConnTimeout = 30 * time.Second
	return &http.Client{Timeout: requestTimeout, Transport: transport}
}

// DefaultBackOff is 200ms doubling with 25% jitter, capped at 2s.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// call performs one JSON-RPC method and decodes its result into out.
// Every attempt carries a fresh correlation id.
func (c *Client) call(ctx context.Context, method string, params, out any) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
		Auth:    c.token,
	})
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", method, err)
	}

	var (
		attempt       int
		correlationID string
		result        json.RawMessage
	)
	operation := func() error {
		attempt++
		correlationID = uuid.Must(uuid.NewV7()).String()
		started := time.Now()

		raw, err := c.roundTrip(ctx, method, correlationID, body)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var te *TransientError
			if errors.As(err, &te) {
				te.Attempts = attempt
				return err
			}
			return backoff.Permanent(err)
		}
		result = raw

		c.logger.Debug("zabbix call succeeded",
			zap.String("method", method),
			zap.String("correlation_id", correlationID),
			zap.Int("attempt", attempt),
			zap.Duration("latency", time.Since(started)),
		)
		return nil
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("retrying zabbix call",
			zap.String("method", method),
			zap.String("correlation_id", correlationID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), MaxAttempts-1), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctx.Err() != nil && !IsTransient(err) {
			return correlationID, fmt.Errorf("zabbix %s: %w", method, err)
		}
		return correlationID, err
	}

	if out != nil {
		if err := json.Unmarshal(result, out); err != nil {
			return correlationID, &MalformedResponseError{
				Method:        method,
				CorrelationID: correlationID,
				Reason:        "result does not match the expected shape",
				Preview:       bodyPreview(result),
				Err:           err,
			}
		}
	}
	return correlationID, nil
}

// roundTrip sends one request and classifies the outcome. A nil error means
// the response carried a result member.
func (c *Client) roundTrip(ctx context.Context, method, correlationID string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "zbx-alerting/"+Version)
	req.Header.Set(CorrelationHeader, correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Method: method, CorrelationID: correlationID, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Method: method, CorrelationID: correlationID, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &TransientError{
			Method:        method,
			CorrelationID: correlationID,
			StatusCode:    resp.StatusCode,
			Err:           fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{
			Method:        method,
			CorrelationID: correlationID,
			StatusCode:    resp.StatusCode,
			Message:       http.StatusText(resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Method: method, CorrelationID: correlationID, Err: fmt.Errorf("reading body: %w", err)}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &MalformedResponseError{
			Method:        method,
			CorrelationID: correlationID,
			Reason:        "invalid JSON",
			Preview:       bodyPreview(data),
			Err:           err,
		}
	}
	if envelope.Error != nil {
		if envelope.Error.isAuth() {
			return nil, &AuthError{
				Method:        method,
				CorrelationID: correlationID,
				Message:       strings.TrimSpace(envelope.Error.Message + " " + envelope.Error.dataString()),
			}
		}
		return nil, &APIError{
			Method:        method,
			CorrelationID: correlationID,
			Code:          envelope.Error.Code,
			Message:       envelope.Error.Message,
			Data:          envelope.Error.dataString(),
		}
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil, &MalformedResponseError{
			Method:        method,
			CorrelationID: correlationID,
			Reason:        "missing result",
			Preview:       bodyPreview(data),
		}
	}
	return envelope.Result, nil
}
