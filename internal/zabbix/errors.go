package zabbix

import (
	"errors"
	"fmt"
)

// ErrInsecureTransport is returned by New for a non-https URL when the
// insecure override is not set.
var ErrInsecureTransport = errors.New("zabbix: only https URLs are accepted without the insecure override")

// TransientError is a failure that was retried and kept failing: timeouts,
// connection errors, 5xx and 408 responses, truncated bodies.
type TransientError struct {
	Method        string
	CorrelationID string
	Attempts      int
	StatusCode    int // zero for transport failures
	Err           error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("zabbix %s: HTTP %d after %d attempt(s)", e.Method, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("zabbix %s: transient failure after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the token was rejected. It is never retried.
type AuthError struct {
	Method        string
	CorrelationID string
	StatusCode    int
	Message       string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("zabbix %s: authentication failed (HTTP %d)", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("zabbix %s: authentication failed: %s", e.Method, e.Message)
}

// MalformedResponseError covers bodies that are not a usable JSON-RPC
// response: invalid JSON, a missing result, or a field that does not parse.
type MalformedResponseError struct {
	Method        string
	CorrelationID string
	Reason        string
	Preview       string
	Err           error
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("zabbix %s: malformed response: %s", e.Method, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Preview != "" {
		msg += " (body: " + e.Preview + ")"
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// APIError is a JSON-RPC error object, or a non-retryable HTTP status,
// that is not an authentication failure.
type APIError struct {
	Method        string
	CorrelationID string
	Code          int
	Message       string
	Data          string
	StatusCode    int
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.Code == 0 {
		return fmt.Sprintf("zabbix %s: unexpected HTTP status %d", e.Method, e.StatusCode)
	}
	if e.Data != "" {
		return fmt.Sprintf("zabbix %s: api error %d: %s: %s", e.Method, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("zabbix %s: api error %d: %s", e.Method, e.Code, e.Message)
}

func IsTransient(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}

func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsMalformed(err error) bool {
	var e *MalformedResponseError
	return errors.As(err, &e)
}

// CorrelationID extracts the correlation id of the failing request from any
// client error, or returns "".
func CorrelationID(err error) string {
	var (
		te *TransientError
		ae *AuthError
		me *MalformedResponseError
		pe *APIError
	)
	switch {
	case errors.As(err, &te):
		return te.CorrelationID
	case errors.As(err, &ae):
		return ae.CorrelationID
	case errors.As(err, &me):
		return me.CorrelationID
	case errors.As(err, &pe):
		return pe.CorrelationID
	}
	return ""
}
