package zabbix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// dataString renders the error's data member, which the backend sends as a
// plain string but which may be any JSON value.
func (e *rpcError) dataString() string {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return string(e.Data)
}

var authMarkers = []string{
	"not authorised",
	"not authorized",
	"session terminated",
	"re-login",
	"api token expired",
	"invalid token",
}

func (e *rpcError) isAuth() bool {
	text := strings.ToLower(e.Message + " " + e.dataString())
	for _, m := range authMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

const previewLimit = 256

func bodyPreview(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) <= previewLimit {
		return string(body)
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "…"
}

// flexString accepts a JSON string or number. Event and host ids arrive as
// strings but some proxies re-encode them as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a decimal string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", string(s))
	}
	*f = flexInt(n)
	return nil
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("expected boolean, got %s", b)
	}
	return nil
}

type rawProblem struct {
	EventID      flexString `json:"eventid"`
	ObjectID     flexString `json:"objectid"`
	Name         string     `json:"name"`
	Severity     *flexInt   `json:"severity"`
	Clock        flexInt    `json:"clock"`
	LastChange   *flexInt   `json:"lastchange"`
	Acknowledged flexBool   `json:"acknowledged"`
	Hosts        []rawHost  `json:"hosts"`
}

type rawHost struct {
	HostID flexString `json:"hostid"`
	Host   string     `json:"host"`
	Name   string     `json:"name"`
	Status *flexInt   `json:"status"`
}

// displayName picks name, then host, then "".
func (h rawHost) displayName() string {
	if n := strings.TrimSpace(h.Name); n != "" {
		return n
	}
	return strings.TrimSpace(h.Host)
}

type ackResponse struct {
	EventIDs []flexString `json:"eventids"`
}
