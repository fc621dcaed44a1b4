package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// CodeDeactivated is the error code the API returns for deactivated users.
const CodeDeactivated = "DEACTIVATED"

var errEmptyBody = errors.New("empty response body")

// Response is a normalized API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response has a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Deactivated reports whether the API rejected the request because the user
// was deactivated.
func (r *Response) Deactivated() bool {
	if r == nil || r.OK() || len(r.Body) == 0 {
		return false
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return false
	}
	return body.Code == CodeDeactivated
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("status=%d", r.StatusCode)
}

// LogValue implements slog.LogValuer.
func (r *Response) LogValue() slog.Value {
	if r == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.Int("status", r.StatusCode),
		slog.Bool("deactivated", r.Deactivated()),
	)
}
