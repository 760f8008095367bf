package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Failure is the raw outcome of a failed request attempt
type Failure struct {
	Endpoint string
	Method   string
	Params   string

	// Response is nil when the request never got an answer
	Response *http.Response
	Body     []byte

	// Err is the transport error when Response is nil, or the decode error for a 2xx body
	Err error
}

// errorBody is the service's failure envelope
type errorBody struct {
	Error *struct {
		Status  int             `json:"status"`
		Name    string          `json:"name"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
}

// Classify maps a failure onto exactly one Kind. It never returns nil.
func Classify(f Failure) *Error {
	details := Details{
		Endpoint: f.Endpoint,
		Method:   f.Method,
		Params:   f.Params,
	}

	if f.Response == nil {
		if cerr, ok := AsError(f.Err); ok {
			return cerr
		}
		if isTimeout(f.Err) {
			return newError(KindTimeout, 0, "request timed out", details, f.Err)
		}
		msg := "no response received"
		if f.Err == nil {
			return newError(KindUnknown, 0, msg, details, nil)
		}
		return newError(KindNetwork, 0, msg, details, f.Err)
	}

	status := f.Response.StatusCode
	message, rawDetails := parseErrorBody(f.Body)

	if status >= 200 && status < 300 {
		if f.Err != nil {
			return newError(KindParse, status, "failed to decode response body", details, f.Err)
		}
		return newError(KindUnknown, status, "unexpected response", details, nil)
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		details.ValidationErrors = parseValidationErrors(rawDetails)
		return newError(KindValidation, status, message, details, nil)
	case http.StatusUnauthorized:
		return newError(KindAuthentication, status, message, details, nil)
	case http.StatusForbidden:
		return newError(KindAuthorization, status, message, details, nil)
	case http.StatusNotFound:
		return newError(KindNotFound, status, message, details, nil)
	case http.StatusRequestTimeout:
		return newError(KindTimeout, status, message, details, nil)
	case http.StatusTooManyRequests:
		details.RetryAfter = parseRetryAfter(f.Response.Header.Get("Retry-After"), time.Now())
		return newError(KindRateLimit, status, message, details, nil)
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return newError(KindServer, status, message, details, nil)
	default:
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", status)
		}
		return newError(KindUnknown, status, message, details, nil)
	}
}

// isTimeout reports whether a transport error came from an elapsed deadline
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseErrorBody extracts the message and details of an error envelope
func parseErrorBody(body []byte) (string, json.RawMessage) {
	if len(body) == 0 {
		return "", nil
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", nil
	}
	if eb.Error != nil {
		return eb.Error.Message, eb.Error.Details
	}
	return eb.Message, nil
}

// parseValidationErrors understands both {errors:[{path,message}]} and {field: messages}
func parseValidationErrors(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	var list struct {
		Errors []struct {
			Path    []any  `json:"path"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &list); err == nil && len(list.Errors) > 0 {
		out := make(map[string][]string, len(list.Errors))
		for _, e := range list.Errors {
			parts := make([]string, 0, len(e.Path))
			for _, p := range e.Path {
				parts = append(parts, fmt.Sprint(p))
			}
			field := strings.Join(parts, ".")
			out[field] = append(out[field], e.Message)
		}
		return out
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for field, value := range fields {
		var many []string
		if err := json.Unmarshal(value, &many); err == nil {
			out[field] = many
			continue
		}
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			out[field] = []string{one}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseRetryAfter reads delta-seconds, falling back to an HTTP date
func parseRetryAfter(value string, now time.Time) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return secs
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return int(math.Ceil(d.Seconds()))
		}
	}
	return 0
}
