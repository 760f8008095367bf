package content

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind is the closed set of failure classes
type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindRateLimit      Kind = "rate_limit"
	KindServer         Kind = "server"
	KindParse          Kind = "parse"
	KindUnknown        Kind = "unknown"
)

// Sentinels matched by *Error through errors.Is
var (
	ErrNetwork        = errors.New("content: network error")
	ErrTimeout        = errors.New("content: timeout")
	ErrAuthentication = errors.New("content: authentication required")
	ErrAuthorization  = errors.New("content: forbidden")
	ErrNotFound       = errors.New("content: not found")
	ErrValidation     = errors.New("content: validation failed")
	ErrRateLimit      = errors.New("content: rate limited")
	ErrServer         = errors.New("content: server error")
	ErrParse          = errors.New("content: unparseable response")
	ErrUnknown        = errors.New("content: unknown error")

	// ErrMaxRetriesExceeded matches errors returned after the retry budget ran out
	ErrMaxRetriesExceeded = errors.New("content: max retries exceeded")
)

var kindSentinels = map[Kind]error{
	KindNetwork:        ErrNetwork,
	KindTimeout:        ErrTimeout,
	KindAuthentication: ErrAuthentication,
	KindAuthorization:  ErrAuthorization,
	KindNotFound:       ErrNotFound,
	KindValidation:     ErrValidation,
	KindRateLimit:      ErrRateLimit,
	KindServer:         ErrServer,
	KindParse:          ErrParse,
	KindUnknown:        ErrUnknown,
}

var userMessages = map[Kind]string{
	KindNetwork:        "Unable to reach the content service. Check your connection and try again.",
	KindTimeout:        "The request took too long to complete. Please try again.",
	KindAuthentication: "Your session is not authorized. Please sign in again.",
	KindAuthorization:  "You do not have permission to access this content.",
	KindNotFound:       "The requested content could not be found.",
	KindValidation:     "Some of the submitted information is invalid.",
	KindRateLimit:      "Too many requests. Please wait a moment and try again.",
	KindServer:         "The content service is having trouble right now. Please try again later.",
	KindParse:          "The content service sent a response we could not read.",
	KindUnknown:        "Something went wrong. Please try again.",
}

// Details holds the request context of an Error
type Details struct {
	Endpoint string
	Method   string
	// Params is the encoded query string of the failed request
	Params    string
	Timestamp time.Time
	// RetryAfter is the Retry-After value in seconds, 0 when absent
	RetryAfter       int
	ValidationErrors map[string][]string
}

// Error is a classified content service failure
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Details    Details

	// Attempts and Exhausted are set on the error returned after the last retry
	Attempts  int
	Exhausted bool

	Err error
}

func newError(kind Kind, statusCode int, message string, details Details, cause error) *Error {
	if details.Timestamp.IsZero() {
		details.Timestamp = time.Now().UTC()
	}
	if message == "" {
		if statusCode > 0 {
			message = http.StatusText(statusCode)
		}
		if message == "" {
			message = string(kind) + " error"
		}
	}
	return &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Details:    details,
		Err:        cause,
	}
}

// NewError builds an Error for failures detected outside the transport, such as
// invalid local input. Timestamp is set to now.
func NewError(kind Kind, message string, details Details, cause error) *Error {
	return newError(kind, 0, message, details, cause)
}

// exhaustedError wraps the last failure once no retries remain
func exhaustedError(last *Error, attempts int) *Error {
	details := last.Details
	details.Timestamp = time.Now().UTC()
	return &Error{
		Kind:       last.Kind,
		StatusCode: last.StatusCode,
		Message:    fmt.Sprintf("max retries exceeded after %d attempts: %s", attempts, last.Message),
		Details:    details,
		Attempts:   attempts,
		Exhausted:  true,
		Err:        last,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "content %s error", e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Details.Method != "" || e.Details.Endpoint != "" {
		fmt.Fprintf(&sb, " %s %s", e.Details.Method, e.Details.Endpoint)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil && !e.Exhausted {
		fmt.Fprintf(&sb, " (%v)", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches kind sentinels, ErrMaxRetriesExceeded and other *Error values of the same kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrMaxRetriesExceeded {
		return e.Exhausted
	}
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// UserMessage returns text suitable for end users, independent of technical details
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// DebugInfo renders a multi-line string with diagnostic context
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kind: %s\n", e.Kind)
	fmt.Fprintf(&sb, "Message: %s\n", e.Message)
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, "Status Code: %d\n", e.StatusCode)
	}
	if e.Details.Method != "" {
		fmt.Fprintf(&sb, "Method: %s\n", e.Details.Method)
	}
	if e.Details.Endpoint != "" {
		fmt.Fprintf(&sb, "Endpoint: %s\n", e.Details.Endpoint)
	}
	if e.Details.Params != "" {
		fmt.Fprintf(&sb, "Params: %s\n", e.Details.Params)
	}
	fmt.Fprintf(&sb, "Timestamp: %s\n", e.Details.Timestamp.Format(time.RFC3339))
	if e.Details.RetryAfter > 0 {
		fmt.Fprintf(&sb, "Retry After: %ds\n", e.Details.RetryAfter)
	}
	if len(e.Details.ValidationErrors) > 0 {
		fields := make([]string, 0, len(e.Details.ValidationErrors))
		for field := range e.Details.ValidationErrors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(&sb, "Invalid %s: %s\n", field, strings.Join(e.Details.ValidationErrors[field], "; "))
		}
	}
	if e.Exhausted {
		fmt.Fprintf(&sb, "Attempts: %d\n", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, "Cause: %v\n", e.Err)
	}
	return sb.String()
}

// AsError extracts a *Error from err
func AsError(err error) (*Error, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// IsRetriable reports whether err is a transient failure worth retrying.
// Errors returned after retry exhaustion are terminal.
func IsRetriable(err error) bool {
	cerr, ok := AsError(err)
	if !ok || cerr.Exhausted {
		return false
	}
	switch cerr.Kind {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return cerr.StatusCode >= 500 ||
		cerr.StatusCode == http.StatusRequestTimeout ||
		cerr.StatusCode == http.StatusTooManyRequests
}
