package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-labelwatch/core"
)

// APIError is a non-2xx response from the repository host. Header is kept so
// rate-limit state can be updated from failed calls too.
type APIError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
	Errors           []APIErrorDetail
	Header           http.Header
}

type APIErrorDetail struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "transport: api error"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "transport: api error %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, detail := range e.Errors {
		if detail.Message != "" {
			b.WriteString("; ")
			b.WriteString(detail.Message)
		}
	}
	return b.String()
}

// NetworkError marks a failure to obtain any response at all.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure looks like a reset, refusal or timeout.
func (e *NetworkError) Transient() bool {
	if e == nil || e.Err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(e.Err, syscall.ECONNRESET),
		errors.Is(e.Err, syscall.ECONNREFUSED),
		errors.Is(e.Err, syscall.EPIPE),
		errors.Is(e.Err, io.ErrUnexpectedEOF),
		errors.Is(e.Err, io.EOF):
		return true
	}
	var opErr *net.OpError
	return errors.As(e.Err, &opErr)
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func AsNetworkError(err error) (*NetworkError, bool) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.ErrorRemoteAPI
	default:
		return core.ErrorInternal
	}
}
