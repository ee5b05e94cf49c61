package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthenticationFailed = "LABELWATCH_AUTHENTICATION_FAILED"
	ErrorPayloadTooLarge      = "LABELWATCH_PAYLOAD_TOO_LARGE"
	ErrorMalformedPayload     = "LABELWATCH_MALFORMED_PAYLOAD"
	ErrorMissingHeader        = "LABELWATCH_MISSING_HEADER"
	ErrorRemoteAPI            = "LABELWATCH_REMOTE_API_ERROR"
	ErrorNetwork              = "LABELWATCH_NETWORK_ERROR"
	ErrorDeliveryFailed       = "LABELWATCH_DELIVERY_FAILED"
	ErrorBreakerOpen          = "LABELWATCH_BREAKER_OPEN"
	ErrorQueueFull            = "LABELWATCH_QUEUE_FULL"
	ErrorBadInput             = "LABELWATCH_BAD_INPUT"
	ErrorNotFound             = "LABELWATCH_NOT_FOUND"
	ErrorInternal             = "LABELWATCH_INTERNAL_ERROR"
)

const (
	MetadataRetryable    = "retryable"
	MetadataStatusCode   = "status_code"
	MetadataRetryAfterMS = "retry_after_ms"
	MetadataRemainingMS  = "remaining_ms"
	MetadataErrorClass   = "class"
)

func newError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(source error, category goerrors.Category, message string, code int, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func AuthenticationFailure(reason string) error {
	return newError(
		"labelwatch: webhook signature verification failed",
		goerrors.CategoryAuth,
		http.StatusUnauthorized,
		ErrorAuthenticationFailed,
		map[string]any{"reason": strings.TrimSpace(reason)},
	)
}

func PayloadTooLarge(size int64, limit int64) error {
	return newError(
		fmt.Sprintf("labelwatch: payload of %d bytes exceeds limit of %d bytes", size, limit),
		goerrors.CategoryBadInput,
		http.StatusRequestEntityTooLarge,
		ErrorPayloadTooLarge,
		map[string]any{"size": size, "limit": limit},
	)
}

func MalformedPayload(source error) error {
	return wrapError(
		source,
		goerrors.CategoryBadInput,
		"labelwatch: malformed webhook payload",
		http.StatusBadRequest,
		ErrorMalformedPayload,
		nil,
	)
}

func MissingHeader(header string) error {
	return newError(
		fmt.Sprintf("labelwatch: required header %q is missing", header),
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		ErrorMissingHeader,
		map[string]any{"header": header},
	)
}

// RemoteAPIError normalises a failed repository host call. Transient errors
// were retried and exhausted their budget.
func RemoteAPIError(source error, statusCode int, retryAfter time.Duration, transient bool, class string) error {
	metadata := map[string]any{
		MetadataStatusCode: statusCode,
		MetadataRetryable:  transient,
		MetadataErrorClass: class,
	}
	if retryAfter > 0 {
		metadata[MetadataRetryAfterMS] = retryAfter.Milliseconds()
	}
	category := goerrors.CategoryOperation
	code := statusCode
	switch {
	case statusCode == http.StatusTooManyRequests, class == "primary_limit", class == "secondary_limit":
		category = goerrors.CategoryRateLimit
	case statusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case statusCode == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
	case statusCode == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case statusCode == http.StatusUnprocessableEntity:
		category = goerrors.CategoryValidation
	}
	if code == 0 {
		code = http.StatusBadGateway
	}
	return wrapError(source, category, "labelwatch: remote api call failed", code, ErrorRemoteAPI, metadata)
}

func NetworkError(source error) error {
	return wrapError(
		source,
		goerrors.CategoryOperation,
		"labelwatch: network error calling remote api",
		http.StatusBadGateway,
		ErrorNetwork,
		map[string]any{MetadataRetryable: true, MetadataErrorClass: "network"},
	)
}

func DeliveryFailure(source error, jobID string, userID string, attempts int) error {
	return wrapError(
		source,
		goerrors.CategoryOperation,
		"labelwatch: notification delivery failed",
		http.StatusBadGateway,
		ErrorDeliveryFailed,
		map[string]any{"job_id": jobID, "user_id": userID, "attempts": attempts},
	)
}

func BreakerOpen(name string, remaining time.Duration) error {
	if remaining < 0 {
		remaining = 0
	}
	return newError(
		fmt.Sprintf("labelwatch: circuit %q is open", name),
		goerrors.CategoryOperation,
		http.StatusServiceUnavailable,
		ErrorBreakerOpen,
		map[string]any{
			"breaker":           name,
			MetadataRetryable:   true,
			MetadataRemainingMS: remaining.Milliseconds(),
		},
	)
}

func QueueFull(queue string, capacity int) error {
	return newError(
		fmt.Sprintf("labelwatch: %s queue is full", queue),
		goerrors.CategoryRateLimit,
		http.StatusServiceUnavailable,
		ErrorQueueFull,
		map[string]any{"queue": queue, "capacity": capacity, MetadataRetryable: true},
	)
}

func BadInput(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

func Internal(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

// HasTextCode reports whether err carries the given text code anywhere in its chain.
func HasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

func IsRetryable(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return false
	}
	retryable, _ := rich.Metadata[MetadataRetryable].(bool)
	return retryable
}

// RemainingRecovery returns the breaker recovery time carried by a BreakerOpen error.
func RemainingRecovery(err error) (time.Duration, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ErrorBreakerOpen {
		return 0, false
	}
	switch typed := rich.Metadata[MetadataRemainingMS].(type) {
	case int64:
		return time.Duration(typed) * time.Millisecond, true
	case int:
		return time.Duration(typed) * time.Millisecond, true
	case float64:
		return time.Duration(typed) * time.Millisecond, true
	}
	return 0, true
}

// MapError normalises any error into a go-errors envelope with an HTTP code
// and text code set.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureEnvelope(rich)
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrNotFound), strings.Contains(msg, "not found"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}
	return ensureEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

var ErrNotFound = errors.New("labelwatch: not found")

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthenticationFailed
	case goerrors.CategoryRateLimit, goerrors.CategoryOperation:
		return ErrorRemoteAPI
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
