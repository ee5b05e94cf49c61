package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/transport"
)

type Class int

const (
	ClassNone Class = iota
	ClassPrimaryLimit
	ClassSecondaryLimit
	ClassServer
	ClassNetwork
	ClassBreakerOpen
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPrimaryLimit:
		return "primary_limit"
	case ClassSecondaryLimit:
		return "secondary_limit"
	case ClassServer:
		return "server"
	case ClassNetwork:
		return "network"
	case ClassBreakerOpen:
		return "breaker_open"
	default:
		return "permanent"
	}
}

// Backoff reports whether the class is retried with exponential backoff and
// a bounded budget.
func (c Class) Backoff() bool {
	return c == ClassSecondaryLimit || c == ClassServer || c == ClassNetwork
}

func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent
	}
	if core.HasTextCode(err, core.ErrorBreakerOpen) {
		return ClassBreakerOpen
	}
	if apiErr, ok := transport.AsAPIError(err); ok {
		return classifyAPIError(apiErr)
	}
	if netErr, ok := transport.AsNetworkError(err); ok && netErr.Transient() {
		return ClassNetwork
	}
	return ClassPermanent
}

func classifyAPIError(apiErr *transport.APIError) Class {
	status := apiErr.StatusCode
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		if remaining, ok := parseHeaderInt(apiErr.Header, HeaderRemaining); ok && remaining == 0 {
			return ClassPrimaryLimit
		}
		if isSecondaryLimitMessage(apiErr.Message) || status == http.StatusTooManyRequests {
			return ClassSecondaryLimit
		}
		return ClassPermanent
	case status >= http.StatusInternalServerError:
		return ClassServer
	default:
		return ClassPermanent
	}
}

func isSecondaryLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "secondary rate limit") ||
		strings.Contains(lower, "abuse") ||
		strings.Contains(lower, "rate limit")
}

// CountsAsBreakerFailure keeps client and rate-limit errors from tripping a
// breaker: only server and network failures say the host is unhealthy.
func CountsAsBreakerFailure(err error) bool {
	switch Classify(err) {
	case ClassServer, ClassNetwork:
		return true
	default:
		return false
	}
}
