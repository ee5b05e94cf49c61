package core

import (
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestTaxonomy_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		status   int
		category goerrors.Category
	}{
		{"auth", AuthenticationFailure("signature mismatch"), ErrorAuthenticationFailed, http.StatusUnauthorized, goerrors.CategoryAuth},
		{"too large", PayloadTooLarge(20, 10), ErrorPayloadTooLarge, http.StatusRequestEntityTooLarge, goerrors.CategoryBadInput},
		{"malformed", MalformedPayload(stderrors.New("unexpected EOF")), ErrorMalformedPayload, http.StatusBadRequest, goerrors.CategoryBadInput},
		{"missing header", MissingHeader("X-GitHub-Event"), ErrorMissingHeader, http.StatusBadRequest, goerrors.CategoryBadInput},
		{"breaker", BreakerOpen("github", time.Second), ErrorBreakerOpen, http.StatusServiceUnavailable, goerrors.CategoryOperation},
		{"queue full", QueueFull("notify", 1), ErrorQueueFull, http.StatusServiceUnavailable, goerrors.CategoryRateLimit},
	}
	for _, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", tc.name, tc.err)
		}
		if rich.TextCode != tc.textCode {
			t.Fatalf("%s: expected text code %q, got %q", tc.name, tc.textCode, rich.TextCode)
		}
		if rich.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, rich.Code)
		}
		if rich.Category != tc.category {
			t.Fatalf("%s: expected category %q, got %q", tc.name, tc.category, rich.Category)
		}
	}
}

func TestRemoteAPIError_CarriesStatusAndRetryAfter(t *testing.T) {
	err := RemoteAPIError(stderrors.New("boom"), http.StatusBadGateway, 3*time.Second, true, "server")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected envelope")
	}
	if rich.Metadata[MetadataStatusCode] != http.StatusBadGateway {
		t.Fatalf("expected status metadata, got %v", rich.Metadata[MetadataStatusCode])
	}
	if rich.Metadata[MetadataRetryAfterMS] != int64(3000) {
		t.Fatalf("expected retry after metadata, got %v", rich.Metadata[MetadataRetryAfterMS])
	}
	if !IsRetryable(err) {
		t.Fatalf("expected transient remote error to be retryable")
	}

	notFound := RemoteAPIError(stderrors.New("missing"), http.StatusNotFound, 0, false, "permanent")
	if !goerrors.As(notFound, &rich) || rich.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found category for 404")
	}
	if IsRetryable(notFound) {
		t.Fatalf("expected permanent error to be non-retryable")
	}
}

func TestBreakerOpen_RemainingRecovery(t *testing.T) {
	err := BreakerOpen("github", 1500*time.Millisecond)
	if !IsRetryable(err) {
		t.Fatalf("expected breaker open to be retryable")
	}
	remaining, ok := RemainingRecovery(err)
	if !ok || remaining != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s remaining, got %v ok=%v", remaining, ok)
	}
	if _, ok := RemainingRecovery(stderrors.New("plain")); ok {
		t.Fatalf("expected plain error to carry no recovery time")
	}
	if !HasTextCode(err, ErrorBreakerOpen) {
		t.Fatalf("expected breaker text code")
	}
}

func TestMapError_NormalisesPlainErrors(t *testing.T) {
	mapped := MapError(stderrors.New("sqlstore: user id is required"))
	if mapped.TextCode != ErrorBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}
	mapped = MapError(ErrNotFound)
	if mapped.TextCode != ErrorNotFound || mapped.Code != http.StatusNotFound {
		t.Fatalf("expected not found envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	rich := AuthenticationFailure("x")
	if MapError(rich).TextCode != ErrorAuthenticationFailed {
		t.Fatalf("expected rich error to keep its text code")
	}
}
