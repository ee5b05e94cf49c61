package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-labelwatch/transport"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func testConfig(recorder *sleepRecorder, now time.Time) Config {
	return Config{
		MaxRetries:        3,
		Backoff:           fixedBackoff(),
		DefaultRetryAfter: time.Minute,
		Now:               func() time.Time { return now },
		Sleep:             recorder.Sleep,
	}
}

func okResponse(headers map[string]string) *transport.Response {
	header := http.Header{}
	for key, value := range headers {
		header.Set(key, value)
	}
	return &transport.Response{StatusCode: http.StatusOK, Header: header}
}

func apiError(status int, message string, headers map[string]string) error {
	header := http.Header{}
	for key, value := range headers {
		header.Set(key, value)
	}
	return &transport.APIError{StatusCode: status, Message: message, Header: header}
}

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
