package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-labelwatch/core"
)

const testSecret = "It's a Secret to Everybody"

type stubDirectory struct {
	// byLabel maps repository id and label to subscriber ids.
	byLabel map[int64]map[string][]string
	byUser  map[string][]core.RepositorySubscriptions
	err     error
	calls   int
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		byLabel: map[int64]map[string][]string{},
		byUser:  map[string][]core.RepositorySubscriptions{},
	}
}

func (d *stubDirectory) subscribe(userID string, repositoryID int64, labels ...string) {
	if d.byLabel[repositoryID] == nil {
		d.byLabel[repositoryID] = map[string][]string{}
	}
	for _, label := range labels {
		d.byLabel[repositoryID][label] = append(d.byLabel[repositoryID][label], userID)
	}
	d.byUser[userID] = append(d.byUser[userID], core.RepositorySubscriptions{
		RepositoryID: repositoryID,
		Owner:        "acme",
		Name:         "widgets",
		Labels:       labels,
	})
}

func (d *stubDirectory) FindSubscribersForLabel(_ context.Context, repositoryID int64, label string) ([]string, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]string(nil), d.byLabel[repositoryID][label]...), nil
}

func (d *stubDirectory) GetUserSubscriptions(_ context.Context, userID string) ([]core.RepositorySubscriptions, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byUser[userID], nil
}

type enqueued struct {
	UserID string
	Issue  core.IssueInfo
	Label  string
}

type stubEnqueuer struct {
	mu      sync.Mutex
	jobs    []enqueued
	failFor map[string]bool
}

func (e *stubEnqueuer) EnqueueIssueNotification(_ context.Context, userID string, issue core.IssueInfo, label string) (core.NotificationJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failFor[userID] {
		return core.NotificationJob{}, errors.New("queue unavailable")
	}
	e.jobs = append(e.jobs, enqueued{UserID: userID, Issue: issue, Label: label})
	return core.NotificationJob{ID: userID, UserID: userID, Issue: &issue, TriggeredLabel: label}, nil
}

func (e *stubEnqueuer) EnqueueErrorNotification(_ context.Context, userID string, message string) (core.NotificationJob, error) {
	return core.NotificationJob{UserID: userID, Message: message}, nil
}

func (e *stubEnqueuer) byUser() map[string]enqueued {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]enqueued{}
	for _, job := range e.jobs {
		out[job.UserID] = job
	}
	return out
}

type testIngress struct {
	ingress   *Ingress
	directory *stubDirectory
	enqueuer  *stubEnqueuer
	clock     *time.Time
}

func newTestIngress(secret string, mutate func(*Config)) testIngress {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	directory := newStubDirectory()
	enqueuer := &stubEnqueuer{failFor: map[string]bool{}}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	fingerprints := NewFingerprintSet(FingerprintOptions{Now: func() time.Time { return *clock }})
	ingress, err := NewIngress(NewHMACVerifier(secret, nil), fingerprints, directory, enqueuer, cfg)
	if err != nil {
		panic(err)
	}
	return testIngress{ingress: ingress, directory: directory, enqueuer: enqueuer, clock: clock}
}

func issuesBody(action string, number int, labels []string, added string) []byte {
	labelObjects := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		labelObjects = append(labelObjects, map[string]any{"name": label})
	}
	payload := map[string]any{
		"action": action,
		"issue": map[string]any{
			"number":   number,
			"title":    "Widget explodes",
			"html_url": "https://github.com/acme/widgets/issues/42",
			"user":     map[string]any{"login": "octocat", "type": "User"},
			"labels":   labelObjects,
		},
		"repository": map[string]any{
			"id":        int64(1001),
			"name":      "widgets",
			"full_name": "acme/widgets",
			"owner":     map[string]any{"login": "acme"},
		},
	}
	if added != "" {
		payload["label"] = map[string]any{"name": added}
	}
	body, _ := json.Marshal(payload)
	return body
}

func deliveryHeaders(event string, secret string, body []byte) http.Header {
	headers := http.Header{}
	if event != "" {
		headers.Set(EventHeader, event)
	}
	headers.Set(DeliveryHeader, "delivery-1")
	if secret != "" {
		headers.Set(SignatureHeader, Sign(secret, body))
	}
	return headers
}

type loggedEntry struct {
	level   string
	message string
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]loggedEntry
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]loggedEntry{}}
}

func (l captureLogger) record(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, loggedEntry{level: level, message: message})
}

func (l captureLogger) Trace(msg string, _ ...any) { l.record("trace", msg) }
func (l captureLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l captureLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l captureLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l captureLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l captureLogger) Fatal(msg string, _ ...any) { l.record("fatal", msg) }

func (l captureLogger) WithContext(context.Context) core.Logger { return l }

func (l captureLogger) count(level, fragment string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range *l.entries {
		if entry.level == level && strings.Contains(entry.message, fragment) {
			n++
		}
	}
	return n
}
