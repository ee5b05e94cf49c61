package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-labelwatch/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMessenger struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []sentMessage
	onSend  func(userID string)
}

type sentMessage struct {
	UserID  string
	Message core.RenderedMessage
}

func (m *recordingMessenger) SendDirectMessage(_ context.Context, userID string, msg core.RenderedMessage) error {
	m.mu.Lock()
	fail := m.failFor[userID]
	onSend := m.onSend
	m.sent = append(m.sent, sentMessage{UserID: userID, Message: msg})
	m.mu.Unlock()
	if onSend != nil {
		onSend(userID)
	}
	if fail {
		return errors.New("channel unavailable")
	}
	return nil
}

func (m *recordingMessenger) users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, item := range m.sent {
		out = append(out, item.UserID)
	}
	return out
}

func sampleIssue() core.IssueInfo {
	return core.IssueInfo{
		Title:        "Crash on start",
		Number:       12,
		URL:          "https://github.com/acme/widgets/issues/12",
		RepoOwner:    "acme",
		RepoName:     "widgets",
		RepositoryID: 42,
		Author:       "octocat",
		Labels:       []string{"bug", "p1"},
		Action:       "labeled",
	}
}

func newTestQueue(messenger core.DirectMessenger, clock *fakeClock, mutate func(*Config)) *Queue {
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	if mutate != nil {
		mutate(&cfg)
	}
	queue, err := NewQueue(messenger, cfg)
	if err != nil {
		panic(err)
	}
	return queue
}
