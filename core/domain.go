package core

import (
	"slices"
	"strings"
	"time"
)

type NotificationKind string

const (
	NotificationKindIssue NotificationKind = "issue"
	NotificationKindError NotificationKind = "error"
)

// IssueInfo is a projection of an issue taken when the event arrived. It is
// never refreshed from the repository host.
type IssueInfo struct {
	Title        string
	Number       int
	URL          string
	RepoOwner    string
	RepoName     string
	RepositoryID int64
	Author       string
	Labels       []string
	Action       string
}

func (i IssueInfo) FullRepoName() string {
	return strings.TrimSpace(i.RepoOwner) + "/" + strings.TrimSpace(i.RepoName)
}

func (i IssueInfo) Clone() IssueInfo {
	out := i
	out.Labels = slices.Clone(i.Labels)
	return out
}

type NotificationJob struct {
	ID             string
	UserID         string
	Kind           NotificationKind
	Issue          *IssueInfo
	TriggeredLabel string
	Message        string
	Attempts       int
	MaxAttempts    int
	NextEligibleAt time.Time
	CreatedAt      time.Time
	LastError      string
}

func (j NotificationJob) Clone() NotificationJob {
	out := j
	if j.Issue != nil {
		issue := j.Issue.Clone()
		out.Issue = &issue
	}
	return out
}

type RenderedMessage struct {
	Text   string
	Title  string
	URL    string
	Fields map[string]string
}

type QueueStats struct {
	Total     int
	Pending   int
	Eligible  int
	Failed    int
	Delivered int64
	Dropped   int64
	OldestAge time.Duration
}

// RepositorySubscriptions is the label set one user follows in one repository.
type RepositorySubscriptions struct {
	RepositoryID int64
	Owner        string
	Name         string
	Labels       []string
}

func (s RepositorySubscriptions) HasLabel(label string) bool {
	return slices.Contains(s.Labels, label)
}

type Repository struct {
	ID        string
	RemoteID  int64
	Owner     string
	Name      string
	WebhookID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID             string
	ExternalUserID string
	HasToken       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Subscription struct {
	ID           string
	UserID       string
	RepositoryID string
	Label        string
	CreatedAt    time.Time
}

type Label struct {
	Name        string
	Color       string
	Description string
}

type RemoteRepository struct {
	ID            int64
	Owner         string
	Name          string
	FullName      string
	Private       bool
	DefaultBranch string
	HTMLURL       string
}

type RemoteWebhook struct {
	ID     int64
	URL    string
	Events []string
	Active bool
}
