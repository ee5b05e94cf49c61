package webhooks

import (
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

const (
	EventPing   = "ping"
	EventIssues = "issues"

	ActionOpened  = "opened"
	ActionLabeled = "labeled"
)

// Event is the closed set of deliveries the ingress understands. It is
// decided once per delivery and handled exhaustively by the fan-out.
type Event interface {
	eventName() string
}

type PingEvent struct {
	Zen          string
	HookID       int64
	RepositoryID int64
}

type IssueOpenedEvent struct {
	Issue core.IssueInfo
}

type IssueLabeledEvent struct {
	Issue core.IssueInfo
	Label string
}

// UnknownEvent is an allowed delivery with no handling, for example an
// event type added to the allow-list without a variant.
type UnknownEvent struct {
	Name   string
	Action string
}

func (PingEvent) eventName() string         { return EventPing }
func (IssueOpenedEvent) eventName() string  { return EventIssues }
func (IssueLabeledEvent) eventName() string { return EventIssues }
func (e UnknownEvent) eventName() string    { return e.Name }

type userPayload struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type issuePayload struct {
	Number  int            `json:"number"`
	Title   string         `json:"title"`
	HTMLURL string         `json:"html_url"`
	Draft   bool           `json:"draft"`
	User    *userPayload   `json:"user"`
	Labels  []labelPayload `json:"labels"`
}

type repositoryPayload struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	FullName string      `json:"full_name"`
	Owner    userPayload `json:"owner"`
}

// deliveryPayload covers the fields labelwatch reads from issues and ping
// deliveries.
type deliveryPayload struct {
	Action     string            `json:"action"`
	Issue      *issuePayload     `json:"issue"`
	Label      *labelPayload     `json:"label"`
	Repository repositoryPayload `json:"repository"`
	Sender     *userPayload      `json:"sender"`
	Zen        string            `json:"zen"`
	HookID     int64             `json:"hook_id"`
}

func (p deliveryPayload) issueNumber() int {
	if p.Issue == nil {
		return 0
	}
	return p.Issue.Number
}

func (p deliveryPayload) labelName() string {
	if p.Label == nil {
		return ""
	}
	return strings.TrimSpace(p.Label.Name)
}

func (p deliveryPayload) fingerprint(eventName string) Fingerprint {
	return NewFingerprint(eventName, p.Repository.ID, p.issueNumber(), p.Action, p.labelName())
}

// issueInfo projects the payload into the immutable issue snapshot carried by
// notification jobs.
func (p deliveryPayload) issueInfo() core.IssueInfo {
	owner, name := p.Repository.Owner.Login, p.Repository.Name
	if (owner == "" || name == "") && p.Repository.FullName != "" {
		if parts := strings.SplitN(p.Repository.FullName, "/", 2); len(parts) == 2 {
			owner, name = parts[0], parts[1]
		}
	}
	info := core.IssueInfo{
		RepoOwner:    owner,
		RepoName:     name,
		RepositoryID: p.Repository.ID,
		Action:       p.Action,
	}
	if p.Issue == nil {
		return info
	}
	info.Title = p.Issue.Title
	info.Number = p.Issue.Number
	info.URL = p.Issue.HTMLURL
	if p.Issue.User != nil {
		info.Author = p.Issue.User.Login
	}
	info.Labels = make([]string, 0, len(p.Issue.Labels))
	for _, label := range p.Issue.Labels {
		if name := strings.TrimSpace(label.Name); name != "" {
			info.Labels = append(info.Labels, name)
		}
	}
	return info
}

// classify decides the variant for a delivery that already passed the
// filter chain.
func classify(eventName string, payload deliveryPayload) Event {
	switch eventName {
	case EventPing:
		return PingEvent{Zen: payload.Zen, HookID: payload.HookID, RepositoryID: payload.Repository.ID}
	case EventIssues:
		switch payload.Action {
		case ActionOpened:
			return IssueOpenedEvent{Issue: payload.issueInfo()}
		case ActionLabeled:
			return IssueLabeledEvent{Issue: payload.issueInfo(), Label: payload.labelName()}
		}
	}
	return UnknownEvent{Name: eventName, Action: payload.Action}
}
