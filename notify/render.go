package notify

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

type Renderer interface {
	Render(job core.NotificationJob) (core.RenderedMessage, error)
}

type RendererFunc func(job core.NotificationJob) (core.RenderedMessage, error)

func (f RendererFunc) Render(job core.NotificationJob) (core.RenderedMessage, error) {
	return f(job)
}

// DefaultRenderer renders issue notifications as a short summary and error
// notifications as plain text.
type DefaultRenderer struct{}

func (DefaultRenderer) Render(job core.NotificationJob) (core.RenderedMessage, error) {
	switch job.Kind {
	case core.NotificationKindIssue:
		if job.Issue == nil {
			return core.RenderedMessage{}, core.BadInput("notify: issue notification has no issue", map[string]any{"job_id": job.ID})
		}
		return renderIssue(*job.Issue, job.TriggeredLabel), nil
	case core.NotificationKindError:
		return core.RenderedMessage{
			Title: "labelwatch error",
			Text:  strings.TrimSpace(job.Message),
		}, nil
	default:
		return core.RenderedMessage{}, core.BadInput("notify: unknown notification kind", map[string]any{
			"job_id": job.ID,
			"kind":   string(job.Kind),
		})
	}
}

func renderIssue(issue core.IssueInfo, label string) core.RenderedMessage {
	repo := issue.FullRepoName()
	fields := map[string]string{
		"repository": repo,
		"label":      label,
	}
	if issue.Author != "" {
		fields["author"] = issue.Author
	}
	if len(issue.Labels) > 0 {
		fields["labels"] = strings.Join(issue.Labels, ", ")
	}

	var text strings.Builder
	fmt.Fprintf(&text, "#%d %s", issue.Number, issue.Title)
	if issue.Author != "" {
		fmt.Fprintf(&text, "\nopened by %s", issue.Author)
	}
	fmt.Fprintf(&text, "\n%s", issue.URL)

	return core.RenderedMessage{
		Title:  fmt.Sprintf("[%s] issue labeled %q", repo, label),
		Text:   text.String(),
		URL:    issue.URL,
		Fields: fields,
	}
}

var _ Renderer = DefaultRenderer{}
