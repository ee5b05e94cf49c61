package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/notify"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDNotificationDelivery   = "labelwatch.notification.deliver"
	JobIDNotificationDeadLetter = "labelwatch.notification.dead_letter"
)

const (
	paramJobID          = "job_id"
	paramUserID         = "user_id"
	paramKind           = "kind"
	paramAttempts       = "attempts"
	paramMaxAttempts    = "max_attempts"
	paramTriggeredLabel = "triggered_label"
	paramMessage        = "message"
	paramLastError      = "last_error"
	paramCreatedAt      = "created_at"
	paramRepository     = "repository"
	paramRepositoryID   = "repository_id"
	paramIssueNumber    = "issue_number"
	paramIssueTitle     = "issue_title"
	paramIssueURL       = "issue_url"
)

// ToExecutionMessage maps a notification job onto a go-job message. The job
// id doubles as the idempotency key.
func ToExecutionMessage(jobID string, in core.NotificationJob) *job.ExecutionMessage {
	params := map[string]any{
		paramJobID:       in.ID,
		paramUserID:      in.UserID,
		paramKind:        string(in.Kind),
		paramAttempts:    in.Attempts,
		paramMaxAttempts: in.MaxAttempts,
	}
	if !in.CreatedAt.IsZero() {
		params[paramCreatedAt] = in.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if label := strings.TrimSpace(in.TriggeredLabel); label != "" {
		params[paramTriggeredLabel] = label
	}
	if in.Message != "" {
		params[paramMessage] = in.Message
	}
	if in.LastError != "" {
		params[paramLastError] = in.LastError
	}
	if in.Issue != nil {
		params[paramRepository] = in.Issue.FullRepoName()
		params[paramRepositoryID] = in.Issue.RepositoryID
		params[paramIssueNumber] = in.Issue.Number
		params[paramIssueTitle] = in.Issue.Title
		params[paramIssueURL] = in.Issue.URL
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(jobID),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(in.ID),
	}
}

// FromExecutionMessage recovers the notification fields carried by msg.
// Issue details beyond the ones in ToExecutionMessage are not restored.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.NotificationJob, error) {
	if msg == nil {
		return core.NotificationJob{}, fmt.Errorf("gojob: execution message is required")
	}
	params := msg.Parameters
	out := core.NotificationJob{
		ID:             stringParam(params, paramJobID),
		UserID:         stringParam(params, paramUserID),
		Kind:           core.NotificationKind(stringParam(params, paramKind)),
		Attempts:       intParam(params, paramAttempts),
		MaxAttempts:    intParam(params, paramMaxAttempts),
		TriggeredLabel: stringParam(params, paramTriggeredLabel),
		Message:        stringParam(params, paramMessage),
		LastError:      stringParam(params, paramLastError),
	}
	if out.ID == "" {
		out.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if out.ID == "" || out.UserID == "" {
		return core.NotificationJob{}, fmt.Errorf("gojob: message %q is missing job or user id", msg.JobID)
	}
	if raw := stringParam(params, paramCreatedAt); raw != "" {
		if created, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			out.CreatedAt = created
		}
	}
	if number := intParam(params, paramIssueNumber); number > 0 {
		owner, name, _ := strings.Cut(stringParam(params, paramRepository), "/")
		out.Issue = &core.IssueInfo{
			Number:       number,
			Title:        stringParam(params, paramIssueTitle),
			URL:          stringParam(params, paramIssueURL),
			RepoOwner:    owner,
			RepoName:     name,
			RepositoryID: int64Param(params, paramRepositoryID),
		}
	}
	return out, nil
}

// WorkerHookAdapter forwards notification delivery events to a go-job worker
// hook, so existing worker observers can watch the dispatch queue.
type WorkerHookAdapter struct {
	hook worker.Hook
}

func NewWorkerHookAdapter(hook worker.Hook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event notify.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapNotifyEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event notify.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapNotifyEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event notify.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapNotifyEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event notify.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapNotifyEvent(event))
}

// DeadLetterHook hands notifications dropped after their last attempt to a
// go-job queue for out-of-band handling.
type DeadLetterHook struct {
	notify.HookFuncs
	enqueuer queue.Enqueuer
	logger   core.Logger
}

func NewDeadLetterHook(enqueuer queue.Enqueuer, logger core.Logger) (*DeadLetterHook, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	hook := &DeadLetterHook{
		enqueuer: enqueuer,
		logger:   core.ResolveLogger("labelwatch.gojob.dead_letter", nil, logger),
	}
	hook.OnFailureFunc = hook.deadLetter
	return hook, nil
}

func (h *DeadLetterHook) deadLetter(ctx context.Context, event notify.Event) {
	msg := ToExecutionMessage(JobIDNotificationDeadLetter, event.Job)
	if event.Err != nil {
		msg.Parameters[paramLastError] = event.Err.Error()
	}
	if _, err := h.enqueuer.Enqueue(ctx, msg); err != nil {
		core.Log(ctx, h.logger, core.LevelError, "dead letter enqueue failed", map[string]any{
			"job_id":  event.Job.ID,
			"user_id": event.Job.UserID,
			"error":   err.Error(),
		})
	}
}

func mapNotifyEvent(event notify.Event) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(JobIDNotificationDelivery, event.Job),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func stringParam(params map[string]any, key string) string {
	switch value := params[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func intParam(params map[string]any, key string) int {
	return int(int64Param(params, key))
}

// int64Param accepts the numeric shapes a parameter map takes after a JSON
// round trip as well as the native ones.
func int64Param(params map[string]any, key string) int64 {
	switch value := params[key].(type) {
	case int:
		return int64(value)
	case int64:
		return value
	case float64:
		return int64(value)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

var (
	_ notify.Hook = (*WorkerHookAdapter)(nil)
	_ notify.Hook = (*DeadLetterHook)(nil)
)
