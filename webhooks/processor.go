package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-labelwatch/core"
)

type Outcome string

const (
	OutcomeUnknown      Outcome = "unknown"
	OutcomePong         Outcome = "pong"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeFiltered     Outcome = "filtered"
	OutcomeDispatched   Outcome = "dispatched"
)

// ProcessedEvent is the terminal state of one delivery.
type ProcessedEvent struct {
	Outcome       Outcome
	EventType     string
	Action        string
	DeliveryID    string
	RepositoryID  int64
	IssueNumber   int
	FilterReason  string
	AffectedUsers int
	FailedUsers   int
	Zen           string
}

type Config struct {
	MaxPayloadBytes int64
	AllowedEvents   []string
	IgnoreBots      bool
	// Filters replaces the default issues filter chain when set.
	Filters []Filter
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

func DefaultConfig() Config {
	return Config{
		MaxPayloadBytes: 1 << 20,
		AllowedEvents:   []string{EventIssues, EventPing},
		IgnoreBots:      true,
	}
}

// ConfigFrom maps service configuration onto ingress settings.
func ConfigFrom(cfg core.WebhookConfig) Config {
	return Config{
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		AllowedEvents:   slices.Clone(cfg.AllowedEvents),
		IgnoreBots:      cfg.IgnoreBots,
	}
}

type Ingress struct {
	verifier     *HMACVerifier
	fingerprints *FingerprintSet
	directory    core.SubscriptionDirectory
	enqueuer     core.NotificationEnqueuer
	cfg          Config
	allowed      map[string]struct{}
	filters      []Filter
	logger       core.Logger
	metrics      core.MetricsRecorder
}

func NewIngress(
	verifier *HMACVerifier,
	fingerprints *FingerprintSet,
	directory core.SubscriptionDirectory,
	enqueuer core.NotificationEnqueuer,
	cfg Config,
) (*Ingress, error) {
	if fingerprints == nil {
		return nil, core.Internal("webhooks: fingerprint set is required", nil)
	}
	if directory == nil {
		return nil, core.Internal("webhooks: subscription directory is required", nil)
	}
	if enqueuer == nil {
		return nil, core.Internal("webhooks: notification enqueuer is required", nil)
	}
	if verifier == nil {
		verifier = NewHMACVerifier("", cfg.Logger)
	}
	defaults := DefaultConfig()
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if len(cfg.AllowedEvents) == 0 {
		cfg.AllowedEvents = defaults.AllowedEvents
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedEvents))
	for _, event := range cfg.AllowedEvents {
		if normalized := strings.ToLower(strings.TrimSpace(event)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	filters := cfg.Filters
	if len(filters) == 0 {
		filters = DefaultFilters(cfg.IgnoreBots)
	}
	return &Ingress{
		verifier:     verifier,
		fingerprints: fingerprints,
		directory:    directory,
		enqueuer:     enqueuer,
		cfg:          cfg,
		allowed:      allowed,
		filters:      filters,
		logger:       core.ResolveLogger("labelwatch.webhooks", nil, cfg.Logger),
		metrics:      core.EnsureMetrics(cfg.Metrics),
	}, nil
}

func (i *Ingress) Insecure() bool {
	return i.verifier.Insecure()
}

func (i *Ingress) MaxPayloadBytes() int64 {
	return i.cfg.MaxPayloadBytes
}

// ProcessDelivery runs one raw delivery through verification, dedup,
// filtering and fan-out.
func (i *Ingress) ProcessDelivery(ctx context.Context, body []byte, headers http.Header) (ProcessedEvent, error) {
	if headers == nil {
		headers = http.Header{}
	}
	result := ProcessedEvent{DeliveryID: strings.TrimSpace(headers.Get(DeliveryHeader))}

	if size := int64(len(body)); size > i.cfg.MaxPayloadBytes {
		return i.reject(ctx, result, core.PayloadTooLarge(size, i.cfg.MaxPayloadBytes))
	}
	if err := i.verifier.Verify(ctx, body, headers.Get(SignatureHeader)); err != nil {
		return i.reject(ctx, result, err)
	}
	eventName := strings.ToLower(strings.TrimSpace(headers.Get(EventHeader)))
	if eventName == "" {
		return i.reject(ctx, result, core.MissingHeader(EventHeader))
	}
	result.EventType = eventName
	if _, ok := i.allowed[eventName]; !ok {
		result.Outcome = OutcomeUnknown
		return i.finish(ctx, result), nil
	}

	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return i.reject(ctx, result, core.MalformedPayload(err))
	}
	result.Action = payload.Action
	result.RepositoryID = payload.Repository.ID
	result.IssueNumber = payload.issueNumber()

	key := payload.fingerprint(eventName)
	if !i.fingerprints.Claim(key) {
		result.Outcome = OutcomeDeduplicated
		return i.finish(ctx, result), nil
	}

	if eventName == EventIssues {
		if reason := runFilters(i.filters, payload); reason != "" {
			result.Outcome = OutcomeFiltered
			result.FilterReason = reason
			return i.finish(ctx, result), nil
		}
	}

	var (
		processed ProcessedEvent
		err       error
	)
	switch event := classify(eventName, payload).(type) {
	case IssueLabeledEvent:
		processed, err = i.fanOutLabeled(ctx, result, event)
	case IssueOpenedEvent:
		processed, err = i.fanOutOpened(ctx, result, event)
	case PingEvent:
		processed = i.handlePing(ctx, result, event)
	default:
		result.Outcome = OutcomeUnknown
		processed = i.finish(ctx, result)
	}
	if err != nil {
		// the delivery was not fanned out; let a redelivery through
		i.fingerprints.Release(key)
	}
	return processed, err
}

func (i *Ingress) handlePing(ctx context.Context, result ProcessedEvent, event PingEvent) ProcessedEvent {
	result.Outcome = OutcomePong
	result.Zen = event.Zen
	core.Log(ctx, i.logger, core.LevelInfo, "webhook ping received", map[string]any{
		"zen":     event.Zen,
		"hook_id": event.HookID,
	})
	return i.finish(ctx, result)
}

func (i *Ingress) fanOutLabeled(ctx context.Context, result ProcessedEvent, event IssueLabeledEvent) (ProcessedEvent, error) {
	subscribers, err := i.directory.FindSubscribersForLabel(ctx, event.Issue.RepositoryID, event.Label)
	if err != nil {
		return i.reject(ctx, result, directoryError(err))
	}
	for _, userID := range uniqueUsers(subscribers) {
		i.enqueue(ctx, &result, userID, event.Issue, event.Label)
	}
	result.Outcome = OutcomeDispatched
	return i.finish(ctx, result), nil
}

// fanOutOpened sends one notification per user across all issue labels. The
// reported trigger is the first issue label in that user's own subscription
// set for the repository.
func (i *Ingress) fanOutOpened(ctx context.Context, result ProcessedEvent, event IssueOpenedEvent) (ProcessedEvent, error) {
	foundVia := map[string]string{}
	users := make([]string, 0)
	for _, label := range event.Issue.Labels {
		subscribers, err := i.directory.FindSubscribersForLabel(ctx, event.Issue.RepositoryID, label)
		if err != nil {
			return i.reject(ctx, result, directoryError(err))
		}
		for _, userID := range subscribers {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				continue
			}
			if _, seen := foundVia[userID]; !seen {
				foundVia[userID] = label
				users = append(users, userID)
			}
		}
	}
	for _, userID := range users {
		label := i.triggerLabel(ctx, userID, event.Issue, foundVia[userID])
		i.enqueue(ctx, &result, userID, event.Issue, label)
	}
	result.Outcome = OutcomeDispatched
	return i.finish(ctx, result), nil
}

func (i *Ingress) triggerLabel(ctx context.Context, userID string, issue core.IssueInfo, fallback string) string {
	subscriptions, err := i.directory.GetUserSubscriptions(ctx, userID)
	if err != nil {
		core.Log(ctx, i.logger, core.LevelWarn, "user subscriptions lookup failed, using first matching label", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return fallback
	}
	for _, subscription := range subscriptions {
		if subscription.RepositoryID != issue.RepositoryID {
			continue
		}
		for _, label := range issue.Labels {
			if subscription.HasLabel(label) {
				return label
			}
		}
	}
	return fallback
}

func (i *Ingress) enqueue(ctx context.Context, result *ProcessedEvent, userID string, issue core.IssueInfo, label string) {
	if _, err := i.enqueuer.EnqueueIssueNotification(ctx, userID, issue, label); err != nil {
		result.FailedUsers++
		i.metrics.IncCounter(ctx, "labelwatch.webhooks.enqueue_failed", 1, nil)
		core.Log(ctx, i.logger, core.LevelError, "notification enqueue failed", map[string]any{
			"user_id":       userID,
			"repository_id": issue.RepositoryID,
			"issue":         issue.Number,
			"error":         err.Error(),
		})
		return
	}
	result.AffectedUsers++
}

func (i *Ingress) reject(ctx context.Context, result ProcessedEvent, err error) (ProcessedEvent, error) {
	mapped := core.MapError(err)
	i.metrics.IncCounter(ctx, "labelwatch.webhooks.rejected", 1, map[string]string{"code": mapped.TextCode})
	core.Log(ctx, i.logger, core.LevelWarn, "webhook delivery rejected", map[string]any{
		"delivery_id": result.DeliveryID,
		"event":       result.EventType,
		"code":        mapped.TextCode,
		"error":       err.Error(),
	})
	return result, err
}

func (i *Ingress) finish(ctx context.Context, result ProcessedEvent) ProcessedEvent {
	tags := map[string]string{"outcome": string(result.Outcome), "event": result.EventType}
	i.metrics.IncCounter(ctx, "labelwatch.webhooks.processed", 1, tags)
	if result.AffectedUsers > 0 {
		i.metrics.IncCounter(ctx, "labelwatch.webhooks.notifications", int64(result.AffectedUsers), tags)
	}
	core.Log(ctx, i.logger, core.LevelDebug, "webhook delivery processed", map[string]any{
		"delivery_id":    result.DeliveryID,
		"event":          result.EventType,
		"action":         result.Action,
		"outcome":        string(result.Outcome),
		"filter_reason":  result.FilterReason,
		"affected_users": result.AffectedUsers,
		"failed_users":   result.FailedUsers,
	})
	return result
}

func directoryError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "webhooks: subscription lookup failed").
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func uniqueUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, userID := range users {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, userID)
	}
	return out
}
