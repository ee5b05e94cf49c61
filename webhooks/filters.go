package webhooks

import "strings"

const (
	FilterReasonMissingIssue      = "missing_issue"
	FilterReasonUnsupportedAction = "unsupported_action"
	FilterReasonDraft             = "draft_issue"
	FilterReasonBotAuthor         = "bot_author"
	FilterReasonMissingLabel      = "missing_label"
	FilterReasonNoLabels          = "no_labels"
)

// Filter inspects an issues delivery and returns a non-empty reason when it
// must not produce notifications.
type Filter func(payload deliveryPayload) string

// DefaultFilters is the issues filter chain in evaluation order. The first
// filter returning a reason wins.
func DefaultFilters(ignoreBots bool) []Filter {
	filters := []Filter{
		missingIssueFilter,
		unsupportedActionFilter,
		draftFilter,
	}
	if ignoreBots {
		filters = append(filters, botAuthorFilter)
	}
	return append(filters, missingLabelFilter, noLabelsFilter)
}

func runFilters(filters []Filter, payload deliveryPayload) string {
	for _, filter := range filters {
		if reason := filter(payload); reason != "" {
			return reason
		}
	}
	return ""
}

func missingIssueFilter(payload deliveryPayload) string {
	if payload.Issue == nil {
		return FilterReasonMissingIssue
	}
	return ""
}

func unsupportedActionFilter(payload deliveryPayload) string {
	switch payload.Action {
	case ActionOpened, ActionLabeled:
		return ""
	}
	return FilterReasonUnsupportedAction
}

func draftFilter(payload deliveryPayload) string {
	if payload.Issue != nil && payload.Issue.Draft {
		return FilterReasonDraft
	}
	return ""
}

func botAuthorFilter(payload deliveryPayload) string {
	if payload.Issue != nil && isBot(payload.Issue.User) {
		return FilterReasonBotAuthor
	}
	return ""
}

func missingLabelFilter(payload deliveryPayload) string {
	if payload.Action == ActionLabeled && payload.labelName() == "" {
		return FilterReasonMissingLabel
	}
	return ""
}

func noLabelsFilter(payload deliveryPayload) string {
	if payload.Action != ActionOpened || payload.Issue == nil {
		return ""
	}
	for _, label := range payload.Issue.Labels {
		if strings.TrimSpace(label.Name) != "" {
			return ""
		}
	}
	return FilterReasonNoLabels
}

func isBot(user *userPayload) bool {
	if user == nil {
		return false
	}
	return strings.EqualFold(user.Type, "Bot") || strings.HasSuffix(strings.ToLower(user.Login), "[bot]")
}
