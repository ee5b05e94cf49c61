package github

import "github.com/goliatone/go-labelwatch/core"

type ownerPayload struct {
	Login string `json:"login"`
}

type repositoryPayload struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	FullName      string       `json:"full_name"`
	Private       bool         `json:"private"`
	DefaultBranch string       `json:"default_branch"`
	HTMLURL       string       `json:"html_url"`
	Owner         ownerPayload `json:"owner"`
}

func (p repositoryPayload) toDomain() core.RemoteRepository {
	return core.RemoteRepository{
		ID:            p.ID,
		Owner:         p.Owner.Login,
		Name:          p.Name,
		FullName:      p.FullName,
		Private:       p.Private,
		DefaultBranch: p.DefaultBranch,
		HTMLURL:       p.HTMLURL,
	}
}

type labelPayload struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type webhookPayload struct {
	ID     int64    `json:"id"`
	Active bool     `json:"active"`
	Events []string `json:"events"`
	Config struct {
		URL string `json:"url"`
	} `json:"config"`
}

func (p webhookPayload) toDomain() core.RemoteWebhook {
	return core.RemoteWebhook{ID: p.ID, URL: p.Config.URL, Events: p.Events, Active: p.Active}
}
