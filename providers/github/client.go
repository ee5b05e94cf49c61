// Package github implements the repository-host operations labelwatch needs
// on top of the rate-limited client.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/ratelimit"
	"github.com/goliatone/go-labelwatch/transport"
)

const (
	ProviderID     = "github"
	DefaultBaseURL = "https://api.github.com"
	defaultPerPage = 100
	defaultPages   = 10
)

// WebhookEvents are the deliveries labelwatch subscribes to when it
// registers a repository webhook.
var WebhookEvents = []string{"issues"}

type Config struct {
	DefaultToken string
	UserAgent    string
	PerPage      int
	// MaxPages caps label pagination.
	MaxPages int
	Logger   core.Logger
}

func DefaultConfig() Config {
	return Config{
		UserAgent: "go-labelwatch",
		PerPage:   defaultPerPage,
		MaxPages:  defaultPages,
	}
}

// Caller executes a single REST request. transport.RESTCaller satisfies it.
type Caller interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Client issues every request through one ratelimit.Client so calls share
// the rate-limit budget and circuit breaker.
type Client struct {
	api    *ratelimit.Client
	caller Caller
	tokens core.TokenStore
	cfg    Config
	logger core.Logger
}

func New(api *ratelimit.Client, caller Caller, tokens core.TokenStore, cfg Config) (*Client, error) {
	if api == nil {
		return nil, core.Internal("github: rate-limited client is required", nil)
	}
	if caller == nil {
		return nil, core.Internal("github: rest caller is required", nil)
	}
	defaults := DefaultConfig()
	if cfg.PerPage <= 0 || cfg.PerPage > defaultPerPage {
		cfg.PerPage = defaults.PerPage
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.MaxPages
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	return &Client{
		api:    api,
		caller: caller,
		tokens: tokens,
		cfg:    cfg,
		logger: core.ResolveLogger("labelwatch.github", nil, cfg.Logger),
	}, nil
}

// ValidateRepository confirms owner/name exists and is visible to the user.
func (c *Client) ValidateRepository(ctx context.Context, userID, owner, name string) (core.RemoteRepository, error) {
	path, err := repoPath(owner, name)
	if err != nil {
		return core.RemoteRepository{}, err
	}
	var payload repositoryPayload
	if err := c.get(ctx, userID, path, nil, &payload); err != nil {
		return core.RemoteRepository{}, err
	}
	return payload.toDomain(), nil
}

// ListLabels returns every label defined on the repository, following
// pagination up to MaxPages.
func (c *Client) ListLabels(ctx context.Context, userID, owner, name string) ([]core.Label, error) {
	path, err := repoPath(owner, name)
	if err != nil {
		return nil, err
	}
	labels := make([]core.Label, 0)
	for page := 1; page <= c.cfg.MaxPages; page++ {
		var batch []labelPayload
		query := map[string]string{
			"per_page": strconv.Itoa(c.cfg.PerPage),
			"page":     strconv.Itoa(page),
		}
		if err := c.get(ctx, userID, path+"/labels", query, &batch); err != nil {
			return nil, err
		}
		for _, item := range batch {
			labels = append(labels, core.Label{Name: item.Name, Color: item.Color, Description: item.Description})
		}
		if len(batch) < c.cfg.PerPage {
			return labels, nil
		}
	}
	core.Log(ctx, c.logger, core.LevelWarn, "label listing truncated at page limit", map[string]any{
		"repository": owner + "/" + name,
		"max_pages":  c.cfg.MaxPages,
	})
	return labels, nil
}

// CreateWebhook registers callbackURL for issue events, signed with secret.
func (c *Client) CreateWebhook(ctx context.Context, userID, owner, name, callbackURL, secret string) (core.RemoteWebhook, error) {
	path, err := repoPath(owner, name)
	if err != nil {
		return core.RemoteWebhook{}, err
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(callbackURL)); err != nil {
		return core.RemoteWebhook{}, core.BadInput("github: webhook callback url is invalid", map[string]any{"url": callbackURL})
	}
	hookConfig := map[string]any{
		"url":          strings.TrimSpace(callbackURL),
		"content_type": "json",
		"insecure_ssl": "0",
	}
	if strings.TrimSpace(secret) != "" {
		hookConfig["secret"] = secret
	}
	body := map[string]any{
		"name":   "web",
		"active": true,
		"events": WebhookEvents,
		"config": hookConfig,
	}
	var payload webhookPayload
	if err := c.send(ctx, userID, http.MethodPost, path+"/hooks", body, &payload); err != nil {
		return core.RemoteWebhook{}, err
	}
	core.Log(ctx, c.logger, core.LevelInfo, "repository webhook created", map[string]any{
		"repository": owner + "/" + name,
		"hook_id":    payload.ID,
	})
	return payload.toDomain(), nil
}

// DeleteWebhook removes a webhook. A hook that is already gone is not an
// error.
func (c *Client) DeleteWebhook(ctx context.Context, userID, owner, name string, hookID int64) error {
	path, err := repoPath(owner, name)
	if err != nil {
		return err
	}
	if hookID <= 0 {
		return core.BadInput("github: webhook id is required", nil)
	}
	err = c.send(ctx, userID, http.MethodDelete, fmt.Sprintf("%s/hooks/%d", path, hookID), nil, nil)
	if err != nil && isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (c *Client) get(ctx context.Context, userID, path string, query map[string]string, target any) error {
	return c.do(ctx, userID, transport.Request{Method: http.MethodGet, Path: path, Query: query}, target)
}

func (c *Client) send(ctx context.Context, userID, method, path string, body any, target any) error {
	return c.do(ctx, userID, transport.Request{Method: method, Path: path, Body: body}, target)
}

func (c *Client) do(ctx context.Context, userID string, req transport.Request, target any) error {
	token, err := c.token(ctx, userID)
	if err != nil {
		return err
	}
	req.Token = token
	req.Headers = map[string]string{"User-Agent": c.cfg.UserAgent}

	res, err := c.api.Submit(ctx, func(ctx context.Context) (*transport.Response, error) {
		return c.caller.Do(ctx, req)
	})
	if err != nil {
		return err
	}
	if target == nil || res == nil || len(res.Body) == 0 {
		return nil
	}
	if err := res.Decode(target); err != nil {
		return core.MalformedPayload(err)
	}
	return nil
}

func (c *Client) token(ctx context.Context, userID string) (string, error) {
	if c.tokens != nil && strings.TrimSpace(userID) != "" {
		token, err := c.tokens.ResolveToken(ctx, userID)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(token) != "" {
			return token, nil
		}
	}
	return c.cfg.DefaultToken, nil
}

func repoPath(owner, name string) (string, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return "", core.BadInput("github: repository owner and name are required", map[string]any{
			"owner": owner,
			"name":  name,
		})
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

func isStatus(err error, status int) bool {
	rich := core.MapError(err)
	if rich == nil || rich.Metadata == nil {
		return false
	}
	code, _ := rich.Metadata[core.MetadataStatusCode].(int)
	return code == status
}
