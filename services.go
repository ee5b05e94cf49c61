package labelwatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-labelwatch/breaker"
	"github.com/goliatone/go-labelwatch/command"
	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/notify"
	"github.com/goliatone/go-labelwatch/providers/github"
	"github.com/goliatone/go-labelwatch/ratelimit"
	"github.com/goliatone/go-labelwatch/transport"
	"github.com/goliatone/go-labelwatch/webhooks"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// RepositoryRecorder persists repositories registered for notifications.
type RepositoryRecorder interface {
	Upsert(ctx context.Context, in core.RemoteRepository) (core.Repository, error)
	SetWebhookID(ctx context.Context, remoteID int64, webhookID int64) error
}

// SubscriptionBackend is the read and write side of the subscription store.
type SubscriptionBackend interface {
	core.SubscriptionDirectory
	command.SubscriptionWriter
}

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig  Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	httpClient     transport.HTTPDoer
	repositories   RepositoryRecorder
	subscriptions  SubscriptionBackend
	tokens         core.TokenStore
	messenger      core.DirectMessenger
	notifyHooks    []notify.Hook
	extensions     *ExtensionHooks
}

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) { b.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) { b.loggerProvider = provider }
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) { b.metrics = recorder }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) { b.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) { b.resolver = resolver }
}

// WithHTTPClient sets the client used for repository host and messenger
// calls. It defaults to an http.Client bounded by client.request_timeout.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *serviceBuilder) { b.httpClient = client }
}

func WithRepositoryRecorder(repositories RepositoryRecorder) Option {
	return func(b *serviceBuilder) { b.repositories = repositories }
}

func WithSubscriptionBackend(subscriptions SubscriptionBackend) Option {
	return func(b *serviceBuilder) { b.subscriptions = subscriptions }
}

func WithTokenStore(tokens core.TokenStore) Option {
	return func(b *serviceBuilder) { b.tokens = tokens }
}

// WithMessenger overrides the HTTP messenger built from the messenger
// config section.
func WithMessenger(messenger core.DirectMessenger) Option {
	return func(b *serviceBuilder) { b.messenger = messenger }
}

func WithNotifyHooks(hooks ...notify.Hook) Option {
	return func(b *serviceBuilder) { b.notifyHooks = append(b.notifyHooks, hooks...) }
}

func WithExtensionHooks(hooks *ExtensionHooks) Option {
	return func(b *serviceBuilder) { b.extensions = hooks }
}

// Service owns the ingress, the outbound client and the dispatch queue of one
// labelwatch process.
type Service struct {
	config        Config
	logger        core.Logger
	metrics       core.MetricsRecorder
	breaker       *breaker.Breaker
	api           *ratelimit.Client
	github        *github.Client
	queue         *notify.Queue
	fingerprints  *webhooks.FingerprintSet
	ingress       *webhooks.Ingress
	repositories  RepositoryRecorder
	subscriptions SubscriptionBackend

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
}

// NewService resolves configuration (defaults < provider < cfg) and builds
// every component. Start must be called before deliveries are dispatched.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	if builder.repositories == nil {
		return nil, core.Internal("labelwatch: repository recorder is required", nil)
	}
	if builder.subscriptions == nil {
		return nil, core.Internal("labelwatch: subscription backend is required", nil)
	}

	resolved, err := core.LoadConfig(context.Background(), builder.configProvider, builder.resolver, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}

	component := func(name string) core.Logger {
		return core.ResolveLogger("labelwatch."+name, builder.loggerProvider, builder.logger)
	}
	metrics := core.EnsureMetrics(builder.metrics)

	httpClient := builder.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: resolved.Client.RequestTimeout}
	}

	tokens := builder.tokens
	if tokens == nil {
		tokens = staticTokenStore(resolved.Client.DefaultToken)
	}

	messenger := builder.messenger
	if messenger == nil {
		if strings.TrimSpace(resolved.Messenger.URL) == "" {
			return nil, core.Internal("labelwatch: messenger.url or a messenger is required", nil)
		}
		messenger = transport.NewHTTPMessenger(httpClient, resolved.Messenger.URL, resolved.Messenger.Token)
	}

	cb := breaker.New(breaker.Config{
		Name:            "github",
		Threshold:       resolved.Breaker.Threshold,
		RecoveryTimeout: resolved.Breaker.RecoveryTimeout,
		IsFailure:       ratelimit.CountsAsBreakerFailure,
		Logger:          component("breaker"),
		Metrics:         metrics,
	})

	clientCfg := ratelimit.ConfigFrom(resolved.Client)
	clientCfg.Breaker = cb
	clientCfg.Logger = component("ratelimit")
	clientCfg.Metrics = metrics
	api := ratelimit.NewClient(clientCfg)

	caller := transport.NewRESTCaller(httpClient, resolved.Client.BaseURL)
	githubClient, err := github.New(api, caller, tokens, github.Config{
		DefaultToken: resolved.Client.DefaultToken,
		UserAgent:    resolved.Client.UserAgent,
		Logger:       component("github"),
	})
	if err != nil {
		api.Close()
		return nil, err
	}

	queueCfg := notify.ConfigFrom(resolved.Dispatch)
	queueCfg.Hooks = append(queueCfg.Hooks, builder.notifyHooks...)
	queueCfg.Hooks = append(queueCfg.Hooks, builder.extensions.NotifyHooks()...)
	queueCfg.Logger = component("notify")
	queueCfg.Metrics = metrics
	queue, err := notify.NewQueue(messenger, queueCfg)
	if err != nil {
		api.Close()
		return nil, err
	}

	fingerprints := webhooks.NewFingerprintSet(webhooks.FingerprintOptions{
		TTL:        resolved.Dedup.TTL,
		MaxEntries: resolved.Dedup.MaxEntries,
	})
	verifier := webhooks.NewHMACVerifier(resolved.Webhook.Secret, component("webhooks"))
	ingressCfg := webhooks.ConfigFrom(resolved.Webhook)
	ingressCfg.Logger = component("webhooks")
	ingressCfg.Metrics = metrics
	ingress, err := webhooks.NewIngress(verifier, fingerprints, builder.subscriptions, queue, ingressCfg)
	if err != nil {
		api.Close()
		return nil, err
	}

	svc := &Service{
		config:        resolved,
		logger:        component("service"),
		metrics:       metrics,
		breaker:       cb,
		api:           api,
		github:        githubClient,
		queue:         queue,
		fingerprints:  fingerprints,
		ingress:       ingress,
		repositories:  builder.repositories,
		subscriptions: builder.subscriptions,
	}
	if ingress.Insecure() {
		core.Log(context.Background(), svc.logger, core.LevelWarn,
			"webhook signature verification disabled: no secret configured", nil)
	}
	return svc, nil
}

// Start launches the dispatch loop and the fingerprint sweeper. Both stop
// when ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return core.Internal("labelwatch: service is nil", nil)
	}
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.closed {
		return core.Internal("labelwatch: service is stopped", nil)
	}
	if s.cancel != nil {
		return core.Internal("labelwatch: service already started", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := s.queue.Start(runCtx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fingerprints.Run(runCtx, s.config.Dedup.SweepInterval)
	}()
	core.Log(ctx, s.logger, core.LevelInfo, "labelwatch service started", map[string]any{
		"insecure": s.ingress.Insecure(),
	})
	return nil
}

// Stop halts background work and rejects outbound calls still queued.
// Notifications still pending are lost.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.lifecycleMu.Lock()
	if s.closed {
		s.lifecycleMu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.queue.Stop()
	s.api.Close()

	stats := s.queue.Stats()
	core.Log(context.Background(), s.logger, core.LevelInfo, "labelwatch service stopped", map[string]any{
		"pending_notifications": stats.Total,
	})
}

func (s *Service) Config() Config {
	return s.config
}

func (s *Service) Ingress() *webhooks.Ingress {
	return s.ingress
}

func (s *Service) Queue() *notify.Queue {
	return s.queue
}

func (s *Service) GitHub() *github.Client {
	return s.github
}

func (s *Service) Breaker() *breaker.Breaker {
	return s.breaker
}

func (s *Service) Client() *ratelimit.Client {
	return s.api
}

func (s *Service) Subscriptions() SubscriptionBackend {
	return s.subscriptions
}

// WebhookHandler serves POST on the configured webhook path.
func (s *Service) WebhookHandler() http.Handler {
	httpCfg := webhooks.HTTPConfigFrom(s.config.Webhook)
	httpCfg.Logger = s.logger
	return webhooks.NewHTTPHandler(s.ingress, httpCfg)
}

// RegisterRepository validates owner/name with the user's token, records the
// repository and installs the issues webhook. A repository that already has a
// webhook is only refreshed.
func (s *Service) RegisterRepository(ctx context.Context, userID, owner, name string) (core.Repository, error) {
	if s == nil {
		return core.Repository{}, core.Internal("labelwatch: service is nil", nil)
	}
	remote, err := s.github.ValidateRepository(ctx, userID, owner, name)
	if err != nil {
		return core.Repository{}, err
	}
	repo, err := s.repositories.Upsert(ctx, remote)
	if err != nil {
		return core.Repository{}, err
	}
	if repo.WebhookID != 0 {
		return repo, nil
	}

	callbackURL := strings.TrimSpace(s.config.Webhook.CallbackURL)
	if callbackURL == "" {
		core.Log(ctx, s.logger, core.LevelWarn, "webhook callback url not configured, skipping webhook install", map[string]any{
			"repository": repo.Owner + "/" + repo.Name,
		})
		return repo, nil
	}
	hook, err := s.github.CreateWebhook(ctx, userID, remote.Owner, remote.Name, callbackURL, s.config.Webhook.Secret)
	if err != nil {
		return core.Repository{}, fmt.Errorf("labelwatch: install webhook for %s/%s: %w", remote.Owner, remote.Name, err)
	}
	if err := s.repositories.SetWebhookID(ctx, remote.ID, hook.ID); err != nil {
		return core.Repository{}, err
	}
	repo.WebhookID = hook.ID
	core.Log(ctx, s.logger, core.LevelInfo, "repository registered", map[string]any{
		"repository": repo.Owner + "/" + repo.Name,
		"webhook_id": hook.ID,
	})
	return repo, nil
}

func (s *Service) Subscribe(ctx context.Context, userID string, repositoryID int64, label string) (core.Subscription, error) {
	return s.subscriptions.Subscribe(ctx, userID, repositoryID, label)
}

func (s *Service) Unsubscribe(ctx context.Context, userID string, repositoryID int64, label string) (bool, error) {
	return s.subscriptions.Unsubscribe(ctx, userID, repositoryID, label)
}

func (s *Service) EnqueueIssueNotification(
	ctx context.Context,
	userID string,
	issue core.IssueInfo,
	triggeredLabel string,
) (core.NotificationJob, error) {
	return s.queue.EnqueueIssueNotification(ctx, userID, issue, triggeredLabel)
}

func (s *Service) EnqueueErrorNotification(ctx context.Context, userID string, message string) (core.NotificationJob, error) {
	return s.queue.EnqueueErrorNotification(ctx, userID, message)
}

func (s *Service) Stats() core.QueueStats {
	return s.queue.Stats()
}

func (s *Service) ValidateRepository(ctx context.Context, userID, owner, name string) (core.RemoteRepository, error) {
	return s.github.ValidateRepository(ctx, userID, owner, name)
}

func (s *Service) ListLabels(ctx context.Context, userID, owner, name string) ([]core.Label, error) {
	return s.github.ListLabels(ctx, userID, owner, name)
}

func (s *Service) FindSubscribersForLabel(ctx context.Context, repositoryID int64, label string) ([]string, error) {
	return s.subscriptions.FindSubscribersForLabel(ctx, repositoryID, label)
}

func (s *Service) GetUserSubscriptions(ctx context.Context, userID string) ([]core.RepositorySubscriptions, error) {
	return s.subscriptions.GetUserSubscriptions(ctx, userID)
}

type staticTokenStore string

func (t staticTokenStore) ResolveToken(context.Context, string) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

var _ CommandQueryService = (*Service)(nil)
