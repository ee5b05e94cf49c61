package labelwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-labelwatch/breaker"
	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/notify"
)

func TestNewService_RequiresStores(t *testing.T) {
	if _, err := NewService(Config{}, WithSubscriptionBackend(&stubBackend{}), WithMessenger(&stubMessenger{})); err == nil {
		t.Fatalf("expected missing repository recorder error")
	}
	if _, err := NewService(Config{}, WithRepositoryRecorder(&stubRecorder{}), WithMessenger(&stubMessenger{})); err == nil {
		t.Fatalf("expected missing subscription backend error")
	}
}

func TestNewService_RequiresMessengerOrURL(t *testing.T) {
	_, err := NewService(Config{}, WithRepositoryRecorder(&stubRecorder{}), WithSubscriptionBackend(&stubBackend{}))
	if err == nil {
		t.Fatalf("expected missing messenger error")
	}
}

func TestNewService_AppliesRuntimeConfigOverDefaults(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1", Config{
		Webhook:  core.WebhookConfig{Secret: "s3cret"},
		Dispatch: core.DispatchConfig{MaxAttempts: 5},
	})
	defer svc.Stop()

	cfg := svc.Config()
	if cfg.Dispatch.MaxAttempts != 5 {
		t.Fatalf("expected runtime max attempts 5, got %d", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Dispatch.ProcessInterval != DefaultConfig().Dispatch.ProcessInterval {
		t.Fatalf("expected default process interval, got %s", cfg.Dispatch.ProcessInterval)
	}
	if svc.Ingress().Insecure() {
		t.Fatalf("expected signature verification with a configured secret")
	}
}

func TestService_StartStopLifecycle(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1", Config{})
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	svc.Stop()
	svc.Stop()
	if err := svc.Start(ctx); err == nil {
		t.Fatalf("expected start after stop to fail")
	}
}

func TestService_RegisterRepositoryInstallsWebhookOnce(t *testing.T) {
	host := newStubHost()
	server := httptest.NewServer(host)
	defer server.Close()

	recorder := &stubRecorder{}
	svc := newTestService(t, server.URL, Config{
		Webhook: core.WebhookConfig{Secret: "s3cret", CallbackURL: "https://labelwatch.example/webhooks/github"},
	}, WithRepositoryRecorder(recorder))
	defer svc.Stop()
	ctx := context.Background()

	repo, err := svc.RegisterRepository(ctx, "U1", "octo", "hello")
	if err != nil {
		t.Fatalf("register repository: %v", err)
	}
	if repo.RemoteID != 4242 || repo.WebhookID != 77 {
		t.Fatalf("unexpected repository: %+v", repo)
	}
	if recorder.webhookIDs[4242] != 77 {
		t.Fatalf("expected webhook id to be recorded, got %v", recorder.webhookIDs)
	}
	if host.hookSecret != "s3cret" || host.hookURL != "https://labelwatch.example/webhooks/github" {
		t.Fatalf("unexpected hook config: url=%q secret=%q", host.hookURL, host.hookSecret)
	}

	if _, err := svc.RegisterRepository(ctx, "U1", "octo", "hello"); err != nil {
		t.Fatalf("register repository again: %v", err)
	}
	if host.hookCalls != 1 {
		t.Fatalf("expected a single webhook install, got %d", host.hookCalls)
	}
}

func TestService_RegisterRepositoryWithoutCallbackSkipsWebhook(t *testing.T) {
	host := newStubHost()
	server := httptest.NewServer(host)
	defer server.Close()

	svc := newTestService(t, server.URL, Config{})
	defer svc.Stop()

	repo, err := svc.RegisterRepository(context.Background(), "U1", "octo", "hello")
	if err != nil {
		t.Fatalf("register repository: %v", err)
	}
	if repo.WebhookID != 0 || host.hookCalls != 0 {
		t.Fatalf("expected no webhook install, got repo=%+v calls=%d", repo, host.hookCalls)
	}
}

func TestService_RegisterRepositoryPropagatesNotFound(t *testing.T) {
	host := newStubHost()
	server := httptest.NewServer(host)
	defer server.Close()

	svc := newTestService(t, server.URL, Config{})
	defer svc.Stop()

	if _, err := svc.RegisterRepository(context.Background(), "U1", "octo", "missing"); err == nil {
		t.Fatalf("expected unknown repository to fail")
	}
}

func TestService_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	host := newStubHost()
	server := httptest.NewServer(host)
	defer server.Close()

	svc := newTestService(t, server.URL, Config{})
	defer svc.Stop()
	ctx := context.Background()

	for i := 0; i < 2*svc.Config().Breaker.Threshold; i++ {
		_, err := svc.ValidateRepository(ctx, "U1", "octo", "missing")
		if !core.HasTextCode(err, core.ErrorRemoteAPI) {
			t.Fatalf("lookup %d: expected remote api error, got %v", i+1, err)
		}
	}
	if state := svc.Breaker().State(); state != breaker.StateClosed {
		t.Fatalf("expected 404s to leave the breaker closed, got %s", state)
	}
	if got := svc.Breaker().FailureCount(); got != 0 {
		t.Fatalf("expected no counted failures, got %d", got)
	}

	repo, err := svc.ValidateRepository(ctx, "U1", "octo", "hello")
	if err != nil {
		t.Fatalf("expected known repository to validate, got %v", err)
	}
	if repo.ID != 4242 {
		t.Fatalf("unexpected repository: %+v", repo)
	}
}

func TestNewService_WarnsWhenSecretMissing(t *testing.T) {
	logger := newCaptureLogger()
	svc := newTestService(t, "http://127.0.0.1:1", Config{}, WithLogger(logger))
	defer svc.Stop()

	if !svc.Ingress().Insecure() {
		t.Fatalf("expected insecure ingress without a secret")
	}
	if got := logger.count("warn", "signature verification disabled"); got != 1 {
		t.Fatalf("expected one insecure-mode warning at construction, got %d", got)
	}

	secured := newCaptureLogger()
	cfg := Config{}
	cfg.Webhook.Secret = "s3cret"
	svc2 := newTestService(t, "http://127.0.0.1:1", cfg, WithLogger(secured))
	defer svc2.Stop()
	if got := secured.count("warn", "signature verification disabled"); got != 0 {
		t.Fatalf("expected no insecure-mode warning with a secret, got %d", got)
	}
}

func TestService_NotifyHooksReceiveDeliveries(t *testing.T) {
	var mu sync.Mutex
	delivered := 0
	hook := notify.HookFuncs{OnSuccessFunc: func(context.Context, notify.Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}}
	extensions := NewExtensionHooks()
	if err := extensions.RegisterHookPack(HookPack{Name: "audit", Hooks: []notify.Hook{hook}}); err != nil {
		t.Fatalf("register hook pack: %v", err)
	}

	messenger := &stubMessenger{}
	svc := newTestService(t, "http://127.0.0.1:1", Config{},
		WithMessenger(messenger),
		WithNotifyHooks(hook),
		WithExtensionHooks(extensions),
	)
	defer svc.Stop()
	ctx := context.Background()

	if _, err := svc.EnqueueErrorNotification(ctx, "U1", "token revoked"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stats, err := svc.Queue().ProcessPass(ctx)
	if err != nil {
		t.Fatalf("process pass: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("expected one delivery, got %+v", stats)
	}
	if delivered != 2 {
		t.Fatalf("expected both hooks to observe the delivery, got %d", delivered)
	}
	if len(messenger.sent) != 1 || messenger.sent[0] != "U1" {
		t.Fatalf("unexpected messenger calls: %v", messenger.sent)
	}
}

func newTestService(t *testing.T, baseURL string, cfg Config, opts ...Option) *Service {
	t.Helper()
	cfg.Client.BaseURL = baseURL
	cfg.Client.DefaultToken = "default-token"
	base := []Option{
		WithRepositoryRecorder(&stubRecorder{}),
		WithSubscriptionBackend(&stubBackend{}),
		WithMessenger(&stubMessenger{}),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type stubHost struct {
	mu         sync.Mutex
	hookCalls  int
	hookURL    string
	hookSecret string
}

func newStubHost() *stubHost {
	return &stubHost{}
}

func (h *stubHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/octo/hello":
		_, _ = w.Write([]byte(`{"id":4242,"name":"hello","full_name":"octo/hello","owner":{"login":"octo"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/repos/octo/hello/hooks":
		var body struct {
			Config struct {
				URL    string `json:"url"`
				Secret string `json:"secret"`
			} `json:"config"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.hookCalls++
		h.hookURL = body.Config.URL
		h.hookSecret = body.Config.Secret
		h.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":77,"active":true,"events":["issues"],"config":{"url":"` + body.Config.URL + `"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}
}

type stubRecorder struct {
	mu         sync.Mutex
	repos      map[int64]core.Repository
	webhookIDs map[int64]int64
}

func (r *stubRecorder) Upsert(_ context.Context, in core.RemoteRepository) (core.Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repos == nil {
		r.repos = map[int64]core.Repository{}
	}
	repo := r.repos[in.ID]
	repo.ID = "repo_1"
	repo.RemoteID = in.ID
	repo.Owner = in.Owner
	repo.Name = in.Name
	r.repos[in.ID] = repo
	return repo, nil
}

func (r *stubRecorder) SetWebhookID(_ context.Context, remoteID int64, webhookID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.webhookIDs == nil {
		r.webhookIDs = map[int64]int64{}
	}
	r.webhookIDs[remoteID] = webhookID
	repo := r.repos[remoteID]
	repo.WebhookID = webhookID
	r.repos[remoteID] = repo
	return nil
}

type stubBackend struct{}

func (stubBackend) FindSubscribersForLabel(context.Context, int64, string) ([]string, error) {
	return nil, nil
}

func (stubBackend) GetUserSubscriptions(context.Context, string) ([]core.RepositorySubscriptions, error) {
	return nil, nil
}

func (stubBackend) Subscribe(_ context.Context, userID string, _ int64, label string) (core.Subscription, error) {
	return core.Subscription{UserID: userID, Label: label}, nil
}

func (stubBackend) Unsubscribe(context.Context, string, int64, string) (bool, error) {
	return false, nil
}

type stubMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *stubMessenger) SendDirectMessage(_ context.Context, userID string, _ core.RenderedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, userID)
	return nil
}

type loggedEntry struct {
	level   string
	message string
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]loggedEntry
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]loggedEntry{}}
}

func (l captureLogger) record(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, loggedEntry{level: level, message: message})
}

func (l captureLogger) Trace(msg string, _ ...any) { l.record("trace", msg) }
func (l captureLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l captureLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l captureLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l captureLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l captureLogger) Fatal(msg string, _ ...any) { l.record("fatal", msg) }

func (l captureLogger) WithContext(context.Context) core.Logger { return l }

func (l captureLogger) count(level, fragment string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, entry := range *l.entries {
		if entry.level == level && strings.Contains(entry.message, fragment) {
			n++
		}
	}
	return n
}
