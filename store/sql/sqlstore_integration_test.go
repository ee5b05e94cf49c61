package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-labelwatch/core"
	lwmigrations "github.com/goliatone/go-labelwatch/migrations"
	sqlstore "github.com/goliatone/go-labelwatch/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-labelwatch-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range lwmigrations.CoreTables {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestUserStore_UpsertKeepsTokenWhenEmpty(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	users := factory.UserStore()

	created, err := users.Upsert(ctx, "U-1", "tok-1")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if !created.HasToken || created.ID == "" {
		t.Fatalf("expected stored user with token, got %+v", created)
	}

	again, err := users.Upsert(ctx, "U-1", "")
	if err != nil {
		t.Fatalf("upsert user again: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("expected same row, got %q and %q", created.ID, again.ID)
	}
	if !again.HasToken {
		t.Fatalf("expected empty token to keep the stored token")
	}

	tokens, err := factory.TokenStore("service-token")
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	token, err := tokens.ResolveToken(ctx, "U-1")
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("expected user token, got %q", token)
	}
	token, err = tokens.ResolveToken(ctx, "U-unknown")
	if err != nil {
		t.Fatalf("resolve unknown token: %v", err)
	}
	if token != "service-token" {
		t.Fatalf("expected fallback token, got %q", token)
	}

	if _, err := users.GetByExternalID(ctx, "U-unknown"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := users.Upsert(ctx, "  ", "tok"); err == nil {
		t.Fatalf("expected validation error for blank user id")
	}
}

func TestRepositoryStore_UpsertRenameAndWebhook(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	repos := factory.RepositoryStore()

	first, err := repos.Upsert(ctx, core.RemoteRepository{ID: 1001, Owner: "octo", Name: "hello"})
	if err != nil {
		t.Fatalf("upsert repository: %v", err)
	}
	renamed, err := repos.Upsert(ctx, core.RemoteRepository{ID: 1001, Owner: "octo", Name: "hello-world"})
	if err != nil {
		t.Fatalf("upsert renamed repository: %v", err)
	}
	if renamed.ID != first.ID || renamed.Name != "hello-world" {
		t.Fatalf("expected rename on same row, got %+v", renamed)
	}

	if err := repos.SetWebhookID(ctx, 1001, 77); err != nil {
		t.Fatalf("set webhook id: %v", err)
	}
	stored, err := repos.GetByRemoteID(ctx, 1001)
	if err != nil {
		t.Fatalf("get repository: %v", err)
	}
	if stored.WebhookID != 77 {
		t.Fatalf("expected webhook id 77, got %d", stored.WebhookID)
	}

	if err := repos.SetWebhookID(ctx, 9999, 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for unknown repository, got %v", err)
	}
	if _, err := repos.GetByRemoteID(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	listed, err := repos.List(ctx)
	if err != nil {
		t.Fatalf("list repositories: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one repository, got %d", len(listed))
	}
}

func TestSubscriptionStore_DirectoryLookups(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	mustRepository(t, factory, 1001, "octo", "hello")
	mustRepository(t, factory, 2002, "octo", "other")
	subs := factory.SubscriptionStore()

	mustSubscribe(t, subs, "U-1", 1001, "bug")
	mustSubscribe(t, subs, "U-2", 1001, "bug")
	mustSubscribe(t, subs, "U-2", 1001, "help wanted")
	mustSubscribe(t, subs, "U-1", 2002, "bug")

	users, err := subs.FindSubscribersForLabel(ctx, 1001, "bug")
	if err != nil {
		t.Fatalf("find subscribers: %v", err)
	}
	if len(users) != 2 || users[0] != "U-1" || users[1] != "U-2" {
		t.Fatalf("expected [U-1 U-2], got %v", users)
	}

	users, err = subs.FindSubscribersForLabel(ctx, 1001, "enhancement")
	if err != nil {
		t.Fatalf("find subscribers for unknown label: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no subscribers, got %v", users)
	}

	grouped, err := subs.GetUserSubscriptions(ctx, "U-2")
	if err != nil {
		t.Fatalf("get user subscriptions: %v", err)
	}
	if len(grouped) != 1 {
		t.Fatalf("expected one repository group, got %d", len(grouped))
	}
	if grouped[0].RepositoryID != 1001 || len(grouped[0].Labels) != 2 {
		t.Fatalf("unexpected group %+v", grouped[0])
	}
	if !grouped[0].HasLabel("help wanted") {
		t.Fatalf("expected help wanted in %v", grouped[0].Labels)
	}

	grouped, err = subs.GetUserSubscriptions(ctx, "U-1")
	if err != nil {
		t.Fatalf("get user subscriptions: %v", err)
	}
	if len(grouped) != 2 {
		t.Fatalf("expected two repository groups, got %d", len(grouped))
	}
}

func TestSubscriptionStore_SubscribeIsIdempotent(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	mustRepository(t, factory, 1001, "octo", "hello")
	subs := factory.SubscriptionStore()

	first := mustSubscribe(t, subs, "U-1", 1001, "bug")
	second := mustSubscribe(t, subs, "U-1", 1001, " bug ")
	if first.ID != second.ID {
		t.Fatalf("expected same subscription, got %q and %q", first.ID, second.ID)
	}

	fetched, err := subs.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if fetched.Label != "bug" {
		t.Fatalf("expected trimmed label, got %q", fetched.Label)
	}

	if _, err := subs.Subscribe(ctx, "U-1", 4040, "bug"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for untracked repository, got %v", err)
	}
	if _, err := subs.Subscribe(ctx, "U-1", 1001, ""); err == nil {
		t.Fatalf("expected validation error for blank label")
	}
}

func TestSubscriptionStore_Unsubscribe(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	mustRepository(t, factory, 1001, "octo", "hello")
	subs := factory.SubscriptionStore()
	mustSubscribe(t, subs, "U-1", 1001, "bug")
	mustSubscribe(t, subs, "U-2", 1001, "bug")

	removed, err := subs.Unsubscribe(ctx, "U-1", 1001, "bug")
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if !removed {
		t.Fatalf("expected subscription to be removed")
	}
	removed, err = subs.Unsubscribe(ctx, "U-1", 1001, "bug")
	if err != nil {
		t.Fatalf("unsubscribe again: %v", err)
	}
	if removed {
		t.Fatalf("expected second unsubscribe to be a no-op")
	}

	users, err := subs.FindSubscribersForLabel(ctx, 1001, "bug")
	if err != nil {
		t.Fatalf("find subscribers: %v", err)
	}
	if len(users) != 1 || users[0] != "U-2" {
		t.Fatalf("expected only U-2 left, got %v", users)
	}
}

func TestCachedDirectory_InvalidatesOnSubscribe(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	directory, err := factory.CachedDirectory(cacheService)
	if err != nil {
		t.Fatalf("cached directory: %v", err)
	}

	mustRepository(t, factory, 1001, "octo", "hello")
	if _, err := directory.Subscribe(ctx, "U-1", 1001, "bug"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	users, err := directory.FindSubscribersForLabel(ctx, 1001, "bug")
	if err != nil {
		t.Fatalf("find subscribers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one subscriber, got %v", users)
	}

	if _, err := directory.Subscribe(ctx, "U-2", 1001, "bug"); err != nil {
		t.Fatalf("subscribe second user: %v", err)
	}
	users, err = directory.FindSubscribersForLabel(ctx, 1001, "bug")
	if err != nil {
		t.Fatalf("find subscribers after subscribe: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected cache to be invalidated, got %v", users)
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func mustRepository(t *testing.T, factory *sqlstore.RepositoryFactory, id int64, owner, name string) core.Repository {
	t.Helper()
	repo, err := factory.RepositoryStore().Upsert(context.Background(), core.RemoteRepository{ID: id, Owner: owner, Name: name})
	if err != nil {
		t.Fatalf("upsert repository %d: %v", id, err)
	}
	return repo
}

func mustSubscribe(t *testing.T, subs *sqlstore.SubscriptionStore, userID string, repoID int64, label string) core.Subscription {
	t.Helper()
	sub, err := subs.Subscribe(context.Background(), userID, repoID, label)
	if err != nil {
		t.Fatalf("subscribe %s to %d/%s: %v", userID, repoID, label, err)
	}
	return sub
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:labelwatch-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = lwmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != lwmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, lwmigrations.WithValidationTargets(lwmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
