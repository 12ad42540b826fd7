package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/db"
	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/store"
)

var (
	admin   = &auth.Principal{ID: "admin-1", Roles: []string{auth.RoleAdmin}}
	learner = &auth.Principal{ID: "learner-1", Roles: []string{"Learner"}}
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// steppingClock returns a wall clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu stdsync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// spyCollection counts store calls and can panic on one id.
type spyCollection[T any, P schema.Record[T]] struct {
	store.Collection[T, P]
	calls   atomic.Int64
	panicOn string
}

func (s *spyCollection[T, P]) touch(id string) {
	s.calls.Add(1)
	if s.panicOn != "" && id == s.panicOn {
		panic("simulated store failure")
	}
}

func (s *spyCollection[T, P]) Get(ctx context.Context, id string) (P, error) {
	s.touch(id)
	return s.Collection.Get(ctx, id)
}

func (s *spyCollection[T, P]) List(ctx context.Context) ([]P, error) {
	s.touch("")
	return s.Collection.List(ctx)
}

func (s *spyCollection[T, P]) ChangedSince(ctx context.Context, since time.Time) ([]P, error) {
	s.touch("")
	return s.Collection.ChangedSince(ctx, since)
}

func (s *spyCollection[T, P]) Insert(ctx context.Context, rec P, actor string) error {
	s.touch(rec.Metadata().ID)
	return s.Collection.Insert(ctx, rec, actor)
}

func (s *spyCollection[T, P]) Update(ctx context.Context, rec P, actor, expectedVersion string) error {
	s.touch(rec.Metadata().ID)
	return s.Collection.Update(ctx, rec, actor, expectedVersion)
}

func (s *spyCollection[T, P]) SoftDelete(ctx context.Context, id, actor, expectedVersion string) error {
	s.touch(id)
	return s.Collection.SoftDelete(ctx, id, actor, expectedVersion)
}

type testEnv struct {
	engine     *Engine
	db         *db.DB
	authority  *Authority
	categories *spyCollection[schema.Category, *schema.Category]
	users      *spyCollection[schema.User, *schema.User]
}

// setupEnv opens a temporary store with Categories (open) and Users (Admin).
func setupEnv(t *testing.T, opts TableOptions) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.InitSchema("categories", "users"); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	authority := NewAuthorityWithClock(steppingClock(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), time.Millisecond))
	database.SetClock(authority)

	categories, err := db.NewCollection[schema.Category](database, "categories")
	if err != nil {
		t.Fatalf("failed to create categories collection: %v", err)
	}
	users, err := db.NewCollection[schema.User](database, "users")
	if err != nil {
		t.Fatalf("failed to create users collection: %v", err)
	}

	env := &testEnv{
		db:         database,
		authority:  authority,
		categories: &spyCollection[schema.Category, *schema.Category]{Collection: categories},
		users:      &spyCollection[schema.User, *schema.User]{Collection: users},
	}

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	registry := NewRegistry()
	if err := registry.Register(NewTable[schema.Category, *schema.Category](schema.TableCategories, env.categories, opts)); err != nil {
		t.Fatalf("failed to register categories: %v", err)
	}
	userOpts := opts
	userOpts.RequiredRole = auth.RoleAdmin
	if err := registry.Register(NewTable[schema.User, *schema.User](schema.TableUsers, env.users, userOpts)); err != nil {
		t.Fatalf("failed to register users: %v", err)
	}

	env.engine = New(Config{Registry: registry, Authority: authority, Logger: quietLogger()})
	return env
}

func categoryEnvelope(id string, action Action, data, token string) ChangeEnvelope {
	env := ChangeEnvelope{
		EntityID:  id,
		TableName: schema.TableCategories,
		Action:    action,
	}
	if data != "" {
		env.Payload = StringPtr(data)
	}
	if token != "" {
		env.ConcurrencyToken = StringPtr(token)
	}
	return env
}

// mustGetCategory reads a category straight from the store, bypassing the spy.
func (e *testEnv) mustGetCategory(t *testing.T, id string) *schema.Category {
	t.Helper()
	c, err := e.categories.Collection.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return c
}
