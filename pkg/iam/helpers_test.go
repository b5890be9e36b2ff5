package iam

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/identity-core/pkg/event"
	"github.com/tendant/identity-core/pkg/extension"
	"github.com/tendant/identity-core/pkg/password"
	"github.com/tendant/identity-core/pkg/role"
	"github.com/tendant/identity-core/pkg/setting"
)

// faultStore wraps a store, records every call and injects failures
type faultStore struct {
	extension.Store

	mu                  sync.Mutex
	ops                 []string
	userUpdateConflicts int
	createErrs          map[string]error
}

func (f *faultStore) record(op, kind, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fmt.Sprintf("%s %s/%s", op, kind, name))
}

func (f *faultStore) Get(ctx context.Context, kind, name string) (extension.Record, error) {
	f.record("get", kind, name)
	return f.Store.Get(ctx, kind, name)
}

func (f *faultStore) Create(ctx context.Context, rec extension.Record) (extension.Record, error) {
	f.record("create", rec.Kind, rec.Name)
	f.mu.Lock()
	err := f.createErrs[rec.Kind+"/"+rec.Name]
	f.mu.Unlock()
	if err != nil {
		return extension.Record{}, err
	}
	return f.Store.Create(ctx, rec)
}

func (f *faultStore) Update(ctx context.Context, rec extension.Record) (extension.Record, error) {
	f.record("update", rec.Kind, rec.Name)
	f.mu.Lock()
	if rec.Kind == KindUser && f.userUpdateConflicts > 0 {
		f.userUpdateConflicts--
		f.mu.Unlock()
		return extension.Record{}, extension.ErrConflict
	}
	f.mu.Unlock()
	return f.Store.Update(ctx, rec)
}

func (f *faultStore) Delete(ctx context.Context, kind, name string, version int64) error {
	f.record("delete", kind, name)
	return f.Store.Delete(ctx, kind, name, version)
}

func (f *faultStore) List(ctx context.Context, kind string) ([]extension.Record, error) {
	f.record("list", kind, "")
	return f.Store.List(ctx, kind)
}

// Ops returns the recorded calls, optionally only those starting with prefix
func (f *faultStore) Ops(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, op := range f.ops {
		if strings.HasPrefix(op, prefix) {
			out = append(out, op)
		}
	}
	return out
}

func (f *faultStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

// countingFetcher counts policy lookups
type countingFetcher struct {
	setting.Fetcher
	mu    sync.Mutex
	calls int
}

func (c *countingFetcher) UserSetting(ctx context.Context) (*setting.UserSetting, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Fetcher.UserSetting(ctx)
}

// stepClock advances by one second on every read
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	svc      *UserService
	client   extension.Client
	store    *faultStore
	roles    *role.RoleService
	settings *countingFetcher
	events   *event.RecordingPublisher
	encoder  password.Encoder
	clock    *stepClock
}

func boolPtr(b bool) *bool { return &b }

func newFixture(t *testing.T, userSetting *setting.UserSetting, opts ...Option) *fixture {
	t.Helper()
	store := &faultStore{Store: extension.NewInMemoryStore(), createErrs: make(map[string]error)}
	client := extension.NewClient(store)
	f := &fixture{
		client:   client,
		store:    store,
		roles:    role.NewRoleService(client),
		settings: &countingFetcher{Fetcher: setting.StaticFetcher{Setting: userSetting}},
		events:   &event.RecordingPublisher{},
		encoder:  password.NewBcryptEncoder(bcrypt.MinCost),
		clock:    &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{
		WithClock(f.clock),
		WithGrantRetryPolicy(RetryPolicy{
			MaxAttempts:     CreateUserGrantRetry.MaxAttempts,
			InitialInterval: time.Millisecond,
			Multiplier:      CreateUserGrantRetry.Multiplier,
			RetryOn:         CreateUserGrantRetry.RetryOn,
		}),
	}, opts...)
	f.svc = NewUserService(client, f.roles, f.settings, f.encoder, f.events, opts...)
	return f
}

func (f *fixture) createRoles(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := f.roles.CreateRole(context.Background(), name, role.RoleSpec{})
		require.NoError(t, err)
	}
}

func (f *fixture) createUser(t *testing.T, name string, spec UserSpec) *User {
	t.Helper()
	user := NewUser(name, spec)
	require.NoError(t, f.client.Create(context.Background(), user))
	return user
}

func (f *fixture) boundRoles(t *testing.T, username string) []string {
	t.Helper()
	var roles []string
	for binding, err := range f.roles.ListRoleBindings(context.Background(), role.UserSubject(username)) {
		require.NoError(t, err)
		roles = append(roles, binding.RoleRef.Name)
	}
	return roles
}

func (f *fixture) binding(t *testing.T, name string) *role.RoleBinding {
	t.Helper()
	binding := &role.RoleBinding{}
	found, err := f.client.Fetch(context.Background(), name, binding)
	require.NoError(t, err)
	if !found {
		return nil
	}
	return binding
}
