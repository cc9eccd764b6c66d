package deletion

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/go-identity-service/internal/events"
	"github.com/FACorreiaa/go-identity-service/internal/remote"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// callLog records the order in which collaborators are invoked.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserStore) CountActiveSystemAdmins(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockUserStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockAdminRoleChecker struct {
	mock.Mock
}

func (m *MockAdminRoleChecker) CheckAdminRoles(ctx context.Context, userID uuid.UUID) (remote.AdminRoleCheck, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(remote.AdminRoleCheck), args.Error(1)
}

type MockDependencyCleaner struct {
	mock.Mock
}

func (m *MockDependencyCleaner) DeleteDependencies(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockTokenRevoker struct {
	mock.Mock
}

func (m *MockTokenRevoker) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type fakeDenylist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{revoked: map[string]bool{}}
}

func (f *fakeDenylist) Revoke(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[userID] = true
}

func (f *fakeDenylist) has(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[userID]
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishUserDeleted(ctx context.Context, event events.UserDeletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func newUser(role types.Role) *types.User {
	return &types.User{ID: uuid.New(), Username: "user-" + string(role), Role: role, IsActive: true}
}
