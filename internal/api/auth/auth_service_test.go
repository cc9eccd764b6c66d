package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-identity-service/internal/types"
)

type MockUserReader struct {
	mock.Mock
}

func (m *MockUserReader) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserReader) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

type MockRefreshTokenStore struct {
	mock.Mock
}

func (m *MockRefreshTokenStore) IssueRefreshToken(ctx context.Context, userID uuid.UUID) (*types.RefreshToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) Rotate(ctx context.Context, userID uuid.UUID, oldToken string) (*types.RefreshToken, error) {
	args := m.Called(ctx, userID, oldToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) Revoke(ctx context.Context, token string, replacedBy *string) error {
	args := m.Called(ctx, token, replacedBy)
	return args.Error(0)
}

func (m *MockRefreshTokenStore) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefreshTokenStore) GetByToken(ctx context.Context, token string) (*types.RefreshToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]types.RefreshToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.RefreshToken), args.Error(1)
}

type serviceFixture struct {
	svc    *AuthServiceImpl
	users  *MockUserReader
	store  *MockRefreshTokenStore
	issuer *TokenIssuer
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	users := new(MockUserReader)
	store := new(MockRefreshTokenStore)
	issuer := newTestIssuer(t, fixedNow)
	svc := NewAuthService(users, store, issuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		users.AssertExpectations(t)
		store.AssertExpectations(t)
	})
	return serviceFixture{svc: svc, users: users, store: store, issuer: issuer}
}

func userWithPassword(t *testing.T, password string) *types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := testUser()
	u.PasswordHash = string(hash)
	return u
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		f := newServiceFixture(t)
		user := userWithPassword(t, "password123")
		f.users.On("GetUserByEmail", mock.Anything, user.Email).Return(user, nil)
		f.store.On("IssueRefreshToken", mock.Anything, user.ID).
			Return(&types.RefreshToken{Token: "rt-1", UserID: user.ID, ExpiresAt: fixedNow.Add(7 * 24 * time.Hour)}, nil)

		pair, err := f.svc.Login(ctx, user.Email, "password123")
		require.NoError(t, err)
		assert.Equal(t, "rt-1", pair.RefreshToken)
		assert.Equal(t, fixedNow.Add(15*time.Minute), pair.ExpiresAt)

		claims, err := f.issuer.ParseAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.Subject)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newServiceFixture(t)
		user := userWithPassword(t, "password123")
		f.users.On("GetUserByEmail", mock.Anything, user.Email).Return(user, nil)

		_, err := f.svc.Login(ctx, user.Email, "nope")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		f.store.AssertNotCalled(t, "IssueRefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newServiceFixture(t)
		f.users.On("GetUserByEmail", mock.Anything, "ghost@example.com").
			Return(nil, fmt.Errorf("get user by email: %w", types.ErrNotFound))

		_, err := f.svc.Login(ctx, "ghost@example.com", "password123")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newServiceFixture(t)
		user := userWithPassword(t, "password123")
		user.IsActive = false
		f.users.On("GetUserByEmail", mock.Anything, user.Email).Return(user, nil)

		_, err := f.svc.Login(ctx, user.Email, "password123")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	})

	t.Run("store failure surfaces as storage error", func(t *testing.T) {
		f := newServiceFixture(t)
		user := userWithPassword(t, "password123")
		f.users.On("GetUserByEmail", mock.Anything, user.Email).Return(user, nil)
		f.store.On("IssueRefreshToken", mock.Anything, user.ID).
			Return(nil, fmt.Errorf("issue: %w", types.ErrStorage))

		_, err := f.svc.Login(ctx, user.Email, "password123")
		assert.ErrorIs(t, err, types.ErrStorage)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	user := testUser()
	active := func() *types.RefreshToken {
		return &types.RefreshToken{
			Token:     "old",
			UserID:    user.ID,
			CreatedAt: fixedNow.Add(-time.Hour),
			ExpiresAt: fixedNow.Add(time.Hour),
		}
	}

	t.Run("rotates through the store", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetByToken", mock.Anything, "old").Return(active(), nil)
		f.users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
		f.store.On("Rotate", mock.Anything, user.ID, "old").
			Return(&types.RefreshToken{Token: "new", UserID: user.ID}, nil)

		pair, err := f.svc.Refresh(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, "new", pair.RefreshToken)
		assert.NotEmpty(t, pair.AccessToken)
		f.store.AssertNotCalled(t, "IssueRefreshToken", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		rt := active()
		revokedAt := fixedNow.Add(-time.Minute)
		rt.RevokedAt = &revokedAt
		f.store.On("GetByToken", mock.Anything, "old").Return(rt, nil)

		_, err := f.svc.Refresh(ctx, "old")
		assert.ErrorIs(t, err, types.ErrTokenRevoked)
		f.store.AssertNotCalled(t, "Rotate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		rt := active()
		rt.ExpiresAt = fixedNow
		f.store.On("GetByToken", mock.Anything, "old").Return(rt, nil)

		_, err := f.svc.Refresh(ctx, "old")
		assert.ErrorIs(t, err, types.ErrTokenExpired)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetByToken", mock.Anything, "missing").
			Return(nil, fmt.Errorf("get: %w", types.ErrNotFound))

		_, err := f.svc.Refresh(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	})

	t.Run("deleted owner", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetByToken", mock.Anything, "old").Return(active(), nil)
		f.users.On("GetUserByID", mock.Anything, user.ID).Return(nil, types.ErrNotFound)

		_, err := f.svc.Refresh(ctx, "old")
		assert.ErrorIs(t, err, types.ErrUnauthenticated)
	})

	t.Run("token redeemed in between is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetByToken", mock.Anything, "old").Return(active(), nil)
		f.users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
		f.store.On("Rotate", mock.Anything, user.ID, "old").
			Return(nil, fmt.Errorf("rotate refresh token: %w", types.ErrTokenRevoked))

		pair, err := f.svc.Refresh(ctx, "old")
		assert.ErrorIs(t, err, types.ErrTokenRevoked)
		assert.Nil(t, pair)
	})

	t.Run("rotation storage failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("GetByToken", mock.Anything, "old").Return(active(), nil)
		f.users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
		f.store.On("Rotate", mock.Anything, user.ID, "old").
			Return(nil, fmt.Errorf("rotate: %w", types.ErrStorage))

		_, err := f.svc.Refresh(ctx, "old")
		assert.ErrorIs(t, err, types.ErrStorage)
	})
}

// memoryTokenStore serializes writes the way the user row lock does and holds
// every GetByToken until all expected readers have looked the token up.
type memoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]*types.RefreshToken
	readers sync.WaitGroup
	seq     int
}

func (m *memoryTokenStore) IssueRefreshToken(context.Context, uuid.UUID) (*types.RefreshToken, error) {
	return nil, errors.New("not used")
}

func (m *memoryTokenStore) Rotate(_ context.Context, userID uuid.UUID, oldToken string) (*types.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tokens[oldToken]
	if !ok || old.UserID != userID || old.RevokedAt != nil {
		return nil, types.ErrTokenRevoked
	}
	m.seq++
	next := &types.RefreshToken{Token: fmt.Sprintf("rt-%d", m.seq), UserID: userID, ExpiresAt: fixedNow.Add(time.Hour)}
	now := fixedNow
	old.RevokedAt = &now
	old.ReplacedByToken = &next.Token
	m.tokens[next.Token] = next
	return next, nil
}

func (m *memoryTokenStore) Revoke(context.Context, string, *string) error { return nil }

func (m *memoryTokenStore) RevokeAll(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (m *memoryTokenStore) GetByToken(_ context.Context, token string) (*types.RefreshToken, error) {
	m.mu.Lock()
	rt, ok := m.tokens[token]
	var snapshot types.RefreshToken
	if ok {
		snapshot = *rt
	}
	m.mu.Unlock()

	m.readers.Done()
	m.readers.Wait()
	if !ok {
		return nil, types.ErrNotFound
	}
	return &snapshot, nil
}

func (m *memoryTokenStore) ListForUser(context.Context, uuid.UUID) ([]types.RefreshToken, error) {
	return nil, nil
}

func TestRefresh_ConcurrentRedemptionIssuesOnePair(t *testing.T) {
	user := testUser()
	store := &memoryTokenStore{tokens: map[string]*types.RefreshToken{
		"old": {Token: "old", UserID: user.ID, ExpiresAt: fixedNow.Add(time.Hour)},
	}}
	store.readers.Add(2)

	users := new(MockUserReader)
	users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
	svc := NewAuthService(users, store, newTestIssuer(t, fixedNow), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }

	type result struct {
		pair *types.TokenPair
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			pair, err := svc.Refresh(context.Background(), "old")
			results <- result{pair, err}
		}()
	}

	var pairs []*types.TokenPair
	var errs []error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		pairs = append(pairs, r.pair)
	}

	require.Len(t, pairs, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], types.ErrTokenRevoked)

	old := store.tokens["old"]
	require.NotNil(t, old.ReplacedByToken)
	assert.Equal(t, pairs[0].RefreshToken, *old.ReplacedByToken)
	assert.Len(t, store.tokens, 2)
}

func TestLogoutAndLogoutAll(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("logout revokes without replacement", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("Revoke", mock.Anything, "rt", (*string)(nil)).Return(nil)
		assert.NoError(t, f.svc.Logout(ctx, "rt"))
	})

	t.Run("logout storage failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("Revoke", mock.Anything, "rt", (*string)(nil)).Return(types.ErrStorage)
		assert.ErrorIs(t, f.svc.Logout(ctx, "rt"), types.ErrStorage)
	})

	t.Run("logout all reports count", func(t *testing.T) {
		f := newServiceFixture(t)
		f.store.On("RevokeAll", mock.Anything, userID).Return(int64(2), nil)
		n, err := f.svc.LogoutAll(ctx, userID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("list tokens", func(t *testing.T) {
		f := newServiceFixture(t)
		next := "b"
		f.store.On("ListForUser", mock.Anything, userID).Return([]types.RefreshToken{
			{Token: "b", UserID: userID},
			{Token: "a", UserID: userID, ReplacedByToken: &next},
		}, nil)
		tokens, err := f.svc.ListRefreshTokens(ctx, userID)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, "b", *tokens[1].ReplacedByToken)
	})
}
