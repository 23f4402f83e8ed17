package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/steeldesk/internal/models"
	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
)

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	LoadLockStateFunc  func(ctx context.Context, id string) (models.LockState, error)
	SaveLockStateFunc  func(ctx context.Context, id string, prev, next models.LockState) error
	ResetLockStateFunc func(ctx context.Context, id string) error
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) LoadLockState(ctx context.Context, id string) (models.LockState, error) {
	if m.LoadLockStateFunc != nil {
		return m.LoadLockStateFunc(ctx, id)
	}
	return models.LockState{}, nil
}

func (m *MockAccountStore) SaveLockState(ctx context.Context, id string, prev, next models.LockState) error {
	if m.SaveLockStateFunc != nil {
		return m.SaveLockStateFunc(ctx, id, prev, next)
	}
	return nil
}

func (m *MockAccountStore) ResetLockState(ctx context.Context, id string) error {
	if m.ResetLockStateFunc != nil {
		return m.ResetLockStateFunc(ctx, id)
	}
	return nil
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockVerifier implements PasswordVerifier for testing
type MockVerifier struct {
	VerifyFunc func(plaintext, digest string) bool
	mu         sync.Mutex
	calls      int
}

func (m *MockVerifier) Verify(plaintext, digest string) bool {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.VerifyFunc != nil {
		return m.VerifyFunc(plaintext, digest)
	}
	return plaintext == testPassword
}

func (m *MockVerifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockNotifier implements LockoutNotifier for testing
type MockNotifier struct {
	Sent chan string
	Err  error
}

func (m *MockNotifier) NotifyAccountLocked(ctx context.Context, email string, lockUntil time.Time) error {
	if m.Sent != nil {
		m.Sent <- email
	}
	return m.Err
}

// MockTimingDelay implements TimingDelay for testing
type MockTimingDelay struct {
	WaitFromFunc func(startTime time.Time, succeeded bool)
}

func (m *MockTimingDelay) WaitFrom(startTime time.Time, succeeded bool) {
	if m.WaitFromFunc != nil {
		m.WaitFromFunc(startTime, succeeded)
	}
}

// MemoryAccountStore is an in-memory AccountStore with the same conditional
// write semantics as the PostgreSQL repository.
type MemoryAccountStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	saves     int
	conflicts int
}

func NewMemoryAccountStore(users ...*models.User) *MemoryAccountStore {
	store := &MemoryAccountStore{users: make(map[string]*models.User)}
	for _, u := range users {
		store.users[u.ID] = copyUser(u)
	}
	return store
}

func (f *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *MemoryAccountStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyUser(u), nil
}

func (f *MemoryAccountStore) LoadLockState(ctx context.Context, id string) (models.LockState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return models.LockState{}, models.ErrNotFound
	}
	return copyUser(u).LockState(), nil
}

func (f *MemoryAccountStore) SaveLockState(ctx context.Context, id string, prev, next models.LockState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return models.ErrNotFound
	}
	if !u.LockState().Equal(prev) {
		f.conflicts++
		return models.ErrLockStateConflict
	}

	f.saves++
	u.FailedAttemptCount = next.FailedAttemptCount
	u.LockUntil = copyTime(next.LockUntil)
	return nil
}

func (f *MemoryAccountStore) ResetLockState(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.FailedAttemptCount = 0
	u.LockUntil = nil
	return nil
}

func (f *MemoryAccountStore) state(id string) models.LockState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyUser(f.users[id]).LockState()
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.LockUntil = copyTime(u.LockUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

const testPassword = "correct horse battery"

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// NewTestUser creates an active admin with a clean lock state
func NewTestUser(id, email string) *models.User {
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$12$digest",
		Name:         "Test Admin",
		Role:         "admin",
		IsActive:     true,
		CreatedAt:    testNow.Add(-24 * time.Hour),
		UpdatedAt:    testNow.Add(-24 * time.Hour),
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestAuthService(store AccountStore, verifier PasswordVerifier, opts ...AuthServiceOption) *AuthService {
	logger := newTestLogger()
	opts = append([]AuthServiceOption{WithClock(func() time.Time { return testNow })}, opts...)

	s, err := NewAuthService(store, verifier, AuthServiceConfig{}, logger, pkglogger.NewAuditLogger(logger), opts...)
	if err != nil {
		panic(err)
	}
	return s
}
