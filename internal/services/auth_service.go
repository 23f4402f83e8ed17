package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/steeldesk/internal/lockout"
	"github.com/BradenHooton/steeldesk/internal/metrics"
	"github.com/BradenHooton/steeldesk/internal/models"
	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultStoreTimeout    = 3 * time.Second
	DefaultMaxWriteRetries = 5
	DefaultNotifyTimeout   = 10 * time.Second
)

// AccountStore defines the lockout store operations used by sign-in
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	LoadLockState(ctx context.Context, id string) (models.LockState, error)
	SaveLockState(ctx context.Context, id string, prev, next models.LockState) error
	ResetLockState(ctx context.Context, id string) error
}

// PasswordVerifier checks a plaintext secret against a stored digest
type PasswordVerifier interface {
	Verify(plaintext, digest string) bool
}

// TimingDelay pads rejected attempts to a uniform duration
type TimingDelay interface {
	WaitFrom(startTime time.Time, succeeded bool)
}

// AuthServiceConfig holds the tunables of the credential verifier
type AuthServiceConfig struct {
	Policy          lockout.Policy
	StoreTimeout    time.Duration
	MaxWriteRetries int
	NotifyTimeout   time.Duration
}

func (c *AuthServiceConfig) applyDefaults() {
	if c.Policy.Threshold == 0 && c.Policy.Duration == 0 {
		c.Policy = lockout.DefaultPolicy()
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.MaxWriteRetries <= 0 {
		c.MaxWriteRetries = DefaultMaxWriteRetries
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
}

// AuthResult is the outcome of one credential check.
// User is set only on success.
type AuthResult struct {
	Decision models.LoginDecision
	User     *models.User
}

// AuthService verifies admin credentials and maintains account lockout state
type AuthService struct {
	store       AccountStore
	verifier    PasswordVerifier
	notifier    LockoutNotifier
	timingDelay TimingDelay
	config      AuthServiceConfig
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// AuthServiceOption configures optional AuthService collaborators
type AuthServiceOption func(*AuthService)

func WithNotifier(n LockoutNotifier) AuthServiceOption {
	return func(s *AuthService) { s.notifier = n }
}

func WithTimingDelay(td TimingDelay) AuthServiceOption {
	return func(s *AuthService) { s.timingDelay = td }
}

func WithMetrics(m *metrics.Metrics) AuthServiceOption {
	return func(s *AuthService) { s.metrics = m }
}

func WithTracer(t trace.Tracer) AuthServiceOption {
	return func(s *AuthService) { s.tracer = t }
}

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) AuthServiceOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new AuthService
func NewAuthService(store AccountStore, verifier PasswordVerifier, config AuthServiceConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, opts ...AuthServiceOption) (*AuthService, error) {
	config.applyDefaults()
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}

	s := &AuthService{
		store:       store,
		verifier:    verifier,
		notifier:    NoopNotifier{},
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("steeldesk/services")
	}

	return s, nil
}

// Authenticate checks one sign-in attempt and persists the resulting lock state.
// Rejections are returned as decisions; a non-nil error means the attempt could
// not be decided or its outcome could not be recorded and must be refused.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (result *AuthResult, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	defer func() {
		s.finish(span, result, err)
		if s.timingDelay != nil {
			s.timingDelay.WaitFrom(start, err == nil && result.Decision.IsSuccess())
		}
	}()

	email = normalizeEmail(email)
	if email == "" {
		return s.reject(ctx, nil, email, models.Rejected(models.ReasonUserNotFound, 0)), nil
	}

	user, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.reject(ctx, nil, email, models.Rejected(models.ReasonUserNotFound, 0)), nil
		}
		s.metrics.IncrementStoreErrors("read")
		s.logger.Error("sign-in aborted: account lookup failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, err
	}

	if !user.IsActive {
		return s.reject(ctx, user, email, models.Rejected(models.ReasonAccountInactive, 0)), nil
	}

	decision, err := s.decide(ctx, user, password)
	if err != nil {
		return nil, err
	}

	if !decision.IsSuccess() {
		return s.reject(ctx, user, email, decision), nil
	}

	s.metrics.ObserveDecision(string(decision.Outcome), string(decision.Reason))
	s.logger.Info("admin signed in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "signin_success",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return &AuthResult{Decision: decision, User: user}, nil
}

// decide runs the lockout state machine against the stored state, retrying
// the conditional write against the winning state when it loses a race.
// The password is verified at most once and never while the account is locked.
func (s *AuthService) decide(ctx context.Context, user *models.User, password string) (models.LoginDecision, error) {
	policy := s.config.Policy
	state := user.LockState()

	var outcome lockout.PasswordOutcome
	verified := false

	for attempt := 0; ; attempt++ {
		now := s.now()

		unlocked, rejection := policy.CheckLock(state, now)
		if rejection != nil {
			return *rejection, nil
		}

		if !verified {
			outcome = lockout.PasswordInvalid
			if s.verifier.Verify(password, user.PasswordHash) {
				outcome = lockout.PasswordValid
			}
			verified = true
		}

		next, decision := policy.Apply(unlocked, now, outcome)
		if next.Equal(state) {
			return decision, nil
		}

		err := s.saveLockState(ctx, user.ID, state, next)
		if err == nil {
			if lockout.NewlyLocked(state, next, now) {
				s.onLocked(ctx, user, *next.LockUntil)
			}
			return decision, nil
		}

		if !errors.Is(err, models.ErrLockStateConflict) || attempt >= s.config.MaxWriteRetries {
			return models.LoginDecision{}, s.writeFailed(user, outcome, next, err)
		}

		s.metrics.IncrementConflicts()
		s.logger.Debug("lock state changed concurrently, retrying",
			slog.String("user_id", user.ID),
			slog.Int("attempt", attempt+1))

		state, err = s.loadLockState(ctx, user.ID)
		if err != nil {
			return models.LoginDecision{}, s.writeFailed(user, outcome, next, err)
		}
	}
}

// LockStatus reports whether the account behind email is locked right now.
// Unknown and inactive accounts are reported as not locked.
func (s *AuthService) LockStatus(ctx context.Context, email string) (*models.LoginDecision, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	user, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.metrics.IncrementStoreErrors("status")
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}

	return s.lockDecision(user), nil
}

// AccountLockStatus is the admin view of an account's lock fields
type AccountLockStatus struct {
	UserID             string     `json:"user_id"`
	Locked             bool       `json:"locked"`
	FailedAttemptCount int        `json:"failed_attempt_count"`
	LockUntil          *time.Time `json:"lock_until,omitempty"`
	MinutesRemaining   int        `json:"minutes_remaining,omitempty"`
}

// GetLockStatus returns the lock fields of an account by id
func (s *AuthService) GetLockStatus(ctx context.Context, userID string) (*AccountLockStatus, error) {
	user, err := s.getByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &AccountLockStatus{
		UserID:             user.ID,
		FailedAttemptCount: user.FailedAttemptCount,
		LockUntil:          user.LockUntil,
	}
	if decision := s.lockDecision(user); decision != nil {
		status.Locked = true
		status.MinutesRemaining = decision.Minutes()
	}

	return status, nil
}

// Unlock clears the failure counter and any lock on an account
func (s *AuthService) Unlock(ctx context.Context, userID, actorID string) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.store.ResetLockState(storeCtx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to unlock account", slog.String("user_id", userID), slog.Any("error", err))
		return unavailable(err)
	}

	s.logger.Info("account unlocked", slog.String("user_id", userID), slog.String("actor_id", actorID))
	s.auditLogger.LogAccountAction(ctx, "account_unlocked", userID, actorID, nil)

	return nil
}

func (s *AuthService) lockDecision(user *models.User) *models.LoginDecision {
	_, rejection := s.config.Policy.CheckLock(user.LockState(), s.now())
	return rejection
}

func (s *AuthService) reject(ctx context.Context, user *models.User, email string, decision models.LoginDecision) *AuthResult {
	s.metrics.ObserveDecision(string(decision.Outcome), string(decision.Reason))

	event := pkglogger.AuditEvent{
		EventType:     "signin_failed",
		Email:         email,
		Success:       false,
		FailureReason: string(decision.Reason),
	}
	if user != nil {
		event.UserID = user.ID
	}
	if decision.Reason == models.ReasonAccountLocked {
		event.Metadata = map[string]string{"minutes": fmt.Sprint(decision.Minutes())}
	}
	s.auditLogger.LogAuthAttempt(ctx, event)

	return &AuthResult{Decision: decision}
}

func (s *AuthService) onLocked(ctx context.Context, user *models.User, lockUntil time.Time) {
	s.metrics.IncrementLockouts()
	s.logger.Warn("account locked after repeated failures",
		slog.String("user_id", user.ID),
		slog.Time("lock_until", lockUntil))
	s.auditLogger.LogAccountAction(ctx, "account_locked", user.ID, "", map[string]string{
		"lock_until": lockUntil.UTC().Format(time.RFC3339),
	})

	go func(email string) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), s.config.NotifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyAccountLocked(notifyCtx, email, lockUntil); err != nil {
			s.logger.Warn("failed to send lockout notification",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
	}(user.Email)
}

func (s *AuthService) writeFailed(user *models.User, outcome lockout.PasswordOutcome, next models.LockState, err error) error {
	s.metrics.IncrementStoreErrors("write")

	attrs := []any{
		slog.String("user_id", user.ID),
		slog.String("password", outcome.String()),
		slog.Int("intended_failed_attempt_count", next.FailedAttemptCount),
		slog.Bool("consistency_risk", true),
		slog.Any("error", err),
	}
	if next.LockUntil != nil {
		attrs = append(attrs, slog.Time("intended_lock_until", *next.LockUntil))
	}
	s.logger.Error("failed to persist lock state", attrs...)

	return fmt.Errorf("%w: %w", models.ErrLockStateWrite, err)
}

func (s *AuthService) finish(span trace.Span, result *AuthResult, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if result != nil {
		span.SetAttributes(
			attribute.String("signin.outcome", string(result.Decision.Outcome)),
			attribute.String("signin.reason", string(result.Decision.Reason)),
		)
	}
	span.End()
}

func (s *AuthService) getByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := s.store.GetByEmail(ctx, email)
	return user, classifyReadErr(err)
}

func (s *AuthService) getByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := s.store.GetByID(ctx, id)
	return user, classifyReadErr(err)
}

func (s *AuthService) loadLockState(ctx context.Context, id string) (models.LockState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.store.LoadLockState(ctx, id)
}

func (s *AuthService) saveLockState(ctx context.Context, id string, prev, next models.LockState) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return s.store.SaveLockState(ctx, id, prev, next)
}

func classifyReadErr(err error) error {
	if err == nil || errors.Is(err, models.ErrNotFound) {
		return err
	}
	return unavailable(err)
}

// unavailable marks err as an infrastructure failure unless it already is one
func unavailable(err error) error {
	if errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrMalformedState) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
