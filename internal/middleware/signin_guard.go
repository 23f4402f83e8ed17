package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/BradenHooton/steeldesk/internal/metrics"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/ratelimit"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
)

const maxSignInBodyBytes = 64 << 10

// DefaultSignInPaths are the sign-in submission endpoints guarded by default
var DefaultSignInPaths = []string{"/admin/sign-in", "/api/auth/callback/credentials"}

// LockInspector reports the current lock of an account by its identifier.
// A nil decision means the account is not locked or does not exist.
type LockInspector interface {
	LockStatus(ctx context.Context, email string) (*models.LoginDecision, error)
}

// SignInGuardConfig configures SignInGuard
type SignInGuardConfig struct {
	Limiter    ratelimit.Limiter
	Inspector  LockInspector
	IPConfig   *pkghttp.IPConfig
	Paths      []string // path.Match patterns
	SignInPage string
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// SignInGuard protects sign-in submissions. It throttles by client address
// before the handler runs and, when the handler answers with the generic
// CredentialsRejected signal, re-queries the account lock so a locked
// account is reported as AccountLocked with the remaining minutes.
func SignInGuard(config SignInGuardConfig) func(http.Handler) http.Handler {
	if len(config.Paths) == 0 {
		config.Paths = DefaultSignInPaths
	}
	if config.SignInPage == "" {
		config.SignInPage = "/admin/sign-in"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !matchesAny(config.Paths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := pkghttp.ExtractClientIP(r, config.IPConfig)
			if result := config.Limiter.Check(clientKey, config.Now()); result.Limited {
				config.Metrics.IncrementRateLimited()
				config.Metrics.ObserveDecision(string(models.OutcomeRejected), string(models.ReasonRateLimitExceeded))
				config.Logger.Warn("sign-in rate limit exceeded",
					slog.String("client", clientKey),
					slog.Duration("retry_in", result.Remaining))

				pkghttp.WriteSignInSignal(w, r, config.SignInPage, pkghttp.SignInSignal{
					Code:    pkghttp.CodeRateLimitExceeded,
					Minutes: models.CeilMinutes(result.Remaining),
				})
				return
			}

			iw := &signInInterceptor{
				ResponseWriter: w,
				request:        r,
				email:          submittedIdentifier(r),
				config:         &config,
			}
			next.ServeHTTP(iw, r)
		})
	}
}

// signInInterceptor inspects the sign-in signal when the handler commits its
// response and replaces a generic rejection for a locked account.
type signInInterceptor struct {
	http.ResponseWriter
	request     *http.Request
	email       string
	config      *SignInGuardConfig
	wroteHeader bool
	replaced    bool
}

func (iw *signInInterceptor) WriteHeader(statusCode int) {
	if iw.wroteHeader {
		return
	}
	iw.wroteHeader = true

	if pkghttp.SignInCode(iw.Header().Get(pkghttp.HeaderSignInError)) == pkghttp.CodeCredentialsRejected {
		if decision := iw.lockedDecision(); decision != nil {
			iw.replaced = true
			iw.Header().Del("Content-Length")
			pkghttp.WriteSignInSignal(iw.ResponseWriter, iw.request, iw.config.SignInPage, pkghttp.SignInSignal{
				Code:    pkghttp.CodeAccountLocked,
				Minutes: decision.Minutes(),
			})
			return
		}
	}

	iw.ResponseWriter.WriteHeader(statusCode)
}

func (iw *signInInterceptor) Write(b []byte) (int, error) {
	if !iw.wroteHeader {
		iw.WriteHeader(http.StatusOK)
	}
	if iw.replaced {
		return len(b), nil
	}
	return iw.ResponseWriter.Write(b)
}

func (iw *signInInterceptor) Unwrap() http.ResponseWriter {
	return iw.ResponseWriter
}

// lockedDecision re-queries the lock. Errors fail open to the original signal.
func (iw *signInInterceptor) lockedDecision() *models.LoginDecision {
	if iw.email == "" || iw.config.Inspector == nil {
		return nil
	}

	decision, err := iw.config.Inspector.LockStatus(iw.request.Context(), iw.email)
	if err != nil {
		iw.config.Logger.Warn("lock re-query failed, keeping generic sign-in rejection",
			slog.String("email", pkglogger.SanitizedEmail(iw.email)),
			slog.Any("error", err))
		return nil
	}
	if decision == nil || decision.Reason != models.ReasonAccountLocked {
		return nil
	}

	return decision
}

// submittedIdentifier reads the email from a form or JSON body and leaves the
// body readable for the next handler
func submittedIdentifier(r *http.Request) string {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignInBodyBytes))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var payload struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return ""
		}
		return payload.Email
	}

	if r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, maxSignInBodyBytes)
	}
	return r.PostFormValue("email")
}

func matchesAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
