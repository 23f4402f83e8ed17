package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/services"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
)

const (
	DefaultSignInPath = "/admin/sign-in"
	DefaultHomePath   = "/admin"
)

// Authenticator verifies sign-in credentials
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error)
}

// SessionIssuer signs the session handed out after a successful sign-in
type SessionIssuer interface {
	GenerateSessionToken(user *models.User) (string, time.Time, error)
}

// SignInRequest is the sign-in submission, posted as a form or JSON
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// SignInResponse is returned to JSON clients on success
type SignInResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignInHandler serves the admin sign-in page and processes submissions
type SignInHandler struct {
	service      Authenticator
	sessions     SessionIssuer
	cookieConfig auth.CookieConfig
	signInPath   string
	homePath     string
	logger       *slog.Logger
}

// NewSignInHandler creates a new SignInHandler
func NewSignInHandler(service Authenticator, sessions SessionIssuer, cookieConfig auth.CookieConfig, logger *slog.Logger) *SignInHandler {
	return &SignInHandler{
		service:      service,
		sessions:     sessions,
		cookieConfig: cookieConfig,
		signInPath:   DefaultSignInPath,
		homePath:     DefaultHomePath,
		logger:       logger,
	}
}

type signInPageData struct {
	Action  string
	Code    string
	Message string
}

// SignInPage handles GET /admin/sign-in
func (h *SignInHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	data := signInPageData{Action: h.signInPath}
	if sig, ok := pkghttp.ParseSignInSignal(r.URL.Query()); ok {
		data.Code = string(sig.Code)
		data.Message = sig.Message()
	}

	renderPage(w, h.logger, http.StatusOK, "signin.html", data)
}

// SignIn handles POST /admin/sign-in and /api/auth/callback/credentials
func (h *SignInHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSignInRequest(r)
	if err != nil {
		h.signal(w, r, pkghttp.SignInSignal{Code: pkghttp.CodeCredentialsRejected})
		return
	}

	if err := ValidateRequest(req); err != nil {
		h.logger.Debug("sign-in form rejected", slog.Any("error", err))
		h.signal(w, r, pkghttp.SignInSignal{Code: pkghttp.CodeCredentialsRejected})
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("sign-in could not be decided",
			slog.String("email", pkglogger.SanitizedEmail(req.Email)),
			slog.Any("error", err))
		h.signal(w, r, pkghttp.SignInSignal{Code: pkghttp.CodeSignInFailed})
		return
	}

	if !result.Decision.IsSuccess() {
		h.signal(w, r, signalFor(result.Decision))
		return
	}

	token, expiresAt, err := h.sessions.GenerateSessionToken(result.User)
	if err != nil {
		h.logger.Error("failed to issue session", slog.String("user_id", result.User.ID), slog.Any("error", err))
		h.signal(w, r, pkghttp.SignInSignal{Code: pkghttp.CodeSignInFailed})
		return
	}

	auth.SetSessionCookie(w, token, expiresAt, h.cookieConfig)
	w.Header().Set("Cache-Control", "no-store")

	if pkghttp.WantsJSON(r) {
		pkghttp.WriteJSON(w, http.StatusOK, SignInResponse{
			UserID:    result.User.ID,
			Email:     result.User.Email,
			Role:      result.User.Role,
			Token:     token,
			ExpiresAt: expiresAt,
		})
		return
	}

	http.Redirect(w, r, h.homePath, http.StatusSeeOther)
}

// SignOut handles POST /admin/sign-out
func (h *SignInHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookieConfig)

	if pkghttp.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, h.signInPath, http.StatusSeeOther)
}

type homePageData struct {
	Email         string
	Role          string
	SignOutAction string
}

// Home handles GET /admin for a signed-in account
func (h *SignInHandler) Home(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		http.Redirect(w, r, h.signInPath, http.StatusSeeOther)
		return
	}

	renderPage(w, h.logger, http.StatusOK, "admin.html", homePageData{
		Email:         claims.Email,
		Role:          claims.Role,
		SignOutAction: "/admin/sign-out",
	})
}

func (h *SignInHandler) signal(w http.ResponseWriter, r *http.Request, sig pkghttp.SignInSignal) {
	pkghttp.WriteSignInSignal(w, r, h.signInPath, sig)
}

// signalFor maps a rejection to what the caller may see. Unknown account,
// inactive account and wrong password all collapse to CredentialsRejected.
func signalFor(decision models.LoginDecision) pkghttp.SignInSignal {
	switch decision.Reason {
	case models.ReasonAccountLocked:
		return pkghttp.SignInSignal{Code: pkghttp.CodeAccountLocked, Minutes: decision.Minutes()}
	case models.ReasonRateLimitExceeded:
		return pkghttp.SignInSignal{Code: pkghttp.CodeRateLimitExceeded, Minutes: decision.Minutes()}
	default:
		return pkghttp.SignInSignal{Code: pkghttp.CodeCredentialsRejected}
	}
}

func decodeSignInRequest(r *http.Request) (SignInRequest, error) {
	var req SignInRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10)).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	return req, nil
}
