package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HeaderSignInError carries the sign-in signal code on every rejected sign-in response
const HeaderSignInError = "X-Signin-Error"

// SignInCode is the caller-visible reason for a rejected sign-in
type SignInCode string

const (
	// CodeCredentialsRejected covers unknown user, inactive account and wrong password alike
	CodeCredentialsRejected SignInCode = "CredentialsRejected"
	CodeAccountLocked       SignInCode = "AccountLocked"
	CodeRateLimitExceeded   SignInCode = "RateLimitExceeded"
	// CodeSignInFailed is returned when sign-in could not be decided (store down, timeout)
	CodeSignInFailed SignInCode = "SignInFailed"
)

// SignInSignal is a rejection as shown to the caller
type SignInSignal struct {
	Code    SignInCode
	Minutes int // Only for AccountLocked and RateLimitExceeded; always >= 1 there
}

// HasMinutes reports whether the code carries a wait hint
func (s SignInSignal) HasMinutes() bool {
	return s.Code == CodeAccountLocked || s.Code == CodeRateLimitExceeded
}

// Message is the human-readable text for the signal
func (s SignInSignal) Message() string {
	switch s.Code {
	case CodeAccountLocked:
		return fmt.Sprintf("This account is temporarily locked. Try again in %d %s.", s.Minutes, plural(s.Minutes, "minute"))
	case CodeRateLimitExceeded:
		return fmt.Sprintf("Too many sign-in attempts. Try again in %d %s.", s.Minutes, plural(s.Minutes, "minute"))
	case CodeSignInFailed:
		return "Sign-in is temporarily unavailable. Please try again shortly."
	default:
		return "Invalid email or password."
	}
}

func (s SignInSignal) status() int {
	switch s.Code {
	case CodeAccountLocked:
		return http.StatusLocked
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeSignInFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// WriteSignInSignal renders a rejected sign-in. Browsers are redirected back to the
// sign-in page with error and minutes query parameters; JSON clients get an error body.
func WriteSignInSignal(w http.ResponseWriter, r *http.Request, signInPage string, sig SignInSignal) {
	if sig.HasMinutes() && sig.Minutes < 1 {
		sig.Minutes = 1
	}

	h := w.Header()
	h.Set(HeaderSignInError, string(sig.Code))
	h.Set("Cache-Control", "no-store")
	if sig.HasMinutes() {
		h.Set("Retry-After", strconv.Itoa(int((time.Duration(sig.Minutes) * time.Minute).Seconds())))
	} else {
		h.Del("Retry-After")
	}

	if WantsJSON(r) {
		h.Del("Location")
		resp := ErrorResponse{Error: string(sig.Code), Message: sig.Message()}
		if sig.HasMinutes() {
			resp.Minutes = sig.Minutes
		}
		writeErrorResponse(w, sig.status(), resp)
		return
	}

	h.Del("Content-Type")
	h.Set("Location", SignInPageURL(signInPage, sig))
	w.WriteHeader(http.StatusSeeOther)
}

// SignInPageURL builds the redirect target for a signal
func SignInPageURL(signInPage string, sig SignInSignal) string {
	q := url.Values{}
	q.Set("error", string(sig.Code))
	if sig.HasMinutes() {
		q.Set("minutes", strconv.Itoa(sig.Minutes))
	}
	return signInPage + "?" + q.Encode()
}

// ParseSignInSignal reads a signal from sign-in page query parameters.
// Unknown codes are reported as CredentialsRejected.
func ParseSignInSignal(q url.Values) (SignInSignal, bool) {
	code := SignInCode(q.Get("error"))
	if code == "" {
		return SignInSignal{}, false
	}

	sig := SignInSignal{Code: code}
	switch code {
	case CodeAccountLocked, CodeRateLimitExceeded:
		minutes, err := strconv.Atoi(q.Get("minutes"))
		if err != nil || minutes < 1 {
			minutes = 1
		}
		sig.Minutes = minutes
	case CodeSignInFailed, CodeCredentialsRejected:
	default:
		sig.Code = CodeCredentialsRejected
	}

	return sig, true
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
