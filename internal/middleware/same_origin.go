package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
)

// SameOrigin rejects state-changing browser requests whose Origin (or Referer)
// names a different host. Requests carrying neither header are let through.
func SameOrigin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			source := r.Header.Get("Origin")
			if source == "" {
				source = r.Header.Get("Referer")
			}
			if source == "" {
				next.ServeHTTP(w, r)
				return
			}

			u, err := url.Parse(source)
			if err != nil || u.Host != r.Host {
				logger.Warn("cross-origin request blocked",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", source))
				pkghttp.WriteForbidden(w, "cross-origin request rejected")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
