package middleware

import (
	"net/http"
	"strings"

	"github.com/heartwise/backend/internal/logging"
)

// TokenVerifier resolves a bearer access token to a user id.
type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// Authenticate attaches the caller's user id to the request context when a
// valid bearer token is present. Requests without a token pass through
// anonymously; handlers decide whether authentication is mandatory.
// A malformed or expired token is rejected outright.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, err := verifier.VerifyAccessToken(token)
			if err != nil {
				logging.FromContext(ctx).Warn("rejected bearer token", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Not authenticated"}` + "\n"))
				return
			}

			ctx = logging.WithUserID(ctx, userID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
