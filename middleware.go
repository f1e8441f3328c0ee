package fireauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultSessionCookieName is the cookie the session middleware reads when no
// name is configured.
const DefaultSessionCookieName = "__session"

// RequireIDToken returns middleware that verifies the Authorization bearer
// token on each request. Requests without a valid ID token receive a 401; on
// success the caller identity is bound to the request context.
func RequireIDToken(verifier *Verifier, opts ...VerifyOption) func(http.Handler) http.Handler {
	return requireCredential(func(ctx context.Context, r *http.Request) (*Claims, error) {
		token, ok := bearerToken(r)
		if !ok {
			return nil, newError(ErrCodeInvalidTokenFormat, nil)
		}
		return verifier.VerifyIDToken(ctx, token, opts...)
	})
}

// RequireSessionCookie returns middleware that verifies the named session
// cookie on each request. An empty cookieName selects
// DefaultSessionCookieName.
func RequireSessionCookie(verifier *Verifier, cookieName string, opts ...VerifyOption) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return requireCredential(func(ctx context.Context, r *http.Request) (*Claims, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return nil, newError(ErrCodeInvalidCookieFormat, nil)
		}
		return verifier.VerifySessionCookie(ctx, cookie.Value, opts...)
	})
}

func requireCredential(verify func(context.Context, *http.Request) (*Claims, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verify(r.Context(), r)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			identity := CallerIdentity{
				Claims: claims,
				User:   UserFromClaims(claims),
			}
			next.ServeHTTP(w, r.WithContext(BindCallerIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	switch CodeOf(err) {
	case ErrCodeKeysUnavailable, ErrCodeNoKeysAvailable, ErrCodeInternal:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": string(CodeOf(err))})
}
