// Package identity authenticates requests and resolves canonical internal users.
//
// A single externally-delegated scheme is supported: HS256-signed bearer
// tokens issued by the identity provider, verified against a shared secret.
// Unknown subjects are provisioned just-in-time on first sight.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/store"
	"github.com/google/uuid"
)

type contextKey int

const userKey contextKey = iota

// Principal is the identity asserted by a validated token.
type Principal struct {
	Subject string
	Email   string
	Name    string
}

// Verifier validates bearer tokens against a shared HS256 secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type tokenClaims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	ExpiresAt int64  `json:"exp"`
	NotBefore int64  `json:"nbf"`
}

// Validate checks a compact JWT and returns its principal.
// Any structural, signature, or expiry failure maps to ErrUnauthorized.
func (v *Verifier) Validate(token string) (*Principal, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad token header", domain.ErrUnauthorized)
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: bad token header", domain.ErrUnauthorized)
	}
	if header.Alg != "HS256" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrUnauthorized, header.Alg)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad token signature", domain.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad token claims", domain.ErrUnauthorized)
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("%w: bad token claims", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	now := time.Now().Unix()
	if claims.ExpiresAt != 0 && now >= claims.ExpiresAt {
		return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	if claims.NotBefore != 0 && now < claims.NotBefore {
		return nil, fmt.Errorf("%w: token not yet valid", domain.ErrUnauthorized)
	}

	return &Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

// ResolveOrProvision maps a principal to an internal user, creating the
// record the first time an external identity is seen.
func ResolveOrProvision(ctx context.Context, repo store.Repository, p *Principal) (*domain.User, error) {
	user, err := repo.GetUserByExternalID(ctx, p.Subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	user = &domain.User{
		ID:         uuid.NewString(),
		ExternalID: p.Subject,
		Email:      p.Email,
		Name:       p.Name,
		Active:     true,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		// Concurrent first requests can race on the unique external_id;
		// re-read instead of failing the turn.
		if existing, getErr := repo.GetUserByExternalID(ctx, p.Subject); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// WithUser returns a context carrying the given user. Exposed for tests.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	// WebSocket clients cannot set headers from the browser.
	return r.URL.Query().Get("token")
}

// deny writes a JSON error body. The api package's helpers are off limits
// here: api imports identity for the request user, so using them would
// create an import cycle.
func deny(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"detail":%q}`+"\n", detail)
}

// Middleware authenticates each request and injects the resolved user.
func Middleware(verifier *Verifier, repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			principal, err := verifier.Validate(token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			user, err := ResolveOrProvision(r.Context(), repo, principal)
			if err != nil {
				deny(w, http.StatusInternalServerError, "failed to resolve user")
				return
			}
			if !user.Active {
				deny(w, http.StatusForbidden, "account is inactive")
				return
			}

			if err := repo.UpdateLastSeen(r.Context(), user.ID, time.Now()); err != nil {
				// Presence tracking must not fail the request.
				slog.Warn("failed to update last seen", "user_id", user.ID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
