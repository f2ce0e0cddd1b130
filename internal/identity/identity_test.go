package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/store"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, headerJSON string, claims map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(headerJSON))
	body := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(header + "." + body))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return header + "." + body + "." + sig
}

func hs256Token(t *testing.T, secret string, claims map[string]interface{}) string {
	return signToken(t, secret, `{"alg":"HS256","typ":"JWT"}`, claims)
}

func TestValidateAcceptsGoodToken(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := hs256Token(t, testSecret, map[string]interface{}{
		"sub":   "ext-1",
		"email": "founder@example.com",
		"name":  "Founder",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if p.Subject != "ext-1" || p.Email != "founder@example.com" || p.Name != "Founder" {
		t.Errorf("principal = %+v", p)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"malformed", "not-a-jwt"},
		{"two parts", "a.b"},
		{"wrong secret", hs256Token(t, "other-secret", map[string]interface{}{"sub": "x", "exp": future})},
		{"alg none", signToken(t, testSecret, `{"alg":"none","typ":"JWT"}`, map[string]interface{}{"sub": "x"})},
		{"expired", hs256Token(t, testSecret, map[string]interface{}{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"not yet valid", hs256Token(t, testSecret, map[string]interface{}{"sub": "x", "nbf": future})},
		{"no subject", hs256Token(t, testSecret, map[string]interface{}{"exp": future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(tt.token)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("Validate(%s) err = %v, want ErrUnauthorized", tt.name, err)
			}
		})
	}
}

// userRepo is an in-memory user store for middleware tests.
type userRepo struct {
	store.Repository

	mu      sync.Mutex
	byExt   map[string]*domain.User
	created int

	// hideOnce makes the first lookup miss, simulating a provisioning race.
	hideOnce bool
}

func newUserRepo() *userRepo {
	return &userRepo{byExt: make(map[string]*domain.User)}
}

func (r *userRepo) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideOnce {
		r.hideOnce = false
		return nil, nil
	}
	return r.byExt[externalID], nil
}

func (r *userRepo) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byExt[user.ExternalID]; ok {
		return errors.New("UNIQUE constraint failed: users.external_id")
	}
	r.byExt[user.ExternalID] = user
	r.created++
	return nil
}

func (r *userRepo) UpdateLastSeen(context.Context, string, time.Time) error { return nil }

func middlewareHarness(repo store.Repository) http.Handler {
	mw := Middleware(NewVerifier(testSecret), repo)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			http.Error(w, "no user in context", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareProvisionsUnknownSubject(t *testing.T) {
	t.Parallel()

	repo := newUserRepo()
	handler := middlewareHarness(repo)

	token := hs256Token(t, testSecret, map[string]interface{}{
		"sub": "ext-new", "email": "new@example.com", "exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if repo.created != 1 {
		t.Errorf("created %d users, want 1", repo.created)
	}

	// Same subject again must resolve, not re-provision.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || repo.created != 1 {
		t.Errorf("second request: status=%d created=%d", rec.Code, repo.created)
	}
}

func TestMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	t.Parallel()

	handler := middlewareHarness(newUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectionBodiesAreJSON(t *testing.T) {
	t.Parallel()

	repo := newUserRepo()
	repo.byExt["ext-locked"] = &domain.User{ID: "u1", ExternalID: "ext-locked", Active: false}
	handler := middlewareHarness(repo)

	lockedToken := hs256Token(t, testSecret, map[string]interface{}{
		"sub": "ext-locked", "exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"bad token", "Bearer garbage", http.StatusUnauthorized},
		{"inactive account", "Bearer " + lockedToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v (%s)", err, rec.Body.String())
			}
			if body["detail"] == "" {
				t.Error("body missing detail field")
			}
		})
	}
}

func TestMiddlewareBlocksInactiveAccount(t *testing.T) {
	t.Parallel()

	repo := newUserRepo()
	repo.byExt["ext-locked"] = &domain.User{ID: "u1", ExternalID: "ext-locked", Active: false}
	handler := middlewareHarness(repo)

	token := hs256Token(t, testSecret, map[string]interface{}{
		"sub": "ext-locked", "exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("inactive account status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareAcceptsQueryTokenForSockets(t *testing.T) {
	t.Parallel()

	repo := newUserRepo()
	handler := middlewareHarness(repo)

	token := hs256Token(t, testSecret, map[string]interface{}{
		"sub": "ext-ws", "exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("query token status = %d, want 200", rec.Code)
	}
}

func TestResolveOrProvisionRaceReReads(t *testing.T) {
	t.Parallel()

	repo := newUserRepo()
	existing := &domain.User{ID: "u-existing", ExternalID: "ext-race", Active: true}
	repo.byExt["ext-race"] = existing
	repo.hideOnce = true

	// The first lookup misses, CreateUser conflicts on the unique external
	// ID, and resolution must fall back to the re-read.
	got, err := ResolveOrProvision(context.Background(), repo, &Principal{Subject: "ext-race"})
	if err != nil {
		t.Fatalf("ResolveOrProvision failed: %v", err)
	}
	if got.ID != "u-existing" {
		t.Errorf("resolved user = %q, want existing record", got.ID)
	}
}
