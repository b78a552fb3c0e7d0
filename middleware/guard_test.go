package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/shahdco/authcore"
	"github.com/shahdco/authcore/rate"
)

// staticUserStore satisfies authcore.UserStore with one fixed account;
// middleware tests only exercise the token path.
type staticUserStore struct{}

func (staticUserStore) GetByEmail(context.Context, string) (authcore.Account, error) {
	return authcore.Account{}, authcore.ErrUserNotFound
}

func (staticUserStore) GetByID(_ context.Context, id string) (authcore.Account, error) {
	if id != "u1" {
		return authcore.Account{}, authcore.ErrUserNotFound
	}
	return authcore.Account{
		ID:     "u1",
		Email:  "alice@example.com",
		Role:   "member",
		Active: true,
	}, nil
}

func (staticUserStore) Create(context.Context, authcore.Account) (authcore.Account, error) {
	return authcore.Account{}, errors.New("not implemented")
}

func (staticUserStore) UpdatePasswordHash(context.Context, string, string) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) IncrementFailedAttempts(context.Context, string) (int, error) {
	return 0, authcore.ErrUserNotFound
}

func (staticUserStore) SetLockout(context.Context, string, time.Time) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) ResetLockout(context.Context, string) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) SetLastLogin(context.Context, string, time.Time) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) GetTwoFactor(context.Context, string) (authcore.TwoFactorRecord, error) {
	return authcore.TwoFactorRecord{}, authcore.ErrTwoFactorNotEnrolled
}

func (staticUserStore) SetTwoFactor(context.Context, string, authcore.TwoFactorRecord) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) ConfirmTwoFactor(context.Context, string) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) ClearTwoFactor(context.Context, string) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) ReplaceBackupCodes(context.Context, string, []authcore.BackupCodeHash) error {
	return authcore.ErrUserNotFound
}

func (staticUserStore) ConsumeBackupCode(context.Context, string, authcore.BackupCodeHash) (bool, error) {
	return false, authcore.ErrUserNotFound
}

func newGuardEngine(t *testing.T) (*miniredis.Miniredis, *authcore.Engine) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed to start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(staticUserStore{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return mr, engine
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	mr, engine := newGuardEngine(t)
	defer mr.Close()
	defer engine.Close()

	pair, err := engine.IssueTokens(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}

	var seen *authcore.AuthResult
	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AuthResultFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil {
		t.Fatal("expected auth result in request context")
	}
	if seen.AccountID != "u1" || seen.Email != "alice@example.com" || seen.Role != "member" {
		t.Fatalf("unexpected auth result %+v", seen)
	}
}

func TestRequireAuthRejectsMissingOrBadToken(t *testing.T) {
	mr, engine := newGuardEngine(t)
	defer mr.Close()
	defer engine.Close()

	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestClientIdentity(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.5", "10.0.0.1:1234", "203.0.113.5"},
		{"forwarded chain", "203.0.113.5, 10.0.0.2", "10.0.0.1:1234", "203.0.113.5"},
		{"remote addr", "", "198.51.100.7:4567", "198.51.100.7"},
		{"remote addr without port", "", "198.51.100.7", "198.51.100.7"},
		{"nothing", "", "", "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientIdentity(req); got != tc.want {
				t.Fatalf("ClientIdentity = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed to start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	limiter := rate.New(rdb)
	handler := RateLimit(limiter, rate.Policy{Name: "api", Limit: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Backend failure answers 503, not a free pass.
	mr.Close()
	if rec := send(); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	nilHandler := RateLimit(nil, rate.PolicyAPI)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	nilHandler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil limiter: status = %d, want 503", recorder.Code)
	}
}
