package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shahdco/authcore/internal"
	"github.com/shahdco/authcore/ledger"
)

func TestRotateIssuesSuccessorAndRetiresOld(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	first, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	second, err := engine.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if second.RefreshToken == "" || second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a fresh refresh value")
	}
	if second.AccessToken == "" {
		t.Fatal("expected a fresh access token")
	}

	// The retired value must be unusable.
	if _, err := engine.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for retired token, got %v", err)
	}

	// The successor keeps working.
	if _, err := engine.Rotate(ctx, second.RefreshToken); err != nil {
		t.Fatalf("successor rotation failed: %v", err)
	}
}

func TestRotateUnknownRevokedExpiredAllLookAlike(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	// Unknown value.
	if _, err := engine.Rotate(ctx, "never-issued"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("unknown: expected ErrTokenExpired, got %v", err)
	}

	// Explicitly revoked value.
	revoked, err := internal.NewRefreshValue()
	if err != nil {
		t.Fatalf("NewRefreshValue failed: %v", err)
	}
	now := time.Now()
	if err := engine.tokens.Create(ctx, ledger.Token{
		Value: revoked, AccountID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := engine.tokens.Revoke(ctx, revoked); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, revoked); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("revoked: expected ErrTokenExpired, got %v", err)
	}

	// Value past its expiry instant but still inside the retention window.
	expired, err := internal.NewRefreshValue()
	if err != nil {
		t.Fatalf("NewRefreshValue failed: %v", err)
	}
	if err := engine.tokens.Create(ctx, ledger.Token{
		Value: expired, AccountID: "u1", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: expected ErrTokenExpired, got %v", err)
	}
}

func TestRotateInactiveOwner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	users.mu.Lock()
	a := users.accounts["u1"]
	a.Active = false
	users.accounts["u1"] = a
	users.mu.Unlock()

	if _, err := engine.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const workers = 6
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Rotate(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenExpired):
			losses++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if losses != workers-1 {
		t.Fatalf("expected %d losers, got %d", workers-1, losses)
	}
}

func TestIssueTokensRevokesOutstandingSessions(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	first, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	second, err := engine.IssueTokens(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}

	if _, err := engine.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected earlier session to be revoked, got %v", err)
	}
	if _, err := engine.Rotate(ctx, second.RefreshToken); err != nil {
		t.Fatalf("new session rotation failed: %v", err)
	}
}

func TestIssueTokensUnknownOrInactiveAccount(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	a := seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	a.Active = false
	users.add(a)
	engine := newTestEngine(t, rdb, users, hasher)

	if _, err := engine.IssueTokens(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing: expected ErrUserNotFound, got %v", err)
	}
	if _, err := engine.IssueTokens(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("inactive: expected ErrUserNotFound, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if err := engine.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("Logout of unknown value failed: %v", err)
	}

	if _, err := engine.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected logged-out token to be unusable, got %v", err)
	}
}

func TestLockoutDoesNotRevokeRefreshTokens(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	hasher := newTestHasher(t)
	users := newMockUserStore()
	seedAccount(t, users, hasher, "u1", "alice@example.com", "correct-horse-1")
	engine := newTestEngine(t, rdb, users, hasher)

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		engine.Login(ctx, "alice@example.com", "wrong-password-1")
	}
	if !users.get("u1").Locked(time.Now()) {
		t.Fatal("expected account to be locked")
	}

	// Existing sessions ride out a credential lockout.
	if _, err := engine.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotation during lockout failed: %v", err)
	}

	revoked, err := engine.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 active row revoked, got %d", revoked)
	}
}
