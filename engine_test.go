package authcore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shahdco/authcore/jwt"
	"github.com/shahdco/authcore/ledger"
	"github.com/shahdco/authcore/password"
	"github.com/shahdco/authcore/rate"
)

type mockUserStore struct {
	mu          sync.Mutex
	accounts    map[string]Account
	byEmail     map[string]string
	twoFactor   map[string]TwoFactorRecord
	backupCodes map[string][]BackupCodeHash

	updateErr    error
	createErr    error
	twoFactorErr error

	incrementCalls  int
	setLockoutCalls int
	resetCalls      int
	consumeCalls    int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		accounts:    make(map[string]Account),
		byEmail:     make(map[string]string),
		twoFactor:   make(map[string]TwoFactorRecord),
		backupCodes: make(map[string][]BackupCodeHash),
	}
}

func (m *mockUserStore) add(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	m.byEmail[a.Email] = a.ID
}

func (m *mockUserStore) get(id string) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return m.accounts[id], nil
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return a, nil
}

func (m *mockUserStore) Create(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return Account{}, m.createErr
	}
	if _, exists := m.byEmail[a.Email]; exists {
		return Account{}, ErrDuplicateEmail
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("u%d", len(m.accounts)+1)
	}
	m.accounts[a.ID] = a
	m.byEmail[a.Email] = a.ID
	return a, nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrUserNotFound
	}
	a.PasswordHash = hash
	m.accounts[id] = a
	return nil
}

func (m *mockUserStore) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.incrementCalls++
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	a.FailedAttempts++
	m.accounts[id] = a
	return a.FailedAttempts, nil
}

func (m *mockUserStore) SetLockout(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLockoutCalls++
	a, ok := m.accounts[id]
	if !ok {
		return ErrUserNotFound
	}
	a.LockoutEnd = until
	m.accounts[id] = a
	return nil
}

func (m *mockUserStore) ResetLockout(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetCalls++
	a, ok := m.accounts[id]
	if !ok {
		return ErrUserNotFound
	}
	a.FailedAttempts = 0
	a.LockoutEnd = time.Time{}
	m.accounts[id] = a
	return nil
}

func (m *mockUserStore) SetLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrUserNotFound
	}
	a.LastLoginAt = at
	m.accounts[id] = a
	return nil
}

func (m *mockUserStore) GetTwoFactor(_ context.Context, id string) (TwoFactorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.twoFactorErr != nil {
		return TwoFactorRecord{}, m.twoFactorErr
	}
	rec, ok := m.twoFactor[id]
	if !ok {
		return TwoFactorRecord{}, ErrTwoFactorNotEnrolled
	}
	return rec, nil
}

func (m *mockUserStore) SetTwoFactor(_ context.Context, id string, rec TwoFactorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.twoFactor[id] = rec
	a, ok := m.accounts[id]
	if ok {
		a.TwoFactorEnabled = rec.Confirmed
		m.accounts[id] = a
	}
	return nil
}

func (m *mockUserStore) ConfirmTwoFactor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.twoFactor[id]
	if !ok {
		return ErrTwoFactorNotEnrolled
	}
	rec.Confirmed = true
	m.twoFactor[id] = rec

	a, ok := m.accounts[id]
	if ok {
		a.TwoFactorEnabled = true
		m.accounts[id] = a
	}
	return nil
}

func (m *mockUserStore) ClearTwoFactor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.twoFactor, id)
	a, ok := m.accounts[id]
	if ok {
		a.TwoFactorEnabled = false
		m.accounts[id] = a
	}
	return nil
}

func (m *mockUserStore) ReplaceBackupCodes(_ context.Context, id string, hashes []BackupCodeHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.backupCodes[id] = append([]BackupCodeHash(nil), hashes...)
	return nil
}

func (m *mockUserStore) ConsumeBackupCode(_ context.Context, id string, hash BackupCodeHash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumeCalls++
	codes := m.backupCodes[id]
	matchIndex := -1
	for i := range codes {
		if subtle.ConstantTimeCompare(codes[i][:], hash[:]) == 1 && matchIndex == -1 {
			matchIndex = i
		}
	}
	if matchIndex < 0 {
		return false, nil
	}
	m.backupCodes[id] = append(codes[:matchIndex], codes[matchIndex+1:]...)
	return true, nil
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.New(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("password.New failed: %v", err)
	}
	return h
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestJWT(t *testing.T) *jwt.Manager {
	t.Helper()

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("jwt.NewManager failed: %v", err)
	}
	return jm
}

func newTestEngine(t *testing.T, rdb *redis.Client, users UserStore, hasher *password.Hasher) *Engine {
	t.Helper()

	cfg := defaultConfig()
	cfg.RateLimit.Enabled = false

	e := &Engine{
		config:       cfg,
		users:        users,
		tokens:       ledger.NewRedisStore(rdb, time.Hour),
		passwordHash: hasher,
		totp:         newTOTPManager(cfg.TOTP),
		jwtManager:   newTestJWT(t),
	}
	return e
}

func withTestRateLimit(e *Engine, rdb *redis.Client, p rate.Policy) {
	e.config.RateLimit.Enabled = true
	e.config.RateLimit.Login = p
	e.rateLimiter = rate.New(rdb)
}

func seedAccount(t *testing.T, users *mockUserStore, hasher *password.Hasher, id, email, plain string) Account {
	t.Helper()

	hash, err := hasher.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	a := Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         "member",
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	users.add(a)
	return a
}
