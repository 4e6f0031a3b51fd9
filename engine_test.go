package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/luminacare/authcore/password"
	"github.com/luminacare/authcore/permission"
	"github.com/luminacare/authcore/session"
	"github.com/luminacare/authcore/token"
)

// testDirectory is an in-memory UserDirectory.
type testDirectory struct {
	mu        sync.Mutex
	users     map[string]UserRecord
	byIdent   map[string]string
	lastLogin map[string]time.Time

	failUpdateLastLogin bool
}

func newTestDirectory() *testDirectory {
	return &testDirectory{
		users:     make(map[string]UserRecord),
		byIdent:   make(map[string]string),
		lastLogin: make(map[string]time.Time),
	}
}

func (d *testDirectory) add(user UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
	d.byIdent[user.Email] = user.ID
}

func (d *testDirectory) get(id string) UserRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id]
}

func (d *testDirectory) GetByID(_ context.Context, userID string) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (d *testDirectory) GetByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byIdent[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return d.users[id], nil
}

func (d *testDirectory) SetTwoFactorEnabled(_ context.Context, userID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.TwoFactorEnabled = enabled
	d.users[userID] = user
	return nil
}

func (d *testDirectory) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failUpdateLastLogin {
		return errors.New("directory write failed")
	}
	d.lastLogin[userID] = at
	return nil
}

// testNotifier records dispatched SMS codes.
type testNotifier struct {
	mu       sync.Mutex
	lastCode string
	sent     int
	failNext bool
}

func (n *testNotifier) SendSMSCode(_ context.Context, _, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext {
		n.failNext = false
		return errors.New("gateway down")
	}
	n.lastCode = code
	n.sent++
	return nil
}

func (n *testNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastCode
}

func testPasswordConfig() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.SigningMethod = token.MethodHS256
	cfg.Password = testPasswordConfig()
	cfg.Cookie.Secure = false
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *testDirectory, *testNotifier, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	directory := newTestDirectory()
	notifier := &testNotifier{}

	engine, err := New().
		WithConfig(testEngineConfig()).
		WithStore(session.NewRedisStore(client, "t")).
		WithUserDirectory(directory).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return engine, directory, notifier, mr
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hasher, err := password.NewArgon2(testPasswordConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

func seedUser(t *testing.T, directory *testDirectory, id, email, plain string, role permission.RoleID) UserRecord {
	t.Helper()
	user := UserRecord{
		ID:           id,
		Email:        email,
		PasswordHash: hashPassword(t, plain),
		Role:         role,
		Status:       AccountActive,
	}
	directory.add(user)
	return user
}

func TestBuildRequiresDirectory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := New().
		WithConfig(testEngineConfig()).
		WithStore(session.NewRedisStore(client, "t")).
		Build()
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestBuildRequiresStore(t *testing.T) {
	_, err := New().
		WithConfig(testEngineConfig()).
		WithUserDirectory(newTestDirectory()).
		Build()
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestBuildRejectsBadRoleTable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := New().
		WithConfig(testEngineConfig()).
		WithStore(session.NewRedisStore(client, "t")).
		WithUserDirectory(newTestDirectory()).
		WithRoles([]permission.Role{
			{ID: "a", Inherits: []permission.RoleID{"b"}},
			{ID: "b", Inherits: []permission.RoleID{"a"}},
		}).
		Build()
	if err == nil {
		t.Fatal("expected cyclic role table to fail at Build")
	}
}

func TestEnginePermissionFacade(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if !engine.Can(permission.RoleSuperAdmin, "anything.at.all") {
		t.Fatal("superadmin wildcard must grant every permission")
	}
	if !engine.Can(permission.RoleAdmin, "profile.read") {
		t.Fatal("admin must inherit the patient base permissions")
	}
	if engine.Can(permission.RolePatient, "users.manage") {
		t.Fatal("patient must not hold admin permissions")
	}

	if !engine.HasLevel(permission.RoleAdmin, 2) {
		t.Fatal("admin (level 1) clears threshold 2")
	}
	if engine.HasLevel(permission.RolePatient, 2) {
		t.Fatal("patient (level 4) does not clear threshold 2")
	}

	perms, err := engine.ResolvePermissions(permission.RoleClinician)
	if err != nil {
		t.Fatalf("ResolvePermissions failed: %v", err)
	}
	if len(perms) == 0 {
		t.Fatal("clinician closure must not be empty")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	if _, err := engine.Login(context.Background(), "u1@example.com", "pass-word-1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Login(context.Background(), "u1@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap["login_success"] != 1 {
		t.Fatalf("login_success = %d, want 1", snap["login_success"])
	}
	if snap["login_failure"] != 1 {
		t.Fatalf("login_failure = %d, want 1", snap["login_failure"])
	}
	if snap["token_issued"] != 1 {
		t.Fatalf("token_issued = %d, want 1", snap["token_issued"])
	}
}

func TestAuditSinkReceivesEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	directory := newTestDirectory()
	sink := NewChannelSink(16)

	engine, err := New().
		WithConfig(testEngineConfig()).
		WithStore(session.NewRedisStore(client, "t")).
		WithUserDirectory(directory).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)
	if _, err := engine.Login(context.Background(), "u1@example.com", "pass-word-1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginSuccess {
			t.Fatalf("event type = %q, want %q", event.EventType, auditEventLoginSuccess)
		}
		if event.UserID != "u1" || !event.Success {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}
