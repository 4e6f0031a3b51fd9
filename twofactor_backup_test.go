package authcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/luminacare/authcore/permission"
)

func TestBackupCodesAreSingleUse(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)
	codes := enableTOTPWithCodes(t, engine, "u1")

	remaining, err := engine.BackupCodesRemaining(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BackupCodesRemaining failed: %v", err)
	}
	if remaining != len(codes) {
		t.Fatalf("remaining = %d, want %d", remaining, len(codes))
	}

	// Every code works exactly once.
	for _, code := range codes {
		if err := engine.VerifySecondFactor(context.Background(), "u1", MethodBackup, code); err != nil {
			t.Fatalf("fresh code %q rejected: %v", code, err)
		}
	}
	for _, code := range codes {
		if err := engine.VerifySecondFactor(context.Background(), "u1", MethodBackup, code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("spent code %q must fail with ErrInvalidCode, got %v", code, err)
		}
	}

	remaining, err = engine.BackupCodesRemaining(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BackupCodesRemaining failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d after exhausting the batch, want 0", remaining)
	}
}

func TestBackupCodeConcurrentConsumption(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)
	codes := enableTOTPWithCodes(t, engine, "u1")
	code := codes[0]

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := engine.VerifySecondFactor(context.Background(), "u1", MethodBackup, code); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("%d concurrent consumers succeeded, want exactly 1", wins.Load())
	}
}

func TestRegenerateBackupCodesSupersedesBatch(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	setup, err := engine.BeginTOTPSetup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	oldCodes, err := engine.ConfirmTOTPSetup(context.Background(), "u1", code)
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	newCodes, err := engine.RegenerateBackupCodes(context.Background(), "u1", MethodTOTP, code)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != 10 {
		t.Fatalf("got %d new codes, want 10", len(newCodes))
	}

	// The old batch is dead; the new one works.
	for _, old := range oldCodes {
		if err := engine.VerifySecondFactor(context.Background(), "u1", MethodBackup, old); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("superseded code %q must fail, got %v", old, err)
		}
	}
	if err := engine.VerifySecondFactor(context.Background(), "u1", MethodBackup, newCodes[0]); err != nil {
		t.Fatalf("new code rejected: %v", err)
	}
}

func TestRegenerateRequiresReProof(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)
	enableTOTPWithCodes(t, engine, "u1")

	if _, err := engine.RegenerateBackupCodes(context.Background(), "u1", MethodTOTP, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

// enableTOTPWithCodes activates TOTP for userID and returns the first
// backup-code batch.
func enableTOTPWithCodes(t *testing.T, engine *Engine, userID string) []string {
	t.Helper()
	setup, err := engine.BeginTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	codes, err := engine.ConfirmTOTPSetup(context.Background(), userID, code)
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	return codes
}
