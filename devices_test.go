package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/luminacare/authcore/permission"
)

func TestTrustedDeviceCap(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("device-%d", i)
		if err := engine.AddTrustedDevice(context.Background(), "u1", id, "laptop"); err != nil {
			t.Fatalf("AddTrustedDevice #%d failed: %v", i+1, err)
		}
	}

	// The 6th add fails; nothing is evicted.
	if err := engine.AddTrustedDevice(context.Background(), "u1", "device-5", "phone"); !errors.Is(err, ErrDeviceLimitReached) {
		t.Fatalf("expected ErrDeviceLimitReached, got %v", err)
	}
	devices, err := engine.ListTrustedDevices(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListTrustedDevices failed: %v", err)
	}
	if len(devices) != 5 {
		t.Fatalf("got %d devices, want 5", len(devices))
	}

	// Revoking one frees a slot for the retry.
	if err := engine.RevokeTrustedDevice(context.Background(), "u1", "device-0"); err != nil {
		t.Fatalf("RevokeTrustedDevice failed: %v", err)
	}
	if err := engine.AddTrustedDevice(context.Background(), "u1", "device-5", "phone"); err != nil {
		t.Fatalf("AddTrustedDevice after revoke failed: %v", err)
	}
}

func TestTrustedDeviceInputValidation(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	bad := []struct {
		deviceID   string
		deviceName string
	}{
		{"", "laptop"},
		{strings.Repeat("x", 129), "laptop"},
		{"device with spaces", "laptop"},
		{"device;drop", "laptop"},
		{"device-1", strings.Repeat("n", 65)},
	}
	for _, tc := range bad {
		if err := engine.AddTrustedDevice(context.Background(), "u1", tc.deviceID, tc.deviceName); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", tc, err)
		}
	}

	if err := engine.AddTrustedDevice(context.Background(), "u1", "fp_a1:b2.c3-d4", "Work MacBook"); err != nil {
		t.Fatalf("valid device rejected: %v", err)
	}
}

func TestDeviceTrustLifecycle(t *testing.T) {
	engine, directory, _, mr := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	if engine.isDeviceTrusted(context.Background(), "u1", "device-1") {
		t.Fatal("unknown device must not be trusted")
	}

	if err := engine.AddTrustedDevice(context.Background(), "u1", "device-1", "laptop"); err != nil {
		t.Fatalf("AddTrustedDevice failed: %v", err)
	}
	if !engine.isDeviceTrusted(context.Background(), "u1", "device-1") {
		t.Fatal("registered device must be trusted")
	}
	if engine.isDeviceTrusted(context.Background(), "u2", "device-1") {
		t.Fatal("trust must be scoped per user")
	}

	if err := engine.RevokeTrustedDevice(context.Background(), "u1", "device-1"); err != nil {
		t.Fatalf("RevokeTrustedDevice failed: %v", err)
	}
	if engine.isDeviceTrusted(context.Background(), "u1", "device-1") {
		t.Fatal("revoked device must not be trusted")
	}

	// Absolute expiry ends trust even without revocation.
	if err := engine.AddTrustedDevice(context.Background(), "u1", "device-2", "tablet"); err != nil {
		t.Fatalf("AddTrustedDevice failed: %v", err)
	}
	mr.FastForward(31 * 24 * time.Hour)
	if engine.isDeviceTrusted(context.Background(), "u1", "device-2") {
		t.Fatal("expired device must not be trusted")
	}
}

func TestRevokeUnknownDeviceIsIdempotent(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	if err := engine.RevokeTrustedDevice(context.Background(), "u1", "never-seen"); err != nil {
		t.Fatalf("revoking an unknown device must not error: %v", err)
	}
}

func TestReTrustingKnownDeviceRefreshesWindow(t *testing.T) {
	engine, directory, _, _ := newTestEngine(t)
	seedUser(t, directory, "u1", "u1@example.com", "pass-word-1", permission.RolePatient)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("device-%d", i)
		if err := engine.AddTrustedDevice(context.Background(), "u1", id, "laptop"); err != nil {
			t.Fatalf("AddTrustedDevice #%d failed: %v", i+1, err)
		}
	}
	// Re-adding an already-trusted device does not count against the cap.
	if err := engine.AddTrustedDevice(context.Background(), "u1", "device-0", "laptop"); err != nil {
		t.Fatalf("re-trusting a known device failed: %v", err)
	}
}
