package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luminacare/authcore/session"
)

// AddTrustedDevice grants deviceID a time-boxed second-factor bypass
// for userID. The device id and name are untrusted client input and
// are validated here. At the cap the add fails with
// ErrDeviceLimitReached; an existing device must be revoked explicitly
// first, never evicted silently.
func (e *Engine) AddTrustedDevice(ctx context.Context, userID, deviceID, deviceName string) error {
	if err := e.validateDeviceInput(deviceID, deviceName); err != nil {
		return err
	}

	devices, err := e.store.ListTrustedDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	active := 0
	for _, d := range devices {
		if d.DeviceID == deviceID && !d.Revoked && d.ExpiresAt > now.Unix() {
			// Re-trusting a known device refreshes its window below
			// without counting it against the cap twice.
			continue
		}
		if !d.Revoked && d.ExpiresAt > now.Unix() {
			active++
		}
	}
	if active >= e.cfg.TrustedDevice.MaxPerUser {
		e.metrics.inc(MetricDeviceRejected)
		e.emitAudit(ctx, auditEventDeviceRejected, false, userID, "", ErrDeviceLimitReached, func() map[string]string {
			return map[string]string{"device_id": deviceID}
		})
		return ErrDeviceLimitReached
	}

	device := &session.TrustedDevice{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		ExpiresAt:  now.Add(e.cfg.TrustedDevice.TTL).Unix(),
		IPAddress:  clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		CreatedAt:  now.Unix(),
	}
	if err := e.store.SaveTrustedDevice(ctx, device); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventDeviceTrusted, true, userID, "", nil, func() map[string]string {
		return map[string]string{"device_id": deviceID}
	})
	return nil
}

// ListTrustedDevices returns the user's device records, including
// revoked and expired ones still within the store's retention.
func (e *Engine) ListTrustedDevices(ctx context.Context, userID string) ([]session.TrustedDevice, error) {
	devices, err := e.store.ListTrustedDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}

// RevokeTrustedDevice withdraws a device's bypass immediately.
func (e *Engine) RevokeTrustedDevice(ctx context.Context, userID, deviceID string) error {
	if err := e.store.RevokeTrustedDevice(ctx, userID, deviceID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"device_id": deviceID}
	})
	return nil
}

// isDeviceTrusted reports whether deviceID currently bypasses the
// second factor for userID: known, not revoked, and within its
// absolute expiry. Store failures count as untrusted.
func (e *Engine) isDeviceTrusted(ctx context.Context, userID, deviceID string) bool {
	if deviceID == "" {
		return false
	}
	device, err := e.store.GetTrustedDevice(ctx, userID, deviceID)
	if err != nil {
		return false
	}
	return !device.Revoked && device.ExpiresAt > time.Now().Unix()
}

func (e *Engine) validateDeviceInput(deviceID, deviceName string) error {
	if deviceID == "" || len(deviceID) > e.cfg.TrustedDevice.MaxDeviceIDLength {
		return fmt.Errorf("%w: device id length", ErrValidation)
	}
	for _, r := range deviceID {
		if !isDeviceIDRune(r) {
			return fmt.Errorf("%w: device id charset", ErrValidation)
		}
	}
	if len(deviceName) > e.cfg.TrustedDevice.MaxDeviceNameLength {
		return fmt.Errorf("%w: device name length", ErrValidation)
	}
	return nil
}

func isDeviceIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == ':' || r == '.':
		return true
	}
	return false
}
