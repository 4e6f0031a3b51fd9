package authcore

import (
	"context"
	"time"
)

const (
	auditEventLoginSuccess         = "login.success"
	auditEventLoginFailure         = "login.failure"
	auditEventLoginChallenge       = "login.challenge_issued"
	auditEventTokenRevoked         = "token.revoked"
	auditEventTOTPSetupRequested   = "twofactor.totp_setup"
	auditEventTOTPEnabled          = "twofactor.totp_enabled"
	auditEventSMSSetupRequested    = "twofactor.sms_setup"
	auditEventSMSEnabled           = "twofactor.sms_enabled"
	auditEventSecondFactorSuccess  = "twofactor.verify_success"
	auditEventSecondFactorFailure  = "twofactor.verify_failure"
	auditEventSecondFactorDisabled = "twofactor.disabled"
	auditEventBackupCodesIssued    = "twofactor.backup_codes_issued"
	auditEventDeviceTrusted        = "device.trusted"
	auditEventDeviceRevoked        = "device.revoked"
	auditEventDeviceRejected       = "device.rejected"
	auditEventDeviceBypass         = "device.bypass"
)

// emitAudit builds the event lazily: the metadata closure only runs
// when a dispatcher is actually configured.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	failure error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
