package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/luminacare/authcore/internal"
	"github.com/luminacare/authcore/session"
)

// issueBackupCodes mints a full batch of recovery codes and replaces
// any prior unused batch atomically. Plaintext codes exist only in the
// return value; the store sees hashes.
func (e *Engine) issueBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.cfg.TwoFactor.BackupCodeCount
	length := e.cfg.TwoFactor.BackupCodeLength

	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, internal.HashToken(code))
	}

	if err := e.store.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventBackupCodesIssued, true, userID, "", nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprintf("%d", count)}
	})
	return codes, nil
}

// verifyBackupCode consumes code if it is an unused member of the
// user's current batch. Consumption is a single atomic check-and-set
// in the store, so two concurrent presentations of the same code
// cannot both succeed.
func (e *Engine) verifyBackupCode(ctx context.Context, userID, code string) error {
	consumed, err := e.store.ConsumeBackupCode(ctx, userID, internal.HashToken(code))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !consumed {
		return ErrInvalidCode
	}
	e.metrics.inc(MetricBackupCodeUsed)
	return nil
}

// BackupCodesRemaining reports how many unused recovery codes userID
// still holds.
func (e *Engine) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	n, err := e.store.UnusedBackupCodeCount(ctx, userID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// RegenerateBackupCodes replaces the user's batch after a re-proof
// through any active factor. Presenting a backup code as the re-proof
// is allowed; it is consumed and then superseded with the rest of the
// old batch.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string, method Method, code string) ([]string, error) {
	if err := e.VerifySecondFactor(ctx, userID, method, code); err != nil {
		return nil, err
	}
	return e.issueBackupCodes(ctx, userID)
}
