package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const minRecordTTL = time.Second

// RedisStore is the go-redis implementation of Store. Records are JSON
// encoded under a configurable key prefix and carry TTLs bound to their
// own expiry, so natural expiry doubles as garbage collection.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. The prefix namespaces every
// key and defaults to "ac".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(refreshHash string) string {
	return s.prefix + ":sess:" + refreshHash
}

func (s *RedisStore) userSessionsKey(userID string) string {
	return s.prefix + ":usersess:" + userID
}

func (s *RedisStore) credentialKey(userID string, method Method) string {
	return s.prefix + ":cred:" + userID + ":" + string(method)
}

func (s *RedisStore) backupKey(userID string) string {
	return s.prefix + ":backup:" + userID
}

func (s *RedisStore) deviceKey(userID, deviceID string) string {
	return s.prefix + ":device:" + userID + ":" + deviceID
}

func (s *RedisStore) deviceIndexKey(userID string) string {
	return s.prefix + ":devices:" + userID
}

func (s *RedisStore) smsKey(userID string) string {
	return s.prefix + ":sms:" + userID
}

func (s *RedisStore) challengeKey(id string) string {
	return s.prefix + ":chal:" + id
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func ttlUntil(expiresAt int64) time.Duration {
	ttl := time.Until(time.Unix(expiresAt, 0))
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

// CreateSession persists the session and indexes it for the user. Both
// writes go through one transactional pipeline.
func (s *RedisStore) CreateSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := ttlUntil(sess.RefreshExpiresAt)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.RefreshHash), data, ttl)
		pipe.SAdd(ctx, s.userSessionsKey(sess.UserID), sess.RefreshHash)
		pipe.Expire(ctx, s.userSessionsKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// GetSessionByRefreshHash looks up a session by exact refresh-hash match.
func (s *RedisStore) GetSessionByRefreshHash(ctx context.Context, refreshHash string) (*Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(refreshHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record", ErrNotFound)
	}
	return sess, nil
}

// UpdateSessionAccess renews the access-token fields in place, keeping
// the record's remaining lifetime.
func (s *RedisStore) UpdateSessionAccess(ctx context.Context, refreshHash, accessToken string, accessExpiresAt int64) error {
	sess, err := s.GetSessionByRefreshHash(ctx, refreshHash)
	if err != nil {
		return err
	}
	sess.AccessToken = accessToken
	sess.AccessExpiresAt = accessExpiresAt
	return s.writeSession(ctx, sess)
}

// InvalidateSession flips the state flags. The record stays in place
// until its natural TTL so the transition remains auditable.
func (s *RedisStore) InvalidateSession(ctx context.Context, refreshHash string, revoked, expired bool) error {
	sess, err := s.GetSessionByRefreshHash(ctx, refreshHash)
	if err != nil {
		return err
	}
	sess.Active = false
	if revoked {
		sess.Revoked = true
	}
	if expired {
		sess.Expired = true
	}
	return s.writeSession(ctx, sess)
}

// DeleteSession removes the record and its index entry. Used only to
// compensate a failed issuance unit, never for logout.
func (s *RedisStore) DeleteSession(ctx context.Context, refreshHash string) error {
	sess, err := s.GetSessionByRefreshHash(ctx, refreshHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(refreshHash))
		pipe.SRem(ctx, s.userSessionsKey(sess.UserID), refreshHash)
		return nil
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// RevokeUserSessions marks every active session for the user revoked.
// Each session is its own atomic unit; a failure on one does not roll
// back the others.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	hashes, err := s.client.SMembers(ctx, s.userSessionsKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, backendErr(err)
	}

	revoked := 0
	for _, hash := range hashes {
		sess, err := s.GetSessionByRefreshHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				_ = s.client.SRem(ctx, s.userSessionsKey(userID), hash).Err()
				continue
			}
			return revoked, err
		}
		if !sess.Active {
			continue
		}
		if err := s.InvalidateSession(ctx, hash, true, false); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

func (s *RedisStore) writeSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.sessionKey(sess.RefreshHash), data, ttlUntil(sess.RefreshExpiresAt)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// GetCredential loads one (user, method) enrollment.
func (s *RedisStore) GetCredential(ctx context.Context, userID string, method Method) (*Credential, error) {
	data, err := s.client.Get(ctx, s.credentialKey(userID, method)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}
	cred := &Credential{}
	if err := json.Unmarshal(data, cred); err != nil {
		return nil, fmt.Errorf("%w: corrupt credential record", ErrNotFound)
	}
	return cred, nil
}

// SaveCredential persists the enrollment without expiry; credential
// rows are retained for audit even after 2FA is disabled.
func (s *RedisStore) SaveCredential(ctx context.Context, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.credentialKey(cred.UserID, cred.Method), data, 0).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// MarkCredentialVerified flips the write-once verified flag.
func (s *RedisStore) MarkCredentialVerified(ctx context.Context, userID string, method Method, at int64) error {
	cred, err := s.GetCredential(ctx, userID, method)
	if err != nil {
		return err
	}
	cred.Verified = true
	cred.LastUsedAt = at
	return s.SaveCredential(ctx, cred)
}

// TouchCredential records a successful use.
func (s *RedisStore) TouchCredential(ctx context.Context, userID string, method Method, at int64) error {
	cred, err := s.GetCredential(ctx, userID, method)
	if err != nil {
		return err
	}
	cred.LastUsedAt = at
	return s.SaveCredential(ctx, cred)
}

// ReplaceBackupCodes swaps the unused-code set wholesale: the delete
// and the insert ride one transactional pipeline so a prior batch can
// never survive alongside the new one.
func (s *RedisStore) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	members := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		members = append(members, h)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.backupKey(userID))
		if len(members) > 0 {
			pipe.SAdd(ctx, s.backupKey(userID), members...)
		}
		return nil
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// ConsumeBackupCode removes the hash from the unused set. SREM is a
// single atomic check-and-set on the server, so of two concurrent
// requests presenting the same code exactly one observes the removal.
func (s *RedisStore) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	removed, err := s.client.SRem(ctx, s.backupKey(userID), hash).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return removed == 1, nil
}

// UnusedBackupCodeCount reports how many codes remain in the batch.
func (s *RedisStore) UnusedBackupCodeCount(ctx context.Context, userID string) (int, error) {
	n, err := s.client.SCard(ctx, s.backupKey(userID)).Result()
	if err != nil {
		return 0, backendErr(err)
	}
	return int(n), nil
}

// SaveTrustedDevice persists the device with a TTL matching its
// absolute expiry and indexes it for listing.
func (s *RedisStore) SaveTrustedDevice(ctx context.Context, device *TrustedDevice) error {
	data, err := json.Marshal(device)
	if err != nil {
		return err
	}
	ttl := ttlUntil(device.ExpiresAt)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.deviceKey(device.UserID, device.DeviceID), data, ttl)
		pipe.SAdd(ctx, s.deviceIndexKey(device.UserID), device.DeviceID)
		return nil
	})
	if err != nil {
		return backendErr(err)
	}
	return nil
}

// GetTrustedDevice loads one device record.
func (s *RedisStore) GetTrustedDevice(ctx context.Context, userID, deviceID string) (*TrustedDevice, error) {
	data, err := s.client.Get(ctx, s.deviceKey(userID, deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}
	device := &TrustedDevice{}
	if err := json.Unmarshal(data, device); err != nil {
		return nil, fmt.Errorf("%w: corrupt device record", ErrNotFound)
	}
	return device, nil
}

// ListTrustedDevices returns every surviving device record for the
// user, pruning index entries whose records have expired.
func (s *RedisStore) ListTrustedDevices(ctx context.Context, userID string) ([]TrustedDevice, error) {
	ids, err := s.client.SMembers(ctx, s.deviceIndexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, backendErr(err)
	}

	out := make([]TrustedDevice, 0, len(ids))
	for _, id := range ids {
		device, err := s.GetTrustedDevice(ctx, userID, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				_ = s.client.SRem(ctx, s.deviceIndexKey(userID), id).Err()
				continue
			}
			return nil, err
		}
		out = append(out, *device)
	}
	return out, nil
}

// RevokeTrustedDevice flips the revoked flag in place. The record keeps
// its remaining lifetime; devices are never silently evicted.
func (s *RedisStore) RevokeTrustedDevice(ctx context.Context, userID, deviceID string) error {
	device, err := s.GetTrustedDevice(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	device.Revoked = true

	data, err := json.Marshal(device)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.deviceKey(userID, deviceID), data, ttlUntil(device.ExpiresAt)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// SaveSMSCode stores the hashed one-time code under a short TTL. Any
// prior pending code for the user is overwritten.
func (s *RedisStore) SaveSMSCode(ctx context.Context, userID, hash string, ttl time.Duration) error {
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	if err := s.client.Set(ctx, s.smsKey(userID), hash, ttl).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// GetSMSCode returns the pending code hash, or ErrNotFound once the
// TTL has lapsed.
func (s *RedisStore) GetSMSCode(ctx context.Context, userID string) (string, error) {
	hash, err := s.client.Get(ctx, s.smsKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", backendErr(err)
	}
	return hash, nil
}

// SaveLoginChallenge persists a pending challenge under its TTL.
func (s *RedisStore) SaveLoginChallenge(ctx context.Context, challenge *LoginChallenge, ttl time.Duration) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	if err := s.client.Set(ctx, s.challengeKey(challenge.ID), data, ttl).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

// GetLoginChallenge loads a pending challenge, expiring it inline when
// its deadline passed between TTL sweeps.
func (s *RedisStore) GetLoginChallenge(ctx context.Context, id string) (*LoginChallenge, error) {
	data, err := s.client.Get(ctx, s.challengeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr(err)
	}

	challenge := &LoginChallenge{}
	if err := json.Unmarshal(data, challenge); err != nil {
		return nil, fmt.Errorf("%w: corrupt challenge record", ErrNotFound)
	}
	if time.Now().Unix() > challenge.ExpiresAt {
		_, _ = s.client.Del(ctx, s.challengeKey(id)).Result()
		return nil, ErrNotFound
	}
	return challenge, nil
}

// FailLoginChallenge increments the attempt counter under optimistic
// concurrency. Once maxAttempts is reached the challenge is destroyed
// and ErrAttemptsExceeded returned.
func (s *RedisStore) FailLoginChallenge(ctx context.Context, id string, maxAttempts int) error {
	const maxRetries = 4
	key := s.challengeKey(id)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			challenge := &LoginChallenge{}
			if err := json.Unmarshal(data, challenge); err != nil {
				return err
			}

			challenge.Attempts++
			if maxAttempts > 0 && challenge.Attempts >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := json.Marshal(challenge)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttlUntil(challenge.ExpiresAt))
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil && exceeded:
			return ErrAttemptsExceeded
		case err == nil:
			return nil
		case errors.Is(err, redis.Nil):
			return ErrNotFound
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return backendErr(err)
		}
	}
	return backendErr(redis.TxFailedErr)
}

// DeleteLoginChallenge removes a challenge, reporting whether it still
// existed. Used to make challenge consumption single-shot.
func (s *RedisStore) DeleteLoginChallenge(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return n > 0, nil
}
