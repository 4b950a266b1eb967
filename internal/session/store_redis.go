package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"idvault/pkg/sentinel"
)

// Key layout:
//
//	session:<jti>        JSON Session, TTL = session lifetime
//	refresh:<hash>       JSON RefreshTokenRecord, TTL = refresh lifetime
//	wallet:<id>:sessions SET of JTIs
//	wallet:<id>:refresh  SET of hashes
//
// The wallet sets let RevokeWallet burn a lineage without scanning.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(jti uuid.UUID) string { return "session:" + jti.String() }

func refreshKey(hash string) string { return "refresh:" + hash }

func walletSessionsKey(w string) string { return "wallet:" + w + ":sessions" }

func walletRefreshKey(w string) string { return "wallet:" + w + ":refresh" }

// consumeScript checks the rotated/revoked flags and sets rotated in one
// atomic server-side step, so concurrent refreshes on the same token resolve
// to exactly one winner. Key TTL already enforces expiry: an expired token's
// key is gone, indistinguishable from never-issued, which is the intended
// caller-facing behavior.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return {'missing', ''}
end
local record = cjson.decode(raw)
if record.rotated or record.revoked then
  return {'used', raw}
end
record.rotated = true
local updated = cjson.encode(record)
local ttl = redis.call('TTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[1], updated, 'EX', ttl)
else
  redis.call('SET', KEYS[1], updated)
end
return {'ok', updated}
`)

func (s *RedisStore) CreateSession(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.JTI), payload, ttl)
	pipe.SAdd(ctx, walletSessionsKey(session.WalletID), session.JTI.String())
	pipe.Expire(ctx, walletSessionsKey(session.WalletID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindSession(ctx context.Context, jti uuid.UUID) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(jti)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) RevokeSession(ctx context.Context, jti uuid.UUID) (bool, error) {
	session, err := s.FindSession(ctx, jti)
	if err != nil {
		return false, err
	}
	if session.Revoked {
		return false, nil
	}
	session.Revoked = true
	if err := s.rewriteSession(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) TouchSession(ctx context.Context, jti uuid.UUID, at time.Time) error {
	session, err := s.FindSession(ctx, jti)
	if err != nil {
		return err
	}
	if !at.After(session.LastActiveAt) {
		return nil
	}
	session.LastActiveAt = at
	return s.rewriteSession(ctx, session)
}

func (s *RedisStore) rewriteSession(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	// KeepTTL preserves the original expiry set at creation.
	if err := s.client.Set(ctx, sessionKey(session.JTI), payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("rewrite session: %w", err)
	}
	return nil
}

func (s *RedisStore) CreateRefreshToken(ctx context.Context, record *RefreshTokenRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshKey(record.Hash), payload, ttl)
	pipe.SAdd(ctx, walletRefreshKey(record.WalletID), record.Hash)
	pipe.Expire(ctx, walletRefreshKey(record.WalletID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeRefreshToken(ctx context.Context, hash string, _ time.Time) (*RefreshTokenRecord, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{refreshKey(hash)}).Slice()
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("consume refresh token: unexpected script reply %v", res)
	}
	status, _ := res[0].(string)
	raw, _ := res[1].(string)

	if status == "missing" {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	var record RefreshTokenRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal refresh token: %w", err)
	}
	if status == "used" {
		return &record, fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
	}
	return &record, nil
}

func (s *RedisStore) RevokeWallet(ctx context.Context, walletID string) (int, error) {
	var revoked int

	jtis, err := s.client.SMembers(ctx, walletSessionsKey(walletID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list wallet sessions: %w", err)
	}
	for _, raw := range jtis {
		jti, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		changed, err := s.RevokeSession(ctx, jti)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return revoked, err
		}
		if changed {
			revoked++
		}
	}

	hashes, err := s.client.SMembers(ctx, walletRefreshKey(walletID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return revoked, fmt.Errorf("list wallet refresh tokens: %w", err)
	}
	for _, hash := range hashes {
		changed, err := s.revokeRefreshToken(ctx, hash)
		if err != nil {
			return revoked, err
		}
		if changed {
			revoked++
		}
	}
	return revoked, nil
}

func (s *RedisStore) revokeRefreshToken(ctx context.Context, hash string) (bool, error) {
	raw, err := s.client.Get(ctx, refreshKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load refresh token: %w", err)
	}
	var record RefreshTokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return false, fmt.Errorf("unmarshal refresh token: %w", err)
	}
	if record.Revoked {
		return false, nil
	}
	record.Revoked = true
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal refresh token: %w", err)
	}
	if err := s.client.Set(ctx, refreshKey(hash), payload, redis.KeepTTL).Err(); err != nil {
		return false, fmt.Errorf("rewrite refresh token: %w", err)
	}
	return true, nil
}
