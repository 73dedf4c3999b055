package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
)

const sessionBackendRedis = "redis"

// touchSessionScript slides expires_at_ms forward only when the hash exists,
// is still live and carries the expected username and fingerprint, so neither
// a concurrent revoke nor a newer login can be extended by a stale request.
// Reply: {hit, expires_at_ms, username, fingerprint} or nil when absent.
var touchSessionScript = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'expires_at_ms', 'username', 'fingerprint')
local exp = fields[1]
if not exp then
  return false
end
local now = tonumber(ARGV[1])
if tonumber(exp) <= now then
  redis.call('DEL', KEYS[1])
  return false
end
local username = fields[2] or ''
local fingerprint = fields[3] or ''
if username ~= ARGV[3] or fingerprint ~= ARGV[4] then
  return {'0', tostring(exp), username, fingerprint}
end
local next_exp = now + tonumber(ARGV[2])
redis.call('HSET', KEYS[1], 'expires_at_ms', next_exp)
redis.call('PEXPIREAT', KEYS[1], next_exp)
return {'1', tostring(next_exp), username, fingerprint}
`)

// RedisSessionStore keeps sessions in Redis hashes so several instances can
// share them. Instances must also share the token signing secret.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "edu"
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) WithClock(now func() time.Time) *RedisSessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisSessionStore) Create(ctx context.Context, userID, username, fingerprint string, ttl time.Duration) (domain.Session, error) {
	if err := validateSessionArgs(userID, ttl); err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "create", "error")
		return domain.Session{}, err
	}
	expiresAt := s.now().Add(ttl)
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"username", username,
		"fingerprint", fingerprint,
		"expires_at_ms", strconv.FormatInt(expiresAt.UnixMilli(), 10),
	)
	pipe.PExpireAt(ctx, key, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "create", "error")
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	observability.RecordSessionStoreOperation(sessionBackendRedis, "create", "ok")
	return domain.Session{
		UserID:      userID,
		Username:    username,
		Fingerprint: fingerprint,
		ExpiresAt:   time.UnixMilli(expiresAt.UnixMilli()),
	}, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, userID string) (domain.Session, bool, error) {
	key := s.key(userID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "get", "error")
		return domain.Session{}, false, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "get", "miss")
		return domain.Session{}, false, nil
	}
	expMS, err := strconv.ParseInt(fields["expires_at_ms"], 10, 64)
	if err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "get", "error")
		return domain.Session{}, false, fmt.Errorf("decode session expiry: %w", err)
	}
	session := domain.Session{
		UserID:      userID,
		Username:    fields["username"],
		Fingerprint: fields["fingerprint"],
		ExpiresAt:   time.UnixMilli(expMS),
	}
	// PEXPIREAT removes the key; a DEL here could drop a session created
	// after the read.
	if !session.IsLive(s.now()) {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "get", "miss")
		return domain.Session{}, false, nil
	}
	observability.RecordSessionStoreOperation(sessionBackendRedis, "get", "hit")
	return session, true, nil
}

func (s *RedisSessionStore) Touch(ctx context.Context, userID string, bind SessionBinding, ttl time.Duration) (domain.Session, bool, error) {
	if ttl <= 0 {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "error")
		return domain.Session{}, false, fmt.Errorf("%w: %s", errInvalidSessionTTL, ttl)
	}
	res, err := touchSessionScript.Run(ctx, s.client,
		[]string{s.key(userID)},
		s.now().UnixMilli(), ttl.Milliseconds(), bind.Username, bind.Fingerprint,
	).Slice()
	if errors.Is(err, redis.Nil) {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "miss")
		return domain.Session{}, false, nil
	}
	if err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "error")
		return domain.Session{}, false, fmt.Errorf("touch session: %w", err)
	}
	session, hit, err := decodeTouchedSession(userID, res)
	if err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "error")
		return domain.Session{}, false, err
	}
	if !hit {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "mismatch")
		return session, false, nil
	}
	observability.RecordSessionStoreOperation(sessionBackendRedis, "touch", "hit")
	return session, true, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		observability.RecordSessionStoreOperation(sessionBackendRedis, "revoke", "error")
		return fmt.Errorf("revoke session: %w", err)
	}
	observability.RecordSessionStoreOperation(sessionBackendRedis, "revoke", "ok")
	return nil
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) key(userID string) string {
	return s.prefix + ":session:" + userID
}

func decodeTouchedSession(userID string, res []any) (domain.Session, bool, error) {
	if len(res) != 4 {
		return domain.Session{}, false, fmt.Errorf("touch session: unexpected reply length %d", len(res))
	}
	flag, _ := res[0].(string)
	expRaw, _ := res[1].(string)
	expMS, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("touch session: decode expiry: %w", err)
	}
	username, _ := res[2].(string)
	fingerprint, _ := res[3].(string)
	return domain.Session{
		UserID:      userID,
		Username:    username,
		Fingerprint: fingerprint,
		ExpiresAt:   time.UnixMilli(expMS),
	}, flag == "1", nil
}
