// Package redisstore implements the Ledger on Redis. Every mutation runs as
// one Lua script so the read-check-write sequence is indivisible per key and
// safe across many service instances.
//
// Key layout, under a configurable prefix:
//
//	<prefix>user:<userID>     hash  free_used, paid_credits, created_at, updated_at
//	<prefix>redeemed:<userID> set   codes already applied by the user
//	<prefix>code:<CODE>       hash  credits, max_uses, used_count, active, created_at, updated_at
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// DefaultKeyPrefix namespaces all ledger keys so several deployments can
// share one Redis.
const DefaultKeyPrefix = "sig:"

// Store is a Redis-backed Ledger.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ domain.Ledger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix overrides the key namespace prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a Redis-backed Ledger. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) userKey(userID string) string     { return s.keyPrefix + "user:" + userID }
func (s *Store) redeemedKey(userID string) string { return s.keyPrefix + "redeemed:" + userID }
func (s *Store) codeKey(code string) string       { return s.keyPrefix + "code:" + code }

// consumeScript debits one unit, free allowance first.
// KEYS[1] = user hash key
// ARGV[1] = free quota limit
// ARGV[2] = now (unix seconds)
// Returns {allowed, bucket, free_used, paid_credits}.
var consumeScript = goredis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = ARGV[2]

local free_used = tonumber(redis.call("HGET", key, "free_used") or "0")
local paid = tonumber(redis.call("HGET", key, "paid_credits") or "0")

local free_remaining = limit - free_used
if free_remaining < 0 then
    free_remaining = 0
end
if free_remaining + paid <= 0 then
    return {0, "", free_used, paid}
end

local bucket
if free_remaining > 0 then
    free_used = free_used + 1
    bucket = "free"
else
    paid = paid - 1
    bucket = "paid"
end

redis.call("HSET", key, "free_used", free_used, "paid_credits", paid, "updated_at", now)
redis.call("HSETNX", key, "created_at", now)
return {1, bucket, free_used, paid}
`)

// refundScript reverses one unit from the given bucket, clamping the free
// counter at zero.
// KEYS[1] = user hash key
// ARGV[1] = bucket ("free" or "paid")
// ARGV[2] = now (unix seconds)
// Returns {free_used, paid_credits}.
var refundScript = goredis.NewScript(`
local key = KEYS[1]
local bucket = ARGV[1]
local now = ARGV[2]

local free_used = tonumber(redis.call("HGET", key, "free_used") or "0")
local paid = tonumber(redis.call("HGET", key, "paid_credits") or "0")

if bucket == "free" then
    free_used = free_used - 1
    if free_used < 0 then
        free_used = 0
    end
else
    paid = paid + 1
end

redis.call("HSET", key, "free_used", free_used, "paid_credits", paid, "updated_at", now)
redis.call("HSETNX", key, "created_at", now)
return {free_used, paid}
`)

// grantScript adds paid credits.
// KEYS[1] = user hash key
// ARGV[1] = credits
// ARGV[2] = now (unix seconds)
// Returns {free_used, paid_credits}.
var grantScript = goredis.NewScript(`
local key = KEYS[1]
local credits = tonumber(ARGV[1])
local now = ARGV[2]

local paid = redis.call("HINCRBY", key, "paid_credits", credits)
redis.call("HSET", key, "updated_at", now)
redis.call("HSETNX", key, "created_at", now)
local free_used = tonumber(redis.call("HGET", key, "free_used") or "0")
return {free_used, paid}
`)

// redeemScript validates and applies a code in one atomic unit so that two
// concurrent redemptions can never both pass the max_uses cap.
// KEYS[1] = code hash key
// KEYS[2] = user redeemed-set key
// KEYS[3] = user hash key
// ARGV[1] = normalized code
// ARGV[2] = now (unix seconds)
// Returns {status, free_used, paid_credits} where status is
// 1 = ok, -1 = missing or inactive, -2 = already redeemed, -3 = exhausted.
var redeemScript = goredis.NewScript(`
local code_key = KEYS[1]
local set_key = KEYS[2]
local user_key = KEYS[3]
local code = ARGV[1]
local now = ARGV[2]

if redis.call("EXISTS", code_key) == 0 then
    return {-1, 0, 0}
end
if redis.call("HGET", code_key, "active") ~= "1" then
    return {-1, 0, 0}
end
if redis.call("SISMEMBER", set_key, code) == 1 then
    return {-2, 0, 0}
end

local used = tonumber(redis.call("HGET", code_key, "used_count") or "0")
local max_uses = tonumber(redis.call("HGET", code_key, "max_uses") or "0")
if used >= max_uses then
    return {-3, 0, 0}
end

redis.call("HINCRBY", code_key, "used_count", 1)
redis.call("HSET", code_key, "updated_at", now)
redis.call("SADD", set_key, code)

local credits = tonumber(redis.call("HGET", code_key, "credits") or "0")
local paid = redis.call("HINCRBY", user_key, "paid_credits", credits)
redis.call("HSET", user_key, "updated_at", now)
redis.call("HSETNX", user_key, "created_at", now)
local free_used = tonumber(redis.call("HGET", user_key, "free_used") or "0")
return {1, free_used, paid}
`)

// createCodeScript stores a code only when the key is free.
// KEYS[1] = code hash key
// ARGV[1] = credits, ARGV[2] = max_uses, ARGV[3] = active ("1"/"0"),
// ARGV[4] = now (unix seconds)
// Returns 1 when created, 0 when the code already exists.
var createCodeScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
    return 0
end
redis.call("HSET", key,
    "credits", ARGV[1],
    "max_uses", ARGV[2],
    "used_count", 0,
    "active", ARGV[3],
    "created_at", ARGV[4],
    "updated_at", ARGV[4])
return 1
`)

// setActiveScript flips the gate on an existing code.
// KEYS[1] = code hash key
// ARGV[1] = active ("1"/"0"), ARGV[2] = now (unix seconds)
// Returns 1 when updated, 0 when the code does not exist.
var setActiveScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return 0
end
redis.call("HSET", key, "active", ARGV[1], "updated_at", ARGV[2])
return 1
`)

func (s *Store) GetAccount(ctx context.Context, userID string) (domain.UserAccount, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("redisstore: get account: %w", err)
	}
	return accountFromHash(userID, fields), nil
}

func (s *Store) Consume(ctx context.Context, userID string, freeLimit int) (domain.ConsumeOutcome, error) {
	now := time.Now().UTC().Unix()
	reply, err := consumeScript.Run(ctx, s.client, []string{s.userKey(userID)}, freeLimit, now).Slice()
	if err != nil {
		return domain.ConsumeOutcome{}, fmt.Errorf("redisstore: consume: %w", err)
	}
	if len(reply) != 4 {
		return domain.ConsumeOutcome{}, fmt.Errorf("redisstore: consume: unexpected reply %v", reply)
	}

	out := domain.ConsumeOutcome{
		Allowed: replyInt(reply[0]) == 1,
		Account: domain.UserAccount{
			UserID:      userID,
			FreeUsed:    int(replyInt(reply[2])),
			PaidCredits: int(replyInt(reply[3])),
		},
	}
	if out.Allowed {
		bucket, _ := reply[1].(string)
		out.Bucket = domain.Bucket(bucket)
	}
	return out, nil
}

func (s *Store) Refund(ctx context.Context, userID string, bucket domain.Bucket) (domain.UserAccount, error) {
	if !bucket.Valid() {
		return domain.UserAccount{}, domain.ErrInvalidInput
	}
	now := time.Now().UTC().Unix()
	reply, err := refundScript.Run(ctx, s.client, []string{s.userKey(userID)}, string(bucket), now).Slice()
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("redisstore: refund: %w", err)
	}
	if len(reply) != 2 {
		return domain.UserAccount{}, fmt.Errorf("redisstore: refund: unexpected reply %v", reply)
	}
	return domain.UserAccount{
		UserID:      userID,
		FreeUsed:    int(replyInt(reply[0])),
		PaidCredits: int(replyInt(reply[1])),
	}, nil
}

func (s *Store) GrantCredits(ctx context.Context, userID string, credits int) (domain.UserAccount, error) {
	now := time.Now().UTC().Unix()
	reply, err := grantScript.Run(ctx, s.client, []string{s.userKey(userID)}, credits, now).Slice()
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("redisstore: grant credits: %w", err)
	}
	if len(reply) != 2 {
		return domain.UserAccount{}, fmt.Errorf("redisstore: grant credits: unexpected reply %v", reply)
	}
	return domain.UserAccount{
		UserID:      userID,
		FreeUsed:    int(replyInt(reply[0])),
		PaidCredits: int(replyInt(reply[1])),
	}, nil
}

func (s *Store) Redeem(ctx context.Context, userID, code string) (domain.UserAccount, error) {
	now := time.Now().UTC().Unix()
	keys := []string{s.codeKey(code), s.redeemedKey(userID), s.userKey(userID)}
	reply, err := redeemScript.Run(ctx, s.client, keys, code, now).Slice()
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("redisstore: redeem: %w", err)
	}
	if len(reply) != 3 {
		return domain.UserAccount{}, fmt.Errorf("redisstore: redeem: unexpected reply %v", reply)
	}

	switch replyInt(reply[0]) {
	case 1:
		return domain.UserAccount{
			UserID:      userID,
			FreeUsed:    int(replyInt(reply[1])),
			PaidCredits: int(replyInt(reply[2])),
		}, nil
	case -1:
		return domain.UserAccount{}, domain.ErrCodeInvalid
	case -2:
		return domain.UserAccount{}, domain.ErrCodeAlreadyRedeemed
	case -3:
		return domain.UserAccount{}, domain.ErrCodeExhausted
	default:
		return domain.UserAccount{}, fmt.Errorf("redisstore: redeem: unexpected status %v", reply[0])
	}
}

func (s *Store) CreateCode(ctx context.Context, code domain.RedeemCode) (domain.RedeemCode, error) {
	now := time.Now().UTC().Unix()
	created, err := createCodeScript.Run(ctx, s.client, []string{s.codeKey(code.Code)},
		code.Credits, code.MaxUses, boolField(code.Active), now,
	).Int64()
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("redisstore: create code: %w", err)
	}
	if created == 0 {
		return domain.RedeemCode{}, domain.ErrCodeExists
	}

	code.UsedCount = 0
	code.CreatedAt = time.Unix(now, 0).UTC()
	code.UpdatedAt = code.CreatedAt
	return code, nil
}

func (s *Store) GetCode(ctx context.Context, code string) (domain.RedeemCode, error) {
	fields, err := s.client.HGetAll(ctx, s.codeKey(code)).Result()
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("redisstore: get code: %w", err)
	}
	if len(fields) == 0 {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	return codeFromHash(code, fields), nil
}

func (s *Store) SetCodeActive(ctx context.Context, code string, active bool) (domain.RedeemCode, error) {
	now := time.Now().UTC().Unix()
	updated, err := setActiveScript.Run(ctx, s.client, []string{s.codeKey(code)}, boolField(active), now).Int64()
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("redisstore: set code active: %w", err)
	}
	if updated == 0 {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	return s.GetCode(ctx, code)
}

func (s *Store) ScanCodes(ctx context.Context, cursor string, count int) ([]domain.RedeemCode, string, error) {
	keys, next, err := s.scanKeys(ctx, cursor, s.keyPrefix+"code:*", count)
	if err != nil {
		return nil, "", fmt.Errorf("redisstore: scan codes: %w", err)
	}

	items := make([]domain.RedeemCode, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, "", fmt.Errorf("redisstore: scan codes: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		items = append(items, codeFromHash(strings.TrimPrefix(key, s.keyPrefix+"code:"), fields))
	}
	return items, next, nil
}

func (s *Store) ScanAccounts(ctx context.Context, cursor string, count int) ([]domain.UserAccount, string, error) {
	keys, next, err := s.scanKeys(ctx, cursor, s.keyPrefix+"user:*", count)
	if err != nil {
		return nil, "", fmt.Errorf("redisstore: scan accounts: %w", err)
	}

	items := make([]domain.UserAccount, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, "", fmt.Errorf("redisstore: scan accounts: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		items = append(items, accountFromHash(strings.TrimPrefix(key, s.keyPrefix+"user:"), fields))
	}
	return items, next, nil
}

func (s *Store) scanKeys(ctx context.Context, cursor, match string, count int) ([]string, string, error) {
	if cursor == "" {
		cursor = "0"
	}
	cur, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, "", domain.ErrInvalidInput
	}
	if count < 1 {
		count = 1
	}

	keys, next, err := s.client.Scan(ctx, cur, match, int64(count)).Result()
	if err != nil {
		return nil, "", err
	}
	return keys, strconv.FormatUint(next, 10), nil
}

func accountFromHash(userID string, fields map[string]string) domain.UserAccount {
	return domain.UserAccount{
		UserID:      userID,
		FreeUsed:    hashInt(fields, "free_used"),
		PaidCredits: hashInt(fields, "paid_credits"),
		CreatedAt:   hashTime(fields, "created_at"),
		UpdatedAt:   hashTime(fields, "updated_at"),
	}
}

func codeFromHash(code string, fields map[string]string) domain.RedeemCode {
	return domain.RedeemCode{
		Code:      code,
		Credits:   hashInt(fields, "credits"),
		MaxUses:   hashInt(fields, "max_uses"),
		UsedCount: hashInt(fields, "used_count"),
		Active:    fields["active"] == "1",
		CreatedAt: hashTime(fields, "created_at"),
		UpdatedAt: hashTime(fields, "updated_at"),
	}
}

func hashInt(fields map[string]string, name string) int {
	n, _ := strconv.Atoi(fields[name])
	return n
}

func hashTime(fields map[string]string, name string) time.Time {
	sec, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil || sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func replyInt(v any) int64 {
	n, _ := v.(int64)
	return n
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
