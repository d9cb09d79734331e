package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"magictunnel/pkg/mcperrors"
)

// RedisBackend stores tokens in Redis, the domain-stack addition for
// deployments that externalize session state instead of pinning it to local
// disk (SPEC_FULL.md §3). Each token is a single JSON value under a
// namespaced key; an index set tracks known keys for List.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend wraps an existing *redis.Client. keyPrefix namespaces this
// gateway's tokens within a shared Redis instance.
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "magictunnel:session"
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBackend) redisKey(userID, provider string) string {
	return fmt.Sprintf("%s:%s:%s", b.keyPrefix, userID, provider)
}

func (b *RedisBackend) indexKey() string {
	return b.keyPrefix + ":index"
}

func (b *RedisBackend) Get(userID, provider string) (Token, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := b.client.Get(ctx, b.redisKey(userID, provider)).Bytes()
	if err == redis.Nil {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "reading session token from redis")
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, false, mcperrors.Wrap(mcperrors.Internal, err, "parsing session token")
	}
	return t, true, nil
}

func (b *RedisBackend) Put(token Token) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(token)
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "marshaling session token")
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.redisKey(token.UserID, token.Provider), raw, 0)
	pipe.SAdd(ctx, b.indexKey(), b.redisKey(token.UserID, token.Provider))
	if _, err := pipe.Exec(ctx); err != nil {
		return mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "writing session token to redis")
	}
	return nil
}

func (b *RedisBackend) Delete(userID, provider string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := b.redisKey(userID, provider)
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, b.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "deleting session token from redis")
	}
	return nil
}

func (b *RedisBackend) List() ([]Key, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "listing session tokens from redis")
	}

	keys := make([]Key, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(strings.TrimPrefix(m, b.keyPrefix+":"), ":", 2)
		if len(parts) != 2 {
			continue
		}
		keys = append(keys, Key{UserID: parts[0], Provider: parts[1]})
	}
	return keys, nil
}
