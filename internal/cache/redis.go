package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-form-builder/internal/editor"
)

// Redis is an editor.IDCache stored in Redis as a JSON array per item.
type Redis struct {
	Client redis.Cmdable
	TTL    time.Duration
	Prefix string
	Log    zerolog.Logger
}

var _ editor.IDCache = (*Redis)(nil)

// NewRedis connects to addr and pings it once. The returned client should
// be closed by the caller on shutdown.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, log zerolog.Logger) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{Client: client, TTL: ttl, Prefix: "formbuilder:option_ids:", Log: log}, client, nil
}

func (r *Redis) key(itemID string) string { return r.Prefix + itemID }

func (r *Redis) Get(ctx context.Context, itemID string) ([]string, bool) {
	raw, err := r.Client.Get(ctx, r.key(itemID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.Log.Warn().Err(err).Str("item_id", itemID).Msg("option id cache get failed")
		}
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		r.Log.Warn().Err(err).Str("item_id", itemID).Msg("option id cache entry corrupt")
		return nil, false
	}
	return ids, true
}

func (r *Redis) Set(ctx context.Context, itemID string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := r.Client.Set(ctx, r.key(itemID), raw, r.TTL).Err(); err != nil {
		r.Log.Warn().Err(err).Str("item_id", itemID).Msg("option id cache set failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, itemID string) {
	if err := r.Client.Del(ctx, r.key(itemID)).Err(); err != nil {
		r.Log.Warn().Err(err).Str("item_id", itemID).Msg("option id cache invalidate failed")
	}
}
