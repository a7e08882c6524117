package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"wardrobe-backend/config"
)

const (
	latestScanPrefix      = "latest_scan"
	associationModePrefix = "association_mode"
)

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis shares the transient state between API instances.
//
// The slot is a single key holding the JSON entry. Writing is one SET and
// consuming is one GETDEL, so exactly one poller observes each scan even when
// several race with a writer.
type Redis struct {
	store  cmdable
	raw    *redis.Client
	prefix string
}

// NewRedis connects using cfg and verifies the connection.
func NewRedis(ctx context.Context, cfg config.CacheConfig) (*Redis, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{store: raw, raw: raw, prefix: cfg.KeyPrefix}, nil
}

func optionsFromConfig(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		return opts, nil
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis url or address is required")
	}
	return &redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, nil
}

func (r *Redis) key(parts ...string) string {
	return strings.Join(append([]string{r.prefix}, parts...), ":")
}

func (r *Redis) SetLatestScan(ctx context.Context, userID uint, tagID string, at time.Time) error {
	raw, err := json.Marshal(Entry{TagID: tagID, Timestamp: at})
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.key(latestScanPrefix, userKey(userID)), raw, 0).Err(); err != nil {
		return fmt.Errorf("storing latest scan: %w", err)
	}
	return nil
}

func (r *Redis) ConsumeLatestScan(ctx context.Context, userID uint) (*LatestScan, error) {
	raw, err := r.store.GetDel(ctx, r.key(latestScanPrefix, userKey(userID))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("consuming latest scan: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding latest scan: %w", err)
	}
	return &LatestScan{TagID: entry.TagID, Timestamp: entry.Timestamp}, nil
}

func (r *Redis) ClearLatestScan(ctx context.Context, userID uint) error {
	if err := r.store.Del(ctx, r.key(latestScanPrefix, userKey(userID))).Err(); err != nil {
		return fmt.Errorf("clearing latest scan: %w", err)
	}
	return nil
}

func (r *Redis) SetAssociationMode(ctx context.Context, userID uint, active bool) error {
	key := r.key(associationModePrefix, userKey(userID))
	var err error
	if active {
		err = r.store.Set(ctx, key, "1", 0).Err()
	} else {
		err = r.store.Del(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("setting association mode: %w", err)
	}
	return nil
}

func (r *Redis) InAssociationMode(ctx context.Context, userID uint) (bool, error) {
	n, err := r.store.Exists(ctx, r.key(associationModePrefix, userKey(userID))).Result()
	if err != nil {
		return false, fmt.Errorf("reading association mode: %w", err)
	}
	return n > 0, nil
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (r *Redis) Close() error {
	if r.raw == nil {
		return nil
	}
	return r.raw.Close()
}
