package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis"

	"neomap/core-go/internal/layer"
)

// DefaultRedisHash is the hash that holds one JSON document per layer key.
const DefaultRedisHash = "neomap:layers"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Hash     string
}

// Redis stores layers in a single Redis hash.
type Redis struct {
	client *redis.Client
	hash   string
}

// OpenRedis connects and checks the server answers PING.
func OpenRedis(opts RedisOptions) (*Redis, error) {
	hash := opts.Hash
	if hash == "" {
		hash = DefaultRedisHash
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    4,
		DialTimeout: 3 * time.Second,
	})

	pong, err := client.Ping().Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("redis did not respond with 'PONG', '%s'", pong)
	}
	return &Redis{client: client, hash: hash}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.WithContext(ctx).Ping().Err()
}

func (r *Redis) UpsertLayer(ctx context.Context, cfg layer.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode layer %s: %w", cfg.Key, err)
	}
	return r.client.WithContext(ctx).HSet(r.hash, cfg.Key, raw).Err()
}

func (r *Redis) RemoveLayer(ctx context.Context, key string) error {
	return r.client.WithContext(ctx).HDel(r.hash, key).Err()
}

// ListLayers returns the stored layers sorted by name then key; Redis hashes
// keep no insertion order.
func (r *Redis) ListLayers(ctx context.Context) ([]layer.Config, error) {
	all, err := r.client.WithContext(ctx).HGetAll(r.hash).Result()
	if err != nil {
		return nil, err
	}
	out := make([]layer.Config, 0, len(all))
	for key, raw := range all {
		cfg, err := layer.Hydrate([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", key, err)
		}
		out = append(out, cfg)
	}
	sortLayers(out)
	return out, nil
}

func sortLayers(layers []layer.Config) {
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].Name != layers[j].Name {
			return layers[i].Name < layers[j].Name
		}
		return layers[i].Key < layers[j].Key
	})
}
