package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/catalog/internal/compress"
	"github.com/emrgen/catalog/internal/config"
	"github.com/emrgen/catalog/internal/model"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "catalog:"

var errStaleGeneration = errors.New("owner evicted since lookup")

func ownerKey(kind Kind, ownerID string) string {
	return keyPrefix + "owner:" + ownerID + ":" + string(kind)
}

func generationKey(kind Kind, ownerID string) string {
	return keyPrefix + "generation:" + ownerID + ":" + string(kind)
}

func versionKey(kind Kind, uuid string) string {
	return keyPrefix + string(kind) + ":" + uuid
}

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})
}

var _ CatalogCache = (*RedisCache)(nil)

// RedisCache keeps one hash of logical ID to version UUID per owner and kind,
// and one encoded entry per version.
type RedisCache struct {
	client  *redis.Client
	encoder compress.Compress
	ttl     time.Duration
}

func NewRedisCache(client *redis.Client, encoder compress.Compress, ttl time.Duration) *RedisCache {
	if encoder == nil {
		encoder = compress.NewNop()
	}
	return &RedisCache{client: client, encoder: encoder, ttl: ttl}
}

func (r *RedisCache) GetMapping(ctx context.Context, kind Kind, ownerID, id string) (Lookup, error) {
	var (
		uuid *redis.StringCmd
		gen  *redis.StringCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		uuid = p.HGet(ctx, ownerKey(kind, ownerID), id)
		gen = p.Get(ctx, generationKey(kind, ownerID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lookup{}, err
	}

	generation, err := gen.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lookup{}, err
	}
	value, err := uuid.Result()
	if errors.Is(err, redis.Nil) {
		return Lookup{Generation: generation}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{UUID: value, Hit: true, Generation: generation}, nil
}

// SetMapping writes the hash field only while the owner's generation still
// matches, so a resolution read before a concurrent eviction is never cached
// after it.
func (r *RedisCache) SetMapping(ctx context.Context, kind Kind, ownerID, id, uuid string, generation int64) error {
	key, gen := ownerKey(kind, ownerID), generationKey(kind, ownerID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gen).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, id, uuid)
			if r.ttl > 0 {
				p.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}, gen)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		logrus.Debugf("skipped %s mapping cache write for owner %s: evicted since lookup", kind, ownerID)
		return nil
	}
	return err
}

func (r *RedisCache) EvictOwner(ctx context.Context, kind Kind, ownerID string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(kind, ownerID))
		p.Del(ctx, ownerKey(kind, ownerID))
		return nil
	})
	return err
}

func (r *RedisCache) GetProduct(ctx context.Context, uuid string) (*model.Product, bool, error) {
	product := &model.Product{}
	ok, err := r.get(ctx, versionKey(ProductKind, uuid), product)
	if !ok || err != nil {
		return nil, false, err
	}
	return product, true, nil
}

func (r *RedisCache) SetProduct(ctx context.Context, product *model.Product) error {
	return r.set(ctx, versionKey(ProductKind, product.UUID), product)
}

func (r *RedisCache) GetContent(ctx context.Context, uuid string) (*model.Content, bool, error) {
	content := &model.Content{}
	ok, err := r.get(ctx, versionKey(ContentKind, uuid), content)
	if !ok || err != nil {
		return nil, false, err
	}
	return content, true, nil
}

func (r *RedisCache) SetContent(ctx context.Context, content *model.Content) error {
	return r.set(ctx, versionKey(ContentKind, content.UUID), content)
}

func (r *RedisCache) EvictVersions(ctx context.Context, kind Kind, uuids ...string) error {
	if len(uuids) == 0 {
		return nil
	}
	keys := make([]string, len(uuids))
	for i, uuid := range uuids {
		keys[i] = versionKey(kind, uuid)
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) get(ctx context.Context, key string, v any) (bool, error) {
	buf, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := r.encoder.Decode(buf)
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		// entries written with another codec are dropped
		logrus.Warnf("dropping undecodable cache entry %s: %v", key, err)
		return false, r.client.Del(ctx, key).Err()
	}
	return true, nil
}

func (r *RedisCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf, err := r.encoder.Encode(data)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, buf, r.ttl).Err()
}
