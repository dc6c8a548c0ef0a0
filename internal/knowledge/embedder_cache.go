package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kalyuugh/backend-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedEmbedder 带Redis读穿缓存的Embedder装饰器。
// 相同文本的向量是确定的，缓存可以省掉重复的Embedding API调用。
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
}

// NewCachedEmbedder 创建缓存装饰器；client为nil时直接透传
func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration) Embedder {
	if client == nil {
		return inner
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err == nil && len(vector) == c.inner.Dimensions() {
			return vector, nil
		}
		// 缓存内容损坏时当作未命中
		c.client.Del(ctx, key)
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return vector, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "kalyuugh:embedding:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}
