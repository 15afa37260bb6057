package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const answerKeyPrefix = "chat:answer:"

// AnswerCache stores generated chat replies keyed by the normalized prompt.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{client: client, ttl: ttl}
}

// Get returns the cached reply for prompt. A miss is ("", false, nil).
func (c *AnswerCache) Get(ctx context.Context, prompt string) (string, bool, error) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return "", false, nil
	}
	val, err := c.client.Get(ctx, answerKey(prompt)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *AnswerCache) Set(ctx context.Context, prompt, reply string) error {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, answerKey(prompt), reply, c.ttl).Err()
}

func answerKey(prompt string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	sum := sha256.Sum256([]byte(normalized))
	return answerKeyPrefix + hex.EncodeToString(sum[:])
}
