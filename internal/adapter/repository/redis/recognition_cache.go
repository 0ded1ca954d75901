package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/domain/repository"
)

const keyPrefix = "formula:recognition:"

type recognitionCache struct {
	client *goredis.Client
}

// NewRecognitionCache creates a Redis-backed recognition cache
func NewRecognitionCache(client *goredis.Client) repository.RecognitionCache {
	return &recognitionCache{client: client}
}

// Key returns the Redis key for a model and image digest
func Key(modelID, digest string) string {
	return keyPrefix + modelID + ":" + digest
}

func (r *recognitionCache) Get(ctx context.Context, modelID, digest string) (*entity.Recognition, error) {
	data, err := r.client.Get(ctx, Key(modelID, digest)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec entity.Recognition
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	rec.Cached = true
	return &rec, nil
}

func (r *recognitionCache) Set(ctx context.Context, modelID, digest string, rec *entity.Recognition, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(modelID, digest), data, ttl).Err()
}
