package repository

import (
	"context"
	"time"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
)

// RecognitionCache defines the interface for caching recognition results.
// Keys are content digests of the uploaded image, scoped by model id.
type RecognitionCache interface {
	// Get returns the cached recognition, or nil when there is no entry
	Get(ctx context.Context, modelID, digest string) (*entity.Recognition, error)

	// Set stores a recognition for the given digest
	Set(ctx context.Context, modelID, digest string, rec *entity.Recognition, ttl time.Duration) error
}
