package client

import (
	"context"
	"fmt"
	"time"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/metrics"
)

// ErrEmptyOutput is returned when decoding leaves no text
var ErrEmptyOutput = fmt.Errorf("%w: model returned empty output", service.ErrInference)

// ModelRecognizer adapts a ModelClient to the Recognizer interface
type ModelRecognizer struct {
	client       *ModelClient
	decoder      TokenDecoder
	modelID      string
	maxNewTokens int
}

// NewModelRecognizer creates a new ModelRecognizer
func NewModelRecognizer(client *ModelClient, decoder TokenDecoder, modelID string, maxNewTokens int) service.Recognizer {
	return &ModelRecognizer{
		client:       client,
		decoder:      decoder,
		modelID:      modelID,
		maxNewTokens: maxNewTokens,
	}
}

// ModelID returns the recognition model identifier
func (r *ModelRecognizer) ModelID() string {
	return r.modelID
}

// Recognize sends the pixel tensor to the backend and decodes the generated tokens
func (r *ModelRecognizer) Recognize(ctx context.Context, pixels *entity.PixelTensor, requestID string) (*entity.Recognition, error) {
	payload, err := EncodeTensor(pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pixel values: %w", err)
	}

	start := time.Now()
	resp, err := r.client.Generate(ctx, &GenerateRequest{
		Model:        r.modelID,
		RequestID:    requestID,
		PixelValues:  payload,
		MaxNewTokens: r.maxNewTokens,
	})
	if err != nil {
		metrics.InferenceDuration.WithLabelValues(r.modelID, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.InferenceDuration.WithLabelValues(r.modelID, "ok").Observe(time.Since(start).Seconds())

	formula := r.decoder.Decode(resp.TokenIDs)
	if formula == "" {
		return nil, ErrEmptyOutput
	}

	return &entity.Recognition{
		Formula: formula,
		ModelID: r.modelID,
	}, nil
}

// Ready checks the recognition backend
func (r *ModelRecognizer) Ready(ctx context.Context) error {
	return r.client.Ready(ctx)
}
