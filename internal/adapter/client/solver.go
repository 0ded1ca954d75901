package client

import (
	"context"
	"time"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/metrics"
)

// ModelSolver adapts a ModelClient to the Solver interface
type ModelSolver struct {
	client       *ModelClient
	decoder      TokenDecoder
	modelID      string
	maxNewTokens int
}

// NewModelSolver creates a new ModelSolver
func NewModelSolver(client *ModelClient, decoder TokenDecoder, modelID string, maxNewTokens int) service.Solver {
	return &ModelSolver{
		client:       client,
		decoder:      decoder,
		modelID:      modelID,
		maxNewTokens: maxNewTokens,
	}
}

// ModelID returns the solver model identifier
func (s *ModelSolver) ModelID() string {
	return s.modelID
}

// Solve sends the formula as the prompt and decodes the generated tokens
func (s *ModelSolver) Solve(ctx context.Context, formula, requestID string) (*entity.Solution, error) {
	start := time.Now()
	resp, err := s.client.Generate(ctx, &GenerateRequest{
		Model:        s.modelID,
		RequestID:    requestID,
		Prompt:       formula,
		MaxNewTokens: s.maxNewTokens,
	})
	if err != nil {
		metrics.InferenceDuration.WithLabelValues(s.modelID, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	metrics.InferenceDuration.WithLabelValues(s.modelID, "ok").Observe(time.Since(start).Seconds())

	text := s.decoder.Decode(resp.TokenIDs)
	if text == "" {
		return nil, ErrEmptyOutput
	}

	return &entity.Solution{
		Text:    text,
		ModelID: s.modelID,
	}, nil
}

// Ready checks the solver backend
func (s *ModelSolver) Ready(ctx context.Context) error {
	return s.client.Ready(ctx)
}
