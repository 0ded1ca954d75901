package service

import (
	"context"
	"errors"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
)

// ErrInference marks failures of the model backend itself, as opposed to
// invalid input or caller cancellation
var ErrInference = errors.New("model inference failed")

// Recognizer turns a preprocessed formula image into LaTeX-like text
type Recognizer interface {
	// ModelID returns the identifier of the pretrained model behind the handle
	ModelID() string
	// Recognize runs a single generate call for one image
	Recognize(ctx context.Context, pixels *entity.PixelTensor, requestID string) (*entity.Recognition, error)
	// Ready reports whether the backing model can accept work
	Ready(ctx context.Context) error
}

// Solver generates a textual solution for a formula
type Solver interface {
	ModelID() string
	Solve(ctx context.Context, formula, requestID string) (*entity.Solution, error)
	Ready(ctx context.Context) error
}
