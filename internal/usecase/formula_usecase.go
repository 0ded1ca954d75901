package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/domain/repository"
	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/admission"
	"github.com/formulalab/formula-gateway/internal/infrastructure/imaging"
	"github.com/formulalab/formula-gateway/internal/infrastructure/metrics"
)

// Error definitions for formula usecase
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrModelFailure   = errors.New("model inference failed")
	ErrOverloaded     = errors.New("server is overloaded")
	ErrTimeout        = errors.New("inference timed out")
	ErrSolverDisabled = errors.New("solver is disabled")
)

// RecognizeInput represents one uploaded image
type RecognizeInput struct {
	Image     []byte
	RequestID string
}

// RecognizeOutput represents a recognized formula
type RecognizeOutput struct {
	Formula     string `json:"formula"`
	Explanation string `json:"explanation"`
	ModelID     string `json:"model_id"`
	Cached      bool   `json:"cached"`
}

// SolveInput represents a formula to solve
type SolveInput struct {
	Formula   string
	RequestID string
}

// SolveOutput represents a generated solution
type SolveOutput struct {
	Solution string `json:"solution"`
	ModelID  string `json:"model_id"`
}

// FormulaUsecase defines the interface for recognition and solving
type FormulaUsecase interface {
	Recognize(ctx context.Context, input *RecognizeInput) (*RecognizeOutput, error)
	Solve(ctx context.Context, input *SolveInput) (*SolveOutput, error)
}

// Options tunes the formula usecase
type Options struct {
	// MaxInputChars caps the formula length accepted by Solve. 0 disables the check.
	MaxInputChars int
	// CacheTTL is the lifetime of cached recognitions
	CacheTTL time.Duration
}

type formulaUsecase struct {
	recognizer   service.Recognizer
	solver       service.Solver
	preprocessor *imaging.Preprocessor
	queue        *admission.Queue
	cache        repository.RecognitionCache
	opts         Options
	logger       *zap.Logger
}

// NewFormulaUsecase creates a new formula usecase.
// solver and cache may be nil: a nil solver makes Solve return ErrSolverDisabled.
func NewFormulaUsecase(
	recognizer service.Recognizer,
	solver service.Solver,
	preprocessor *imaging.Preprocessor,
	queue *admission.Queue,
	cache repository.RecognitionCache,
	opts Options,
	logger *zap.Logger,
) FormulaUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == nil {
		queue = admission.NewQueue(admission.Config{}, zap.NewNop())
	}
	return &formulaUsecase{
		recognizer:   recognizer,
		solver:       solver,
		preprocessor: preprocessor,
		queue:        queue,
		cache:        cache,
		opts:         opts,
		logger:       logger,
	}
}

func (u *formulaUsecase) Recognize(ctx context.Context, input *RecognizeInput) (*RecognizeOutput, error) {
	if input == nil || len(input.Image) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, imaging.ErrEmptyImage)
	}

	modelID := u.recognizer.ModelID()
	digest := Digest(input.Image)

	if cached := u.lookup(ctx, modelID, digest, input.RequestID); cached != nil {
		return toRecognizeOutput(cached), nil
	}

	// image decoding runs inside the admitted section
	release, err := u.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pixels, err := u.preprocessor.DecodeAndProcess(input.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := u.recognizer.Recognize(ctx, pixels, input.RequestID)
	if err != nil {
		u.logger.Error("Recognition failed",
			zap.String("request_id", input.RequestID),
			zap.String("model", modelID),
			zap.Error(err))
		return nil, classifyModelError(err)
	}

	u.store(ctx, modelID, digest, rec, input.RequestID)

	return toRecognizeOutput(rec), nil
}

func (u *formulaUsecase) Solve(ctx context.Context, input *SolveInput) (*SolveOutput, error) {
	if u.solver == nil {
		return nil, ErrSolverDisabled
	}
	if input == nil {
		return nil, fmt.Errorf("%w: formula is required", ErrInvalidInput)
	}

	formula := strings.TrimSpace(input.Formula)
	if formula == "" {
		return nil, fmt.Errorf("%w: formula is required", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(formula); u.opts.MaxInputChars > 0 && n > u.opts.MaxInputChars {
		return nil, fmt.Errorf("%w: formula has %d characters, limit is %d", ErrInvalidInput, n, u.opts.MaxInputChars)
	}

	release, err := u.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sol, err := u.solver.Solve(ctx, formula, input.RequestID)
	if err != nil {
		u.logger.Error("Solve failed",
			zap.String("request_id", input.RequestID),
			zap.String("model", u.solver.ModelID()),
			zap.Error(err))
		return nil, classifyModelError(err)
	}

	return &SolveOutput{
		Solution: sol.Text,
		ModelID:  sol.ModelID,
	}, nil
}

// Digest returns the hex SHA-256 of an image payload
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (u *formulaUsecase) admit(ctx context.Context) (func(), error) {
	release, err := u.queue.Acquire(ctx)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, admission.ErrQueueFull):
		return nil, fmt.Errorf("%w: %v", ErrOverloaded, err)
	case errors.Is(err, admission.ErrQueueTimeout):
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return nil, err
	}
}

func (u *formulaUsecase) lookup(ctx context.Context, modelID, digest, requestID string) *entity.Recognition {
	if u.cache == nil {
		return nil
	}
	rec, err := u.cache.Get(ctx, modelID, digest)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		u.logger.Warn("Recognition cache lookup failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil
	}
	if rec == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rec
}

func (u *formulaUsecase) store(ctx context.Context, modelID, digest string, rec *entity.Recognition, requestID string) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Set(ctx, modelID, digest, rec, u.opts.CacheTTL); err != nil {
		u.logger.Warn("Recognition cache write failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// classifyModelError maps backend failures onto usecase errors.
// Caller cancellation is passed through unchanged.
func classifyModelError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, service.ErrInference) {
		return fmt.Errorf("%w: %v", ErrModelFailure, err)
	}
	return err
}

func toRecognizeOutput(rec *entity.Recognition) *RecognizeOutput {
	return &RecognizeOutput{
		Formula:     rec.Formula,
		Explanation: entity.RecognitionExplanation,
		ModelID:     rec.ModelID,
		Cached:      rec.Cached,
	}
}
