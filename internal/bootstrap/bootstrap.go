// Package bootstrap acquires the model handles the gateway serves with.
// Handles are built once, before any listener opens, and never mutated.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/formulalab/formula-gateway/internal/adapter/client"
	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/config"
	"github.com/formulalab/formula-gateway/internal/infrastructure/imaging"
	"github.com/formulalab/formula-gateway/internal/infrastructure/metrics"
	"github.com/formulalab/formula-gateway/internal/infrastructure/tokenizer"
)

var (
	// ErrModelNotLoaded is returned when a backend never reported a loaded model
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrModelMismatch is returned when a backend serves a different model than configured
	ErrModelMismatch = errors.New("backend serves a different model")
)

// Models holds the process-wide model handles
type Models struct {
	Recognizer   service.Recognizer
	Solver       service.Solver
	Preprocessor *imaging.Preprocessor
}

// LoadModels verifies the configured backends and returns handles for them.
// The solver is only acquired when enabled. Any failure is fatal to the caller.
func LoadModels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Models, error) {
	recognizer, pre, err := LoadRecognizer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	models := &Models{
		Recognizer:   recognizer,
		Preprocessor: pre,
	}

	if !cfg.Solver.Enabled {
		logger.Info("Solver disabled")
		return models, nil
	}

	models.Solver, err = LoadSolver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return models, nil
}

// LoadRecognizer acquires the recognition handle and its preprocessor
func LoadRecognizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Recognizer, *imaging.Preprocessor, error) {
	pre, err := imaging.NewPreprocessor(cfg.Recognizer.ImageSize, cfg.Recognizer.ImageMean, cfg.Recognizer.ImageStd)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid recognizer preprocessing: %w", err)
	}
	pre.MaxPixels = cfg.Recognizer.MaxPixels

	dec, err := loadTokenizer("recognizer", cfg.Recognizer.TokenizerDir, logger)
	if err != nil {
		return nil, nil, err
	}

	c := client.NewModelClient(cfg.Recognizer.BaseURL, cfg.Recognizer.Timeout)
	if err := acquire(ctx, "recognizer", c, cfg.Recognizer.ModelID, cfg.Startup, logger); err != nil {
		return nil, nil, err
	}
	return client.NewModelRecognizer(c, dec, cfg.Recognizer.ModelID, cfg.Recognizer.MaxNewTokens), pre, nil
}

// LoadSolver acquires the solver handle regardless of solver.enabled
func LoadSolver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Solver, error) {
	dec, err := loadTokenizer("solver", cfg.Solver.TokenizerDir, logger)
	if err != nil {
		return nil, err
	}

	c := client.NewModelClient(cfg.Solver.BaseURL, cfg.Solver.Timeout)
	if err := acquire(ctx, "solver", c, cfg.Solver.ModelID, cfg.Startup, logger); err != nil {
		return nil, err
	}
	return client.NewModelSolver(c, dec, cfg.Solver.ModelID, cfg.Solver.MaxNewTokens), nil
}

func loadTokenizer(role, dir string, logger *zap.Logger) (*tokenizer.Decoder, error) {
	dec, err := tokenizer.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s tokenizer: %w", role, err)
	}
	logger.Info("Tokenizer loaded", zap.String("role", role), zap.String("dir", dir))
	return dec, nil
}

func acquire(ctx context.Context, role string, c *client.ModelClient, modelID string, startup config.StartupConfig, logger *zap.Logger) error {
	attempts := startup.Attempts
	if attempts < 1 {
		attempts = 1
	}
	log := logger.With(
		zap.String("role", role),
		zap.String("model", modelID),
		zap.String("base_url", c.BaseURL()))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = check(ctx, c, modelID)
		if lastErr == nil {
			metrics.ModelLoaded.WithLabelValues(role, modelID).Set(1)
			log.Info("Model handle acquired", zap.Int("attempt", attempt))
			return nil
		}
		if errors.Is(lastErr, ErrModelMismatch) {
			break
		}

		log.Warn("Model backend not ready",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, startup.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	metrics.ModelLoaded.WithLabelValues(role, modelID).Set(0)
	log.Error("Failed to acquire model handle", zap.Error(lastErr))
	return fmt.Errorf("failed to load %s model %q: %w", role, modelID, lastErr)
}

func check(ctx context.Context, c *client.ModelClient, modelID string) error {
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if !health.ModelLoaded {
		return fmt.Errorf("%w: backend status %q", ErrModelNotLoaded, health.Status)
	}
	if health.ModelID != modelID {
		return fmt.Errorf("%w: want %q, got %q", ErrModelMismatch, modelID, health.ModelID)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
