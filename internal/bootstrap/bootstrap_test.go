package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/formulalab/formula-gateway/internal/adapter/client"
	"github.com/formulalab/formula-gateway/internal/infrastructure/config"
	"github.com/formulalab/formula-gateway/internal/infrastructure/tokenizer"
	"github.com/formulalab/formula-gateway/internal/infrastructure/tokenizer/tokenizertest"
)

func backend(t *testing.T, modelID string, loadedAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(client.HealthResponse{
			Status:      "ok",
			ModelLoaded: n > loadedAfter,
			ModelID:     modelID,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testConfig(recognizerURL, solverURL string) *config.Config {
	return &config.Config{
		Recognizer: config.RecognizerConfig{
			BaseURL:      recognizerURL,
			ModelID:      "breezedeus/pix2text-mfr",
			Timeout:      time.Second,
			MaxNewTokens: 256,
			TokenizerDir: tokenizertest.Dir(),
			ImageSize:    384,
			MaxPixels:    1_000_000,
			ImageMean:    []float64{0.5, 0.5, 0.5},
			ImageStd:     []float64{0.5, 0.5, 0.5},
		},
		Solver: config.SolverConfig{
			Enabled:      solverURL != "",
			BaseURL:      solverURL,
			ModelID:      "math-llm",
			Timeout:      time.Second,
			MaxNewTokens: 512,
			TokenizerDir: tokenizertest.Dir(),
		},
		Startup: config.StartupConfig{
			Attempts: 3,
			Backoff:  time.Millisecond,
		},
	}
}

func TestLoadModels(t *testing.T) {
	t.Run("acquires both handles", func(t *testing.T) {
		rec, _ := backend(t, "breezedeus/pix2text-mfr", 0)
		sol, _ := backend(t, "math-llm", 0)

		models, err := LoadModels(context.Background(), testConfig(rec.URL, sol.URL), zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.Equal(t, "breezedeus/pix2text-mfr", models.Recognizer.ModelID())
		require.NotNil(t, models.Solver)
		assert.Equal(t, "math-llm", models.Solver.ModelID())
		assert.Equal(t, 384, models.Preprocessor.Size)
		assert.Equal(t, 1_000_000, models.Preprocessor.MaxPixels)
	})

	t.Run("solver disabled", func(t *testing.T) {
		rec, _ := backend(t, "breezedeus/pix2text-mfr", 0)

		models, err := LoadModels(context.Background(), testConfig(rec.URL, ""), zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.Nil(t, models.Solver)
	})

	t.Run("retries until loaded", func(t *testing.T) {
		rec, calls := backend(t, "breezedeus/pix2text-mfr", 2)

		_, err := LoadModels(context.Background(), testConfig(rec.URL, ""), zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("fails after last attempt", func(t *testing.T) {
		rec, calls := backend(t, "breezedeus/pix2text-mfr", 100)

		models, err := LoadModels(context.Background(), testConfig(rec.URL, ""), zaptest.NewLogger(t))

		assert.ErrorIs(t, err, ErrModelNotLoaded)
		assert.Nil(t, models)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("model mismatch is not retried", func(t *testing.T) {
		rec, calls := backend(t, "someone/else", 0)

		_, err := LoadModels(context.Background(), testConfig(rec.URL, ""), zaptest.NewLogger(t))

		assert.ErrorIs(t, err, ErrModelMismatch)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("unreachable backend", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1", "")
		cfg.Startup.Attempts = 1

		_, err := LoadModels(context.Background(), cfg, zaptest.NewLogger(t))

		var modelErr *client.ModelError
		assert.ErrorAs(t, err, &modelErr)
	})

	t.Run("solver failure is fatal", func(t *testing.T) {
		rec, _ := backend(t, "breezedeus/pix2text-mfr", 0)
		sol, _ := backend(t, "math-llm", 100)

		_, err := LoadModels(context.Background(), testConfig(rec.URL, sol.URL), zaptest.NewLogger(t))

		assert.ErrorIs(t, err, ErrModelNotLoaded)
		assert.Contains(t, err.Error(), "solver")
	})

	t.Run("invalid preprocessing config", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1", "")
		cfg.Recognizer.ImageStd = []float64{0.5, 0, 0.5}

		_, err := LoadModels(context.Background(), cfg, zaptest.NewLogger(t))

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "preprocessing")
	})

	t.Run("missing tokenizer fails before contacting backend", func(t *testing.T) {
		rec, calls := backend(t, "breezedeus/pix2text-mfr", 0)
		cfg := testConfig(rec.URL, "")
		cfg.Recognizer.TokenizerDir = t.TempDir()

		_, err := LoadModels(context.Background(), cfg, zaptest.NewLogger(t))

		assert.ErrorIs(t, err, tokenizer.ErrNoTokenizer)
		assert.Contains(t, err.Error(), "recognizer")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("missing solver tokenizer", func(t *testing.T) {
		rec, _ := backend(t, "breezedeus/pix2text-mfr", 0)
		sol, _ := backend(t, "math-llm", 0)
		cfg := testConfig(rec.URL, sol.URL)
		cfg.Solver.TokenizerDir = t.TempDir()

		_, err := LoadModels(context.Background(), cfg, zaptest.NewLogger(t))

		assert.ErrorIs(t, err, tokenizer.ErrNoTokenizer)
		assert.Contains(t, err.Error(), "solver")
	})

	t.Run("cancelled while backing off", func(t *testing.T) {
		rec, _ := backend(t, "breezedeus/pix2text-mfr", 100)
		cfg := testConfig(rec.URL, "")
		cfg.Startup.Backoff = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := LoadModels(ctx, cfg, zaptest.NewLogger(t))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
