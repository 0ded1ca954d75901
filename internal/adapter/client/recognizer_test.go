package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/infrastructure/tokenizer/tokenizertest"
)

func TestModelRecognizer_Recognize(t *testing.T) {
	t.Run("sends pixel values and decodes formula", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate", r.URL.Path)

			var req GenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "breezedeus/pix2text-mfr", req.Model)
			assert.Equal(t, 256, req.MaxNewTokens)
			assert.False(t, req.DoSample)
			require.NotNil(t, req.PixelValues)
			assert.Equal(t, []int{1, 3, 2, 2}, req.PixelValues.Shape)

			pixels, err := DecodeTensor(req.PixelValues)
			require.NoError(t, err)
			assert.InDelta(t, 0.5, pixels.Data[0], 1e-6)

			resp := GenerateResponse{
				TokenIDs: append(tokenizertest.IDs(`\frac{a}{b}`), tokenizertest.Pad),
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "breezedeus/pix2text-mfr", 256)
		pixels := entity.NewPixelTensor(3, 2, 2)
		pixels.Data[0] = 0.5

		result, err := recognizer.Recognize(context.Background(), pixels, "test-request-id")

		require.NoError(t, err)
		assert.Equal(t, `\frac{a}{b}`, result.Formula)
		assert.Equal(t, "breezedeus/pix2text-mfr", result.ModelID)
		assert.Equal(t, "breezedeus/pix2text-mfr", recognizer.ModelID())
	})

	t.Run("rejects invalid tensor before calling backend", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
		}))
		defer server.Close()

		recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "m", 16)
		_, err := recognizer.Recognize(context.Background(), &entity.PixelTensor{}, "")

		assert.ErrorIs(t, err, entity.ErrInvalidTensor)
		assert.False(t, called)
	})

	t.Run("only special tokens is empty output", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(GenerateResponse{TokenIDs: []int{tokenizertest.BOS, tokenizertest.EOS}})
		}))
		defer server.Close()

		recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "m", 16)
		_, err := recognizer.Recognize(context.Background(), entity.NewPixelTensor(3, 1, 1), "")

		assert.ErrorIs(t, err, ErrEmptyOutput)
	})

	t.Run("non-ascii formula is decoded intact", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(GenerateResponse{TokenIDs: tokenizertest.IDs("α × β ≤ γ")})
		}))
		defer server.Close()

		recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "m", 16)
		result, err := recognizer.Recognize(context.Background(), entity.NewPixelTensor(3, 1, 1), "")

		require.NoError(t, err)
		assert.Equal(t, "α × β ≤ γ", result.Formula)
	})

	t.Run("backend failure is returned", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "m", 16)
		_, err := recognizer.Recognize(context.Background(), entity.NewPixelTensor(3, 1, 1), "")

		var modelErr *ModelError
		assert.ErrorAs(t, err, &modelErr)
	})
}

func TestModelRecognizer_Ready(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	recognizer := NewModelRecognizer(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "m", 16)
	assert.NoError(t, recognizer.Ready(context.Background()))
}

func TestModelSolver_Solve(t *testing.T) {
	t.Run("sends prompt and decodes solution", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req GenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "math-llm", req.Model)
			assert.Equal(t, "x+1=2", req.Prompt)
			assert.Nil(t, req.PixelValues)

			_ = json.NewEncoder(w).Encode(GenerateResponse{
				TokenIDs: tokenizertest.IDs("2 × 3 = 6"),
			})
		}))
		defer server.Close()

		solver := NewModelSolver(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "math-llm", 128)
		result, err := solver.Solve(context.Background(), "x+1=2", "req-1")

		require.NoError(t, err)
		assert.Equal(t, "2 × 3 = 6", result.Text)
		assert.Equal(t, "math-llm", solver.ModelID())
	})

	t.Run("empty generation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(GenerateResponse{})
		}))
		defer server.Close()

		solver := NewModelSolver(NewModelClient(server.URL, 5*time.Second), tokenizertest.Load(t), "math-llm", 128)
		_, err := solver.Solve(context.Background(), "x", "")

		assert.ErrorIs(t, err, ErrEmptyOutput)
	})
}
