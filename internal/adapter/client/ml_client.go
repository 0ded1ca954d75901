package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/domain/service"
)

// maxErrorBody bounds how much of a failed backend response is kept
const maxErrorBody = 4 << 10

// TensorPayload is the wire form of a pixel tensor: float32 little-endian, base64
type TensorPayload struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
	Data  string `json:"data"`
}

// GenerateRequest represents a generate call to a model backend
type GenerateRequest struct {
	Model        string         `json:"model"`
	RequestID    string         `json:"request_id,omitempty"`
	Prompt       string         `json:"prompt,omitempty"`
	PixelValues  *TensorPayload `json:"pixel_values,omitempty"`
	MaxNewTokens int            `json:"max_new_tokens,omitempty"`
	DoSample     bool           `json:"do_sample"`
}

// GenerateResponse represents the generated token ids. The prompt is not echoed.
type GenerateResponse struct {
	Model     string `json:"model"`
	TokenIDs  []int  `json:"token_ids"`
	RequestID string `json:"request_id,omitempty"`
}

// TokenDecoder turns generated token ids into text
type TokenDecoder interface {
	Decode(ids []int) string
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelID     string `json:"model_id"`
}

// ModelError describes a failed exchange with a model backend.
// StatusCode is 0 when the backend could not be reached.
type ModelError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ModelError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("model backend %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("model backend %s returned status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("model backend %s failed: %v", e.Op, e.Err)
	}
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is reports every ModelError as a service.ErrInference
func (e *ModelError) Is(target error) bool {
	return target == service.ErrInference
}

// ModelClient is an HTTP client for a model backend
type ModelClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewModelClient creates a new model backend client
func NewModelClient(baseURL string, timeout time.Duration) *ModelClient {
	return &ModelClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the backend address
func (c *ModelClient) BaseURL() string {
	return c.baseURL
}

// Generate runs a single generate call
func (c *ModelClient) Generate(ctx context.Context, in *GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if in.RequestID != "" {
		req.Header.Set("X-Request-ID", in.RequestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ModelError{Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("generate", resp)
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ModelError{Op: "generate", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &result, nil
}

// Health checks the model backend health
func (c *ModelClient) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ModelError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("health", resp)
	}

	var result HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ModelError{Op: "health", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &result, nil
}

// Ready checks if the model backend is ready
func (c *ModelClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ModelError{Op: "ready", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ModelError{Op: "ready", StatusCode: resp.StatusCode, Err: errors.New("model backend not ready")}
	}

	return nil
}

func newStatusError(op string, resp *http.Response) *ModelError {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ModelError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
}

// EncodeTensor packs a pixel tensor into its wire form
func EncodeTensor(t *entity.PixelTensor) (*TensorPayload, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return &TensorPayload{
		Shape: append([]int(nil), t.Shape...),
		DType: "float32",
		Data:  base64.StdEncoding.EncodeToString(buf),
	}, nil
}

// DecodeTensor unpacks a wire tensor
func DecodeTensor(p *TensorPayload) (*entity.PixelTensor, error) {
	if p.DType != "float32" {
		return nil, fmt.Errorf("unsupported dtype %q", p.DType)
	}
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tensor data: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("tensor data length %d is not a multiple of 4", len(raw))
	}
	t := &entity.PixelTensor{
		Shape: append([]int(nil), p.Shape...),
		Data:  make([]float32, len(raw)/4),
	}
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
