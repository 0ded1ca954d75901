package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formulalab/formula-gateway/internal/domain/entity"
	"github.com/formulalab/formula-gateway/internal/usecase"
)

// FormulaHandler handles recognition and solve requests
type FormulaHandler struct {
	formulaUC      usecase.FormulaUsecase
	maxUploadBytes int64
}

// NewFormulaHandler creates a new formula handler
func NewFormulaHandler(formulaUC usecase.FormulaUsecase, maxUploadBytes int64) *FormulaHandler {
	return &FormulaHandler{
		formulaUC:      formulaUC,
		maxUploadBytes: maxUploadBytes,
	}
}

// Root handles GET /
func (h *FormulaHandler) Root(c *gin.Context) {
	respondSuccess(c, http.StatusOK, MessageResponse{Message: entity.WelcomeMessage})
}

// RecognizeFormula handles POST /recognize-formula/
func (h *FormulaHandler) RecognizeFormula(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	data, err := ReadUpload(c)
	if err != nil {
		if IsPayloadTooLarge(err) {
			HandlePayloadTooLarge(c, h.maxUploadBytes)
			return
		}
		HandleInvalidRequest(c, err.Error())
		return
	}

	output, err := h.formulaUC.Recognize(c.Request.Context(), &usecase.RecognizeInput{
		Image:     data,
		RequestID: requestID(c),
	})
	if err != nil {
		HandleUsecaseError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, RecognitionResponse{
		Status:      "success",
		Formula:     output.Formula,
		Explanation: output.Explanation,
	})
}

// SolveFormula handles POST /solve-formula/
func (h *FormulaHandler) SolveFormula(c *gin.Context) {
	formula, err := ExtractFormula(c)
	if err != nil {
		HandleInvalidRequest(c, err.Error())
		return
	}

	output, err := h.formulaUC.Solve(c.Request.Context(), &usecase.SolveInput{
		Formula:   formula,
		RequestID: requestID(c),
	})
	if err != nil {
		HandleUsecaseError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, SolveResponse{Solution: output.Solution})
}

// EndpointDoc describes one public route
type EndpointDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Endpoints lists the public API served by the router
var Endpoints = []EndpointDoc{
	{Method: http.MethodGet, Path: "/", Description: "Welcome message"},
	{Method: http.MethodPost, Path: "/recognize-formula/", Description: "Recognize a formula image (multipart field \"file\") into LaTeX"},
	{Method: http.MethodPost, Path: "/process-image", Description: "Alias of /recognize-formula/ for multipart field \"image\""},
	{Method: http.MethodPost, Path: "/solve-formula/", Description: "Solve a formula passed as \"formula\" query, form or JSON field"},
	{Method: http.MethodGet, Path: "/health", Description: "Component health"},
	{Method: http.MethodGet, Path: "/ready", Description: "Readiness probe"},
	{Method: http.MethodGet, Path: "/metrics", Description: "Prometheus metrics"},
}

// Docs handles GET /docs
func (h *FormulaHandler) Docs(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"endpoints": Endpoints})
}
