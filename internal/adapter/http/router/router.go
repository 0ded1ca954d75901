package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/formulalab/formula-gateway/internal/adapter/http/handler"
	"github.com/formulalab/formula-gateway/internal/adapter/http/middleware"
	"github.com/formulalab/formula-gateway/internal/domain/service"
	"github.com/formulalab/formula-gateway/internal/infrastructure/admission"
	"github.com/formulalab/formula-gateway/internal/usecase"
)

// Dependencies are the handles the router wires into handlers
type Dependencies struct {
	FormulaUC      usecase.FormulaUsecase
	Recognizer     service.Recognizer
	Solver         service.Solver
	Redis          *redis.Client
	Queue          *admission.Queue
	MaxUploadBytes int64
}

// Setup creates and configures the Gin router
func Setup(deps Dependencies, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics())

	// Health endpoints
	healthHandler := handler.NewHealthHandler(deps.Recognizer, deps.Solver, deps.Redis, deps.Queue)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Formula routes
	formulaHandler := handler.NewFormulaHandler(deps.FormulaUC, deps.MaxUploadBytes)
	router.GET("/", formulaHandler.Root)
	router.GET("/docs", formulaHandler.Docs)
	router.POST("/recognize-formula/", formulaHandler.RecognizeFormula)
	router.POST("/solve-formula/", formulaHandler.SolveFormula)

	// Legacy front-end path, same handler and envelope
	router.POST("/process-image", formulaHandler.RecognizeFormula)

	return router
}
