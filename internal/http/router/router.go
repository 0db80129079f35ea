package router

import (
	"github.com/gin-gonic/gin"

	"verdict.app/engine/internal/http/handler"
	"verdict.app/engine/internal/service"
)

type RouterConfig struct {
	Evaluations service.EvaluationService
	Health      handler.HealthChecker
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	healthHandler := handler.NewHealthHandler(cfg.Health)
	router.GET("/health", healthHandler.Live)
	router.GET("/health/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		evalHandler := handler.NewEvaluationHandler(cfg.Evaluations)
		EvaluationRouter(v1.Group("/evaluations"), evalHandler)
	}
}
