package router

import (
	"github.com/gin-gonic/gin"

	"verdict.app/engine/internal/http/handler"
)

func EvaluationRouter(router *gin.RouterGroup, h *handler.EvaluationHandler) {
	router.POST("", h.Evaluate)
	router.POST("/async", h.EvaluateAsync)
	router.GET("", h.List)
	router.GET("/:id", h.Get)
}
