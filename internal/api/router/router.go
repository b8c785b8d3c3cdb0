package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"resume-builder/internal/api/handler"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, interviewHandler *handler.InterviewHandler) {
	api := h.Group("/api/v1")

	sessions := api.Group("/sessions")
	sessions.POST("", interviewHandler.CreateSession)
	sessions.POST("/:id/turns", interviewHandler.SubmitTurn)
	sessions.GET("/:id/preview", interviewHandler.Preview)
	sessions.POST("/:id/generate", interviewHandler.Generate)
	sessions.GET("/:id/download", interviewHandler.Download)
	sessions.DELETE("/:id", interviewHandler.DeleteSession)

	// 添加健康检查
	api.GET("/health", interviewHandler.Health)
	api.GET("/metrics", interviewHandler.Metrics)
}
