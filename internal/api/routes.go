package api

import (
	"github.com/gin-gonic/gin"

	"examprephub/internal/api/handlers"
	"examprephub/internal/logger"
)

// SetupRoutes sets up the API routes. The session middleware must already be
// installed on router.
func SetupRoutes(router *gin.Engine, handler *handlers.Handler, origins []string, log *logger.Logger) {
	router.Use(RequestLogger(log.With("component", "HTTP")))
	router.Use(CORSMiddleware(origins))

	router.GET("/health", handler.HandleHealth)

	api := router.Group("/api")
	api.Use(LearnerSession(log))
	{
		// --- Assistant (AI gateway) ---
		api.GET("/assistant/status", handler.HandleAssistantStatus)
		api.GET("/assistant/models", handler.HandleListModels)
		api.POST("/assistant/chat", handler.HandleChat)
		api.POST("/assistant/evaluate-essay", handler.HandleEvaluateEssay)

		api.GET("/history", handler.HandleRecentQuestions)
		api.DELETE("/history", handler.HandleClearRecentQuestions)

		// --- Quiz workflow ---
		api.GET("/quiz", handler.HandleGetQuiz)
		api.POST("/quiz/file", handler.HandleSelectFile)
		api.POST("/quiz/continue", handler.HandleContinue)
		api.POST("/quiz/generate", handler.HandleGenerateQuiz)
		api.GET("/quiz/progress", handler.HandleQuizProgress)
		api.POST("/quiz/cancel", handler.HandleCancelGeneration)
		api.POST("/quiz/answers", handler.HandleSelectAnswer)
		api.POST("/quiz/next", handler.HandleNextQuestion)
		api.POST("/quiz/previous", handler.HandlePreviousQuestion)
		api.POST("/quiz/finish", handler.HandleFinishQuiz)
		api.POST("/quiz/back", handler.HandleBackToQuiz)
		api.POST("/quiz/reset", handler.HandleResetQuiz)
		api.GET("/quiz/review", handler.HandleReviewQuiz)

		// --- Revision maps ---
		api.GET("/revision-maps", handler.HandleListMaps)
		api.POST("/revision-maps", handler.HandleCreateMap)
		api.GET("/revision-maps/:mapId", handler.HandleGetMap)
		api.PUT("/revision-maps/:mapId", handler.HandleUpdateMap)
		api.DELETE("/revision-maps/:mapId", handler.HandleDeleteMap)
		api.GET("/revision-maps/:mapId/summary", handler.HandleMapSummary)

		topics := api.Group("/revision-maps/:mapId/topics")
		topics.POST("", handler.HandleAddTopic)
		topics.PUT("/:topicId", handler.HandleUpdateTopic)
		topics.DELETE("/:topicId", handler.HandleDeleteTopic)
		topics.POST("/:topicId/toggle", handler.HandleToggleTopic)
		topics.POST("/:topicId/move", handler.HandleMoveTopic)

		topics.POST("/:topicId/resources", handler.HandleAddResource)
		topics.PUT("/:topicId/resources/:resourceId", handler.HandleUpdateResource)
		topics.DELETE("/:topicId/resources/:resourceId", handler.HandleDeleteResource)

		topics.POST("/:topicId/subtopics", handler.HandleAddSubtopic)
		topics.DELETE("/:topicId/subtopics/:subtopicId", handler.HandleDeleteSubtopic)
		topics.POST("/:topicId/subtopics/:subtopicId/toggle", handler.HandleToggleSubtopic)

		topics.POST("/:topicId/sessions", handler.HandleAddSession)
		topics.PUT("/:topicId/sessions/:sessionId", handler.HandleUpdateSession)
		topics.DELETE("/:topicId/sessions/:sessionId", handler.HandleDeleteSession)
		topics.POST("/:topicId/sessions/:sessionId/toggle", handler.HandleToggleSession)
	}
}
