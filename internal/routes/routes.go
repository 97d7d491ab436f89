package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/handlers"
	"github.com/karmadrop/backend/internal/middleware"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/notification"
)

// RegisterRoutes wires all handlers onto the router
func RegisterRoutes(router *gin.Engine, db *gorm.DB, q queue.QueueInterface, notifier notification.Notifier, cfg *config.Config) {
	dropHandler := handlers.NewDropHandler(db, cfg.Matching)
	leaderboardHandler := handlers.NewLeaderboardHandler(db)
	progressionHandler := handlers.NewProgressionHandler(db, notifier)
	webhookHandler := handlers.NewWebhookHandler(db, q, cfg)

	rateLimiter := middleware.NewRateLimiter(10, 20)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(), rateLimiter.IPRateLimiterMiddleware())
	{
		drops := api.Group("/drops")
		{
			drops.POST("", dropHandler.CreateDrop)
			drops.GET("", dropHandler.GetUserDrops)
			drops.GET("/brackets", dropHandler.GetBrackets)
			drops.GET("/stats", dropHandler.GetStatistics)
			drops.GET("/:id", dropHandler.GetDrop)
			drops.DELETE("/:id", dropHandler.CancelDrop)
		}

		leaderboard := api.Group("/leaderboard")
		{
			leaderboard.POST("/refresh", leaderboardHandler.Refresh)
			leaderboard.GET("/streak", leaderboardHandler.GetStreak)
			leaderboard.GET("/:period/:category", leaderboardHandler.GetTopPerformers)
			leaderboard.GET("/:period/:category/me", leaderboardHandler.GetMyRank)
		}

		api.GET("/progression", progressionHandler.GetProgression)
		api.GET("/achievements", progressionHandler.GetAchievements)
		api.POST("/achievements/check", progressionHandler.CheckAchievements)
	}

	// Webhooks authenticate by signature, not JWT
	webhooks := router.Group("/webhooks")
	webhooks.Use(rateLimiter.IPRateLimiterMiddleware())
	{
		webhooks.POST("/payment", webhookHandler.PaymentWebhook)
	}
}
