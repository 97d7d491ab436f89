package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/database"
	"github.com/karmadrop/backend/internal/database/migrations"
	"github.com/karmadrop/backend/internal/jobs"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/routes"
	"github.com/karmadrop/backend/internal/services/matching"
	"github.com/karmadrop/backend/internal/services/notification"
	"github.com/karmadrop/backend/internal/services/progression"
	"github.com/karmadrop/backend/internal/services/streak"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := config.LoadConfig()

	// Setup database connection
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Notification publisher; falls back to a no-op when redis is down
	var notifier notification.Notifier
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	notifier = notification.NewRedisNotifier(redisClient)

	// Core services
	matchingSvc := matching.NewMatchingService(db, cfg.Matching)
	leaderboardSvc := streak.NewLeaderboardService(db)
	progressionSvc := progression.NewProgressionService(db, notifier, leaderboardSvc)

	// Job queue and recurring jobs
	jobQueue := queue.NewQueue(db)
	jobs.RegisterJobHandlers(jobQueue, db, progressionSvc, leaderboardSvc)
	jobQueue.Start()
	defer jobQueue.Stop()

	scheduler := jobs.StartScheduler(cfg.Matching, db, jobQueue, matchingSvc, leaderboardSvc)
	defer scheduler.Stop()

	// Initialize router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	routes.RegisterRoutes(router, db, jobQueue, notifier, cfg)

	log.Printf("KarmaDrop API server running on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
