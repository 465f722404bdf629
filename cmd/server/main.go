package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/incidenthub/internal/config"
	"github.com/terminal-bench/incidenthub/internal/database"
	"github.com/terminal-bench/incidenthub/internal/handlers"
	"github.com/terminal-bench/incidenthub/internal/middleware"
	"github.com/terminal-bench/incidenthub/internal/models"
	"github.com/terminal-bench/incidenthub/internal/repository"
	"github.com/terminal-bench/incidenthub/internal/services/attachment"
	"github.com/terminal-bench/incidenthub/internal/services/notification"
	"github.com/terminal-bench/incidenthub/internal/services/sla"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.Init(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	storage, err := attachment.NewStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create attachment storage")
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare attachment bucket")
	}

	incidentRepo := repository.NewIncidentRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	notifier := notification.NewService(notificationRepo, userRepo, rdb, notification.LogMailer{})
	resolver := sla.NewResolver(userRepo)
	scheduler := sla.NewScheduler(incidentRepo, resolver, notifier, sla.SystemClock())

	// Re-arm checkpoint sets lost to the restart. Overdue incidents are
	// evaluated immediately; the sweep below covers anything missed.
	rearmed, err := scheduler.RearmPending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to rearm sla schedules")
	} else {
		log.Info().Int("count", rearmed).Msg("sla schedules rearmed")
	}

	router := setupRouter(cfg, incidentRepo, userRepo, notificationRepo, commentRepo, storage, notifier, scheduler)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return notifier.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if _, err := scheduler.SweepPending(gctx, now); err != nil {
					log.Error().Err(err).Msg("sla sweep failed")
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server exiting")
}

func setupRouter(
	cfg *config.Config,
	incidentRepo *repository.IncidentRepository,
	userRepo *repository.UserRepository,
	notificationRepo *repository.NotificationRepository,
	commentRepo *repository.CommentRepository,
	storage *attachment.Storage,
	notifier *notification.Service,
	scheduler *sla.Scheduler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := handlers.NewAuthHandler(userRepo, cfg)
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.Auth(cfg), authHandler.Me)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg))
	{
		incidentHandler := handlers.NewIncidentHandler(incidentRepo, commentRepo, notificationRepo, notifier, scheduler, cfg)
		api.POST("/incidents", incidentHandler.Create)
		api.GET("/incidents", incidentHandler.List)
		api.GET("/incidents/:id", incidentHandler.Get)
		api.PUT("/incidents/:id", incidentHandler.Update)
		api.DELETE("/incidents/:id", incidentHandler.Delete)

		commentHandler := handlers.NewCommentHandler(incidentRepo, commentRepo, storage, notifier, cfg)
		api.POST("/incidents/:id/comments", commentHandler.CreateComment)
		api.POST("/incidents/:id/attachments", commentHandler.UploadAttachment)
		api.GET("/attachments/:id/download", commentHandler.DownloadAttachment)

		notificationHandler := handlers.NewNotificationHandler(notificationRepo, notifier)
		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/recent", notificationHandler.Recent)
		api.PUT("/notifications/:id/read", notificationHandler.MarkRead)

		userHandler := handlers.NewUserHandler(userRepo)
		api.GET("/users", middleware.RequireRole(models.RoleAdmin, models.RoleCoordinator), userHandler.List)
		api.GET("/users/:id", userHandler.Get)
	}

	return router
}
