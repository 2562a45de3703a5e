package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/config"
	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/handler"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/router"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
	"github.com/noah-isme/gema-classroom-api/pkg/ai"
	cloud "github.com/noah-isme/gema-classroom-api/pkg/cloudinary"
	"github.com/noah-isme/gema-classroom-api/pkg/document"
	"github.com/noah-isme/gema-classroom-api/pkg/storage"
)

const activityCacheTTL = 30 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}
	logger = logger.With().Str("service", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, domain events disabled")
		} else {
			defer natsConn.Drain()
		}
	}
	publisher := events.NewPublisher(natsConn, cfg.EventSubjectPrefix, logger)

	store, err := storage.NewLocal(cfg.StorageRoot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare submission storage")
	}
	assembler := document.NewAssembler(document.Options{MaxDimension: cfg.ImageMaxDimension}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	contentRepo := repository.NewContentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	visibilityRepo := repository.NewVisibilityRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activity := service.NewActivityRecorder(activityRepo, logger)
	gatekeeper := service.NewGatekeeper(contentRepo, enrollmentRepo, visibilityRepo)

	deps := service.SubmissionDeps{
		Gatekeeper:  gatekeeper,
		Content:     contentRepo,
		Submissions: submissionRepo,
		Assembler:   assembler,
		Store:       store,
		Events:      publisher,
	}

	shutdownGrading := func(context.Context) error { return nil }
	if grader := buildGrader(cfg, store, logger); grader != nil {
		orchestrator := service.NewGradingOrchestrator(grader, submissionRepo, publisher, validate, logger)
		switch cfg.GradingMode {
		case config.GradingModeRedis:
			queue := service.NewRedisGradingQueue(redisClient, cfg.GradingQueueKey, orchestrator, cfg.GradingWorkers, cfg.GradingTimeout, logger)
			queueCtx, cancelQueue := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := queue.Run(queueCtx); err != nil {
					logger.Error().Err(err).Msg("grading queue stopped")
				}
			}()
			shutdownGrading = func(ctx context.Context) error {
				cancelQueue()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			deps.Dispatcher = queue
		default:
			dispatcher := service.NewInProcessDispatcher(orchestrator, cfg.GradingWorkers, cfg.GradingTimeout, logger)
			shutdownGrading = dispatcher.Shutdown
			deps.Dispatcher = dispatcher
		}
	}

	if archive := buildArchive(cfg, logger); archive != nil {
		deps.Archive = archive
	}

	enrollmentService := service.NewEnrollmentService(contentRepo, enrollmentRepo, visibilityRepo, logger)
	visibilityService := service.NewVisibilityService(contentRepo, enrollmentRepo, visibilityRepo, activity, publisher, validate, logger)
	submissionService := service.NewSubmissionService(deps, service.SubmissionConfig{
		MaxImages:           cfg.MaxImages,
		HomeworkFileName:    cfg.HomeworkFileName,
		AllowDeleteRejected: cfg.AllowDeleteRejected,
	}, validate, logger)
	reviewService := service.NewReviewService(contentRepo, submissionRepo, activity, publisher, validate, logger)
	activityFeed := service.NewActivityFeedService(contentRepo, activityRepo, redisClient, activityCacheTTL, validate, logger)

	var scheduler *cron.Cron
	if cfg.VisibilitySweep != "" {
		sweeper := service.NewVisibilitySweeper(visibilityRepo, publisher, logger)
		scheduler, err = sweeper.Schedule(cfg.VisibilitySweep)
		if err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.VisibilitySweep).Msg("invalid visibility sweep schedule")
		}
	}

	maxUploadBytes := int64(cfg.MaxUploadMB) << 20
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(maxUploadBytes),
		ErrorHandler: errorHandler(logger),
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, maxUploadBytes, logger),
		TeacherHandler:    handler.NewTeacherHandler(submissionService, visibilityService, reviewService, activityFeed, logger),
		HealthChecks:      healthChecks(db, redisClient),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		SubmitRateLimit:   middleware.RateLimit("submit", cfg.SubmitRateLimit, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	logger.Info().Str("addr", cfg.HTTPAddress()).Str("grading_mode", cfg.GradingMode).Msg("classroom api started")

	<-ctx.Done()
	waitForShutdown(app, scheduler, shutdownGrading, logger)
}

func buildGrader(cfg config.Config, files ai.FileReader, logger zerolog.Logger) ai.Grader {
	if cfg.AIProvider != "openai" {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("unsupported ai provider, automatic grading disabled")
		return nil
	}
	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.AIModel,
		BaseURL: cfg.AIBaseURL,
		Timeout: cfg.GradingTimeout,
		Logger:  logger,
	}, files)
	if err != nil {
		logger.Warn().Err(err).Msg("ai grader unavailable, submissions wait for teacher review")
		return nil
	}
	return grader
}

func buildArchive(cfg config.Config, logger zerolog.Logger) service.Archiver {
	archiveCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if !archiveCfg.Enabled() {
		return nil
	}
	archive, err := cloud.New(archiveCfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudinary archive disabled")
		return nil
	}
	return archive
}

func healthChecks(db *gorm.DB, redisClient *redis.Client) map[string]handler.HealthCheckFunc {
	checks := map[string]handler.HealthCheckFunc{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return utils.SendError(c, fiberErr.Code, fiberErr.Message)
		}
		logger.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func waitForShutdown(app *fiber.App, scheduler *cron.Cron, shutdownGrading func(context.Context) error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := shutdownGrading(ctx); err != nil {
		logger.Warn().Err(err).Msg("grading workers did not finish before shutdown, pending submissions stay pending")
	}

	logger.Info().Msg("server stopped")
}
