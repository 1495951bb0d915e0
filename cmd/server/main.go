package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vpanel/internal/config"
	"vpanel/internal/database"
	"vpanel/internal/handlers"
	"vpanel/internal/middleware"
	"vpanel/internal/models"
	"vpanel/internal/services/cron"
	"vpanel/internal/services/monitor"
	ws "vpanel/internal/services/websocket"
)

func main() {
	// Load .env file if exists
	godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = configureLogger(logger, cfg.Log)

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db,
		&models.User{},
		&models.CronJob{},
		&models.CronJobLog{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	createDefaultAdmin(db, cfg, logger)

	// Cron subsystem: store -> executor -> scheduler loop.
	store := cron.NewStore(db, cfg.Cron.DefaultTimeout)
	executor := cron.NewExecutor(store, logger, cfg.Cron.MaxConcurrent, cfg.Cron.OutputLimit)
	scheduler := cron.NewScheduler(store, executor, cfg.Cron.TickInterval, logger)

	mon := monitor.New(cfg.Node.ID)
	hub := ws.NewHub(mon, logger, 2*time.Second)
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go scheduler.Run(ctx)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"code": "internal_error", "message": err.Error()},
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	setupRoutes(app, db, cfg, store, executor, mon, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info().Str("addr", addr).Str("node", cfg.Node.ID).Msg("vpanel starting")
		if err := app.Listen(addr); err != nil {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}

	// Let in-flight cron runs finish, time-boxed.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Cron.DrainTimeout)
	defer cancel()
	if err := executor.Drain(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("in-flight cron runs did not finish before deadline")
	}
}

func configureLogger(logger zerolog.Logger, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func setupRoutes(
	app *fiber.App,
	db *gorm.DB,
	cfg *config.Config,
	store *cron.Store,
	executor *cron.Executor,
	mon *monitor.Monitor,
	hub *ws.Hub,
) {
	authHandler := handlers.NewAuthHandler(db)
	cronHandler := handlers.NewCronHandler(store, executor, cfg.Cron)
	systemHandler := handlers.NewSystemHandler(mon)

	api := app.Group("/api")
	api.Post("/auth/login", authHandler.Login)

	protected := api.Group("/", middleware.AuthRequired())
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/profile", authHandler.Profile)
	protected.Post("/auth/2fa/setup", authHandler.Setup2FA)
	protected.Post("/auth/2fa/verify", authHandler.Verify2FA)
	protected.Post("/auth/2fa/disable", authHandler.Disable2FA)

	protected.Get("/cron/jobs", cronHandler.List)
	protected.Post("/cron/jobs", cronHandler.Create)
	protected.Get("/cron/jobs/:id", cronHandler.Get)
	protected.Put("/cron/jobs/:id", cronHandler.Update)
	protected.Delete("/cron/jobs/:id", cronHandler.Delete)
	protected.Post("/cron/jobs/:id/run", cronHandler.Run)
	protected.Get("/cron/jobs/:id/logs", cronHandler.Logs)

	protected.Get("/system/stats", systemHandler.Stats)

	app.Get("/ws/stats", websocket.New(hub.Handle))
}

func createDefaultAdmin(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) {
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	admin := models.User{
		Username: cfg.Admin.Username,
		Email:    cfg.Admin.Email,
		Role:     "admin",
	}
	if err := admin.SetPassword(cfg.Admin.Password); err != nil {
		logger.Error().Err(err).Msg("failed to hash default admin password, not seeding account")
		return
	}

	if err := db.Create(&admin).Error; err != nil {
		logger.Error().Err(err).Msg("failed to create default admin")
	} else {
		logger.Info().Str("username", cfg.Admin.Username).Msg("default admin user created")
	}
}
