package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-game-platform/config"
	"school-game-platform/handlers"
	"school-game-platform/middleware"
	"school-game-platform/services"
	"school-game-platform/storage"
	"school-game-platform/utils"
	"school-game-platform/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer store.Close()

	var statsCache services.StatsCache = services.NoopStatsCache{}
	if cfg.Redis.Address != "" {
		client, err := services.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, dashboard cache disabled: %v", err)
		} else {
			defer client.Close()
			statsCache = services.NewRedisStatsCache(client, cfg.Redis.StatsTTL)
			log.Printf("✅ Dashboard cache on %s (ttl %s)", cfg.Redis.Address, cfg.Redis.StatsTTL)
		}
	}

	var assets services.AssetUploader
	if cfg.Storage.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg.Storage)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		assets = uploader
	} else {
		log.Println("⚠️  R2 not configured, game logo uploads disabled")
	}

	seeds, err := services.LoadAliasSeeds(cfg.Games.AliasesFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	progressService := services.NewProgressService(store, store, statsCache)
	statsService := services.NewStatsService(store, store, store, statsCache)
	gameService := services.NewGameService(store, seeds, assets)

	sched, err := gameService.StartAliasBackfill(cfg.Games.AliasBackfillInterval)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	if cfg.Roster.BaseURL != "" {
		rosterWorker := workers.NewRosterSyncWorker(store, cfg.Roster.BaseURL, cfg.Roster.Path, cfg.Server.GatewayToken, cfg.Roster.Interval)
		rosterWorker.Start(ctx)
	} else {
		log.Println("⚠️  ROSTER_SYNC_URL not set, roster sync disabled")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(cfg.IsProduction()),
		BodyLimit:    8 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-School-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐❗ Only Gateway requests allowed, health probes excepted
	app.Use(middleware.GatewayAuthMiddleware(cfg.Server.GatewayToken, "/health"))

	handlers.SetupHealthRoute(app, store)
	handlers.SetupGameRoutes(app, gameService)
	handlers.SetupProgressRoutes(app, progressService)
	handlers.SetupSchoolRoutes(app, statsService)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%d (%s, store=%s)", cfg.Server.Port, cfg.Server.Env, cfg.Store.Driver)
	log.Printf("✅ CORS configured for origins: %s", cfg.Server.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Println("⚠️  Using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return storage.OpenPostgres(cfg.Store.DatabaseURL, !cfg.IsProduction())
	}
}
