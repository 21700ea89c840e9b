package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resellhub/internal/cache"
	"resellhub/internal/config"
	"resellhub/internal/handler"
	"resellhub/internal/middleware"
	"resellhub/internal/queue"
	"resellhub/internal/repository"
	"resellhub/internal/router"
	"resellhub/internal/secret"
	"resellhub/internal/service"
	"resellhub/internal/supervisor"
	"resellhub/internal/telegram"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting resellhub...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Store.Type, err)
	}
	defer store.Close()
	log.Printf("%s store initialized", cfg.Store.Type)

	// Redis backs the shared caches and the event queue when configured.
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" || cfg.Queue.Enabled {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis client initialized")
	}

	// Balances and tokens live in separate namespaces: a maturity sweep
	// clears every cached balance and must not log agents out.
	var balanceCache, tokenCache cache.Cache
	if cfg.Cache.Type == "redis" {
		balanceCache = cache.NewRedisCache(redisClient, "resellhub:balance")
		tokenCache = cache.NewRedisCache(redisClient, "resellhub:tokens")
	} else {
		mb := cache.NewMemoryCache(time.Minute)
		mt := cache.NewMemoryCache(time.Minute)
		defer mb.Close()
		defer mt.Close()
		balanceCache, tokenCache = mb, mt
	}

	box, err := secret.NewBox(cfg.Bot.CredentialKey)
	if err != nil {
		log.Fatalf("Invalid AGENT_TOKEN_AES_KEY: %v", err)
	}

	// Initialize services
	ledgerService := service.NewLedgerService(store, balanceCache, service.LedgerConfig{
		MaturityWindow: cfg.Ledger.MaturityWindow,
		BalanceTTL:     cfg.Cache.TTL,
	})
	withdrawalService := service.NewWithdrawalService(store, store, ledgerService, service.WithdrawalConfig{
		ClaimTTL: cfg.Ledger.ClaimTTL,
	})
	agentService := service.NewAgentService(store, box)
	allocator := service.NewAllocator(store)
	tokenService := service.NewTokenService(tokenCache, service.DefaultTokenTTL)

	scheduler := service.NewMaturityScheduler(ledgerService, service.MaturitySchedulerConfig{
		Interval: cfg.Ledger.SweepInterval,
	})
	scheduler.Start()

	sup := supervisor.New(agentService, telegram.NewConnector(telegram.Config{
		BaseURL:     cfg.Bot.APIBaseURL,
		PollTimeout: cfg.Bot.PollTimeout,
	}, telegram.LogDispatcher{}), supervisor.Config{
		ReconcileInterval: cfg.Supervisor.ReconcileInterval,
		StopTimeout:       cfg.Supervisor.StopTimeout,
	})
	supCtx, stopSupervisor := context.WithCancel(context.Background())
	if cfg.Supervisor.Enabled {
		go sup.Run(supCtx)
	}

	var eventQueue *queue.RedisQueue
	var queueDepth handler.QueueDepth
	if cfg.Queue.Enabled {
		eventQueue = queue.NewRedisQueue(redisClient, queue.Config{
			KeyPrefix:   cfg.Queue.KeyPrefix,
			PollTimeout: cfg.Queue.PollTimeout,
			MaxAttempts: cfg.Queue.MaxAttempts,
		})
		eventQueue.Start(service.NewEventHandler(ledgerService))
		queueDepth = eventQueue
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Stop()

	adminKeys := cfg.App.AdminAPIKeys()
	if len(adminKeys) == 0 {
		log.Println("Warning: ADMIN_API_KEYS is empty, admin routes will refuse every request")
	}

	// Create router
	r := router.New(router.Config{
		Handler:           handler.New(cfg.App.Name, cfg.App.Version, store),
		AgentHandler:      handler.NewAgentHandler(agentService, ledgerService),
		InventoryHandler:  handler.NewInventoryHandler(allocator),
		LedgerHandler:     handler.NewLedgerHandler(ledgerService, agentService, scheduler),
		WithdrawalHandler: handler.NewWithdrawalHandler(withdrawalService),
		PortalHandler:     handler.NewPortalHandler(ledgerService, withdrawalService),
		SupervisorHandler: handler.NewSupervisorHandler(sup),
		AdminHandler:      handler.NewAdminHandler(store, queueDepth, sup, cfg.Store.Type),
		AuthHandler:       handler.NewAuthHandler(tokenService, agentService),
		AdminAuth:         middleware.NewAdminAuth(adminKeys),
		AgentAuth:         middleware.NewAgentAuth(tokenService),
		RateLimit:         limiter.Middleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop consuming before the ledger goes away.
	if eventQueue != nil {
		log.Println("Stopping event queue...")
		eventQueue.Stop()
	}
	scheduler.Stop()
	stopSupervisor()
	sup.ShutdownAll()

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

// openStore opens the account store selected by cfg.Type.
func openStore(cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Type {
	case "mongodb", "mongo":
		return repository.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "postgresql":
		return repository.NewPostgresStore(cfg.PostgresDSN())
	case "mysql":
		return repository.NewMySQLStore(cfg.MySQLDSN())
	case "sqlite", "":
		return repository.NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
