/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the plan-charge engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment + flags)
  2. Initialize SQLite store
  3. Build provider clients and the sync service
  4. Optionally connect the Redis plan-charge cache
  5. Configure HTTP router and start serving
  6. Start the periodic sync scheduler

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080 or $PORT)
  -db      SQLite database path (default: plancharge.db or $DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running sync)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

ENVIRONMENT:
  PAYROLL_API_URL / PAYROLL_API_KEY / PAYROLL_COMPANY_ID
  TIMETRACK_API_URL / TIMETRACK_API_KEY
  SYNC_SCHEDULE (cron expression, empty disables)
  REDIS_URL (empty disables the plan-charge cache), CACHE_TTL
  PORT, DB_PATH

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plancharge/engine/api"
	"github.com/plancharge/engine/cache"
	"github.com/plancharge/engine/config"
	"github.com/plancharge/engine/provider"
	"github.com/plancharge/engine/store/sqlite"
	"github.com/plancharge/engine/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	st, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	// Provider clients share one sliding-window limiter
	limiter := provider.NewRateLimiter(50, 10*time.Second)
	payroll := provider.NewPayrollClient(provider.PayrollConfig{
		BaseURL:   cfg.Payroll.BaseURL,
		APIKey:    cfg.Payroll.APIKey,
		CompanyID: cfg.Payroll.CompanyID,
	}, limiter)
	timetrack := provider.NewTimetrackClient(provider.TimetrackConfig{
		BaseURL: cfg.Timetrack.BaseURL,
		APIKey:  cfg.Timetrack.APIKey,
	}, limiter)

	sync := syncer.New(st, payroll, timetrack)

	// Optional Redis cache for plan-charge months
	var planCache *cache.PlanChargeCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		planCache = cache.New(redis.NewClient(opts), cfg.CacheTTL)
		log.Println("[Main] Plan-charge cache enabled")
	} else {
		planCache = cache.New(nil, 0)
	}

	handler := api.NewHandler(st, sync, planCache)
	router := api.NewRouter(handler)

	scheduler := api.NewSyncScheduler(sync, cfg.SyncSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
