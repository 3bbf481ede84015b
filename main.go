package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/api"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/cache"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/config"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/db"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/email"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/engine"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/gateway"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/store"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Ensure indexes (unique gateway_intent_id)
	ctxIdx, cancelIdx := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsurePaymentIntentIndexes(ctxIdx, mongoDb); err != nil {
		cancelIdx()
		log.Fatalf("Failed to ensure payment intent indexes: %v", err)
	}
	cancelIdx()

	// Initialize Email Sender
	emailSender := email.NewSMTPSender(cfg)

	// Initialize Task Client
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1) // Buffered channel

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		// Router initializes its own stores and engine
		mainApiRouter := api.SetupRouter(cfg, mongoDb, redisClient, taskClient)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		fmt.Println("Starting background worker...")

		// The worker gets its own engine instance wired to the same stores.
		bookingStore := store.NewMongoBookingStore(mongoDb)
		intentStore := store.NewMongoPaymentIntentStore(mongoDb)
		listingStore := store.NewMongoListingStore(mongoDb)
		userStore := store.NewMongoUserStore(mongoDb)
		gatewayAdapter := gateway.NewHTTPAdapter(cfg)
		bookingEngine := engine.NewBookingEngine(bookingStore, intentStore, listingStore, gatewayAdapter, tasks.NewEventPublisher(taskClient))

		taskProcessor := tasks.NewTaskProcessor(cfg, emailSender, bookingEngine, intentStore, userStore, taskClient)

		// Kick off the self-re-enqueueing reconciliation loop. The fixed task
		// ID keeps restarts from stacking a second loop.
		_, err := taskClient.Enqueue(tasks.NewReconcileTask(),
			asynq.TaskID(tasks.ReconcileTaskID),
			asynq.ProcessIn(cfg.ReconcileInterval),
			asynq.Queue("default"))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Fatalf("Failed to enqueue initial reconciliation task: %v", err)
		}

		backgroundTaskSrv = tasks.SetupServer(redisClient, taskProcessor)
		fmt.Println("Background task server started.")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan: // Listen for shutdown signal from Service API
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	// Create context with timeout for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	// Shutdown servers
	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	// Wait for all server goroutines to finish
	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
