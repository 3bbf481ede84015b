package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/api/handlers"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/api/middleware"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/config"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/engine"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/gateway"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/store"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/tasks"
)

// SetupRouter configures and returns the main Gin engine. A nil taskClient
// disables event publishing (notifications off, transitions unaffected).
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient *asynq.Client) *gin.Engine {
	// Initialize stores and the engine needed by API handlers HERE
	bookingStore := store.NewMongoBookingStore(db)
	intentStore := store.NewMongoPaymentIntentStore(db)
	listingStore := store.NewMongoListingStore(db)
	userStore := store.NewMongoUserStore(db)

	var events engine.EventPublisher = engine.NopPublisher{}
	if taskClient != nil {
		events = tasks.NewEventPublisher(taskClient)
	}

	gatewayAdapter := gateway.NewHTTPAdapter(cfg)
	bookingEngine := engine.NewBookingEngine(bookingStore, intentStore, listingStore, gatewayAdapter, events)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingEngine)
	authHandler := handlers.NewAuthHandler(cfg, userStore)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)

		// Authenticated Routes (rate limiting already applied globally)
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/booking", bookingHandler.CreateBooking)
			authRequired.GET("/booking", bookingHandler.ListBookings)
			authRequired.GET("/booking/:id", bookingHandler.GetBooking)
			authRequired.POST("/booking/:id/payment/confirm", bookingHandler.ConfirmPayment)
			authRequired.POST("/booking/:id/respond", bookingHandler.Respond)
			authRequired.POST("/booking/:id/cancel", bookingHandler.CancelBooking)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine used for
// operational commands (currently just shutdown, for test orchestration).
func SetupServiceRouter(cfg *config.Config, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
