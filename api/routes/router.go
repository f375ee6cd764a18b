// api/routes/router.go
package routes

import (
	"net/http"
	"regexp"
	"time"

	"tixgate/internal/events"
	"tixgate/internal/orders"
	"tixgate/internal/payments"
	"tixgate/internal/queue"
	"tixgate/internal/seatlock"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/database"
	"tixgate/internal/shared/middleware"
	"tixgate/internal/shared/store"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	store  *store.Store
	log    *logger.Logger
	mtx    *metrics.Metrics

	topics   queue.TopicManager
	producer orders.EventProducer
	gateway  payments.Gateway

	// Built during SetupRoutes, shared with background workers.
	queueService queue.Service
	orderService orders.Service
	scheduleRepo events.Repository
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	db *database.DB,
	st *store.Store,
	log *logger.Logger,
	mtx *metrics.Metrics,
	topics queue.TopicManager,
	producer orders.EventProducer,
	gateway payments.Gateway,
) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		store:    st,
		log:      log,
		mtx:      mtx,
		topics:   topics,
		producer: producer,
		gateway:  gateway,
	}
}

var eventIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("eventid", func(fl validator.FieldLevel) bool {
			return eventIDPattern.MatchString(fl.Field().String())
		}); err != nil {
			return err
		}
	}

	r.setupHealthRoutes(engine)

	engine.Use(middleware.UserContext())

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupQueueRoutes(api)
		r.setupOrderRoutes(api)
	}
	return nil
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "tixgate",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "tixgate",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// setupQueueRoutes configures waiting-room routes
func (r *Router) setupQueueRoutes(rg *gin.RouterGroup) {
	r.queueService = queue.NewService(r.store, r.topics, r.config, r.log, r.mtx)
	queueController := queue.NewController(r.queueService)

	queue.SetupQueueRoutes(rg, queueController)
}

// setupOrderRoutes configures order saga routes
func (r *Router) setupOrderRoutes(rg *gin.RouterGroup) {
	r.scheduleRepo = events.NewRepository(r.db.GetPostgreSQL())
	locker := seatlock.NewLocker(r.store, r.config.Redis.SeatLockTTL, r.mtx)
	orderRepo := orders.NewRepository(r.db.GetPostgreSQL())
	hub := orders.NewStatusHub()

	r.orderService = orders.NewService(
		orderRepo,
		r.scheduleRepo,
		locker,
		r.queueService,
		r.gateway,
		r.producer,
		hub,
		r.config,
		r.log,
		r.mtx,
	)

	verifier, err := orders.NewWebhookVerifier(r.config.Payment.WebhookSecret, r.config.Payment.WebhookTolerance)
	if err != nil {
		// A malformed secret would silently reject every webhook; fail loud
		// at boot instead.
		panic(err)
	}

	orderController := orders.NewController(r.orderService, verifier, r.log, r.mtx)
	orders.SetupOrderRoutes(rg, orderController)
}

// QueueService exposes the queue service for background workers.
func (r *Router) QueueService() queue.Service {
	return r.queueService
}

// OrderService exposes the order service for background workers.
func (r *Router) OrderService() orders.Service {
	return r.orderService
}

// ScheduleRepo exposes the schedule repository for the window scheduler.
func (r *Router) ScheduleRepo() events.Repository {
	return r.scheduleRepo
}
