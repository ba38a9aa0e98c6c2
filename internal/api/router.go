package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ecodeli/delivery-tracking/internal/api/handler"
	"github.com/ecodeli/delivery-tracking/internal/api/middleware"
	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(
	service ports.TrackingService,
	queue handler.PositionEnqueuer,
	db *mongo.Database,
	rdb *redis.Client,
	jwtSecret string,
	log zerolog.Logger,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("tracking"))

	// --- Handlers ---
	deliveryHandler := handler.NewDeliveryHandler(service)
	positionHandler := handler.NewPositionHandler(service, queue)
	streamHandler := handler.NewStreamHandler(service, log)
	authMiddleware := middleware.Auth(jwtSecret)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- Tracking API ---
	v1 := e.Group("/v1", authMiddleware)

	v1.POST("/deliveries", deliveryHandler.Create,
		middleware.RBAC(domain.RoleClient, domain.RoleAdmin))
	v1.GET("/deliveries/:id", deliveryHandler.Get,
		middleware.RBAC(domain.RoleClient, domain.RoleCourier, domain.RoleAdmin))
	v1.POST("/deliveries/:id/status", deliveryHandler.Transition,
		middleware.RBAC(domain.RoleCourier, domain.RoleAdmin))
	v1.GET("/deliveries/:id/positions", deliveryHandler.History,
		middleware.RBAC(domain.RoleClient, domain.RoleCourier, domain.RoleAdmin))
	v1.POST("/deliveries/:id/position", positionHandler.Report,
		middleware.RBAC(domain.RoleCourier))
	v1.POST("/positions", positionHandler.Batch,
		middleware.RBAC(domain.RoleCourier))
	v1.GET("/deliveries/:id/stream", streamHandler.Stream,
		middleware.RBAC(domain.RoleClient, domain.RoleCourier, domain.RoleAdmin))

	return e
}
