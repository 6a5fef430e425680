package api

import (
	"context"
	"net/http"
	"time"

	"pharmacy-api/config"
	"pharmacy-api/internal/service"
	"pharmacy-api/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	productService *service.ProductService
	orderService   *service.OrderService
	store          Pinger
	upload         config.UploadConfig
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	productService *service.ProductService,
	orderService *service.OrderService,
	store Pinger,
	upload config.UploadConfig,
) *Handler {
	return &Handler{
		productService: productService,
		orderService:   orderService,
		store:          store,
		upload:         upload,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.logger))
	router.Use(tracingMiddleware())
	router.Use(prometheusMiddleware())

	router.GET("/", h.root)
	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.Static("/uploads", h.upload.Dir)

	api := router.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.GET("/products/categories", h.listCategories)
		api.GET("/products/:id", h.getProduct)

		api.POST("/orders", h.placeOrder)
		api.GET("/orders", h.listOrders)
		api.GET("/orders/:id", h.getOrder)
		api.PATCH("/orders/:id/status", h.updateOrderStatus)

		api.POST("/upload", h.uploadImage)
	}
}

func (h *Handler) root(c *gin.Context) {
	c.String(http.StatusOK, "API running...")
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the store answers a ping
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
