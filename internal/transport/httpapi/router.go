package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/metrics"
)

// NewRouter собирает gin.Engine со всеми маршрутами API.
// httpMetrics может быть nil.
func NewRouter(h *Handler, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(recovery(h.logger), requestLogger(h.logger, httpMetrics))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	api := r.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.POST("/products", h.createProduct)
		api.GET("/products/:id", h.getProduct)
		api.PUT("/products/:id/stock", h.updateStock)
		api.PUT("/products/:id/price", h.changePrice)
		api.POST("/products/:id/activate", h.setActive(true))
		api.POST("/products/:id/deactivate", h.setActive(false))

		api.GET("/orders", h.listOrders)
		api.POST("/orders", h.createOrder)
		api.GET("/orders/:id", h.getOrder)
		api.GET("/orders/:id/timeline", h.orderTimeline)
		api.POST("/orders/:id/cancel", h.cancelOrder)
		api.POST("/orders/:id/ship", h.shipOrder)
	}

	return r
}

// requestLogger пишет строку лога на каждый запрос и обновляет HTTP метрики.
func requestLogger(logger *log.Entry, httpMetrics *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpMetrics.RequestStarted()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		status := c.Writer.Status()
		httpMetrics.RequestFinished(c.Request.Method, route, status, duration)

		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Info("http request")
	}
}

// recovery перехватывает панику обработчика и отвечает 500.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(log.Fields{
					"panic":  r,
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				}).Error("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
			}
		}()
		c.Next()
	}
}
