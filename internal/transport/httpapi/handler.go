package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/service/shop"
)

const defaultOrderListLimit = 50

// CatalogService перечисляет операции каталога, доступные через API.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, in shop.CreateProductInput) (domain.Product, error)
	UpdateStock(ctx context.Context, id string, quantity int) (domain.Product, error)
	ChangePrice(ctx context.Context, id string, amount decimal.Decimal, currency string) (domain.Product, error)
	SetActive(ctx context.Context, id string, active bool) (domain.Product, error)
}

// OrderService перечисляет операции с заказами, доступные через API.
type OrderService interface {
	CreateOrder(ctx context.Context, in shop.CreateOrderInput) (shop.OrderSummary, error)
	CancelOrder(ctx context.Context, orderID string) (shop.OrderSummary, error)
	ShipOrder(ctx context.Context, orderID string) (shop.OrderSummary, error)
	GetOrder(ctx context.Context, orderID string) (shop.OrderSummary, error)
	ListOrders(ctx context.Context, customerEmail string, limit int) ([]shop.OrderSummary, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// Handler связывает HTTP-маршруты с сервисами магазина.
type Handler struct {
	catalog CatalogService
	orders  OrderService
	logger  *log.Entry
}

// NewHandler создаёт обработчики API.
func NewHandler(catalog CatalogService, orders OrderService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Handler{catalog: catalog, orders: orders, logger: logger}
}

/* =========================
   PRODUCTS
========================= */

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *Handler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), shop.CreateProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Currency:      req.Currency,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(product))
}

func (h *Handler) updateStock(c *gin.Context) {
	var req updateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.catalog.UpdateStock(c.Request.Context(), c.Param("id"), *req.StockQuantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *Handler) changePrice(c *gin.Context) {
	var req changePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.catalog.ChangePrice(c.Request.Context(), c.Param("id"), req.Price, req.Currency)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *Handler) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		product, err := h.catalog.SetActive(c.Request.Context(), c.Param("id"), active)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, newProductResponse(product))
	}
}

/* =========================
   ORDERS
========================= */

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	summary, err := h.orders.CreateOrder(c.Request.Context(), req.toInput())
	if err != nil && (summary.ID == "" || errors.Is(err, shop.ErrPaymentFailed)) {
		writeError(c, h.logger, err)
		return
	}

	resp := newOrderResponse(summary)
	if err != nil {
		// Заказ оформлен и оплачен, не ушло только письмо.
		h.logger.WithError(err).WithField("order_id", summary.ID).Warn("order created with warning")
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	summary, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil && (summary.ID == "" || errors.Is(err, shop.ErrPaymentFailed)) {
		writeError(c, h.logger, err)
		return
	}

	resp := newOrderResponse(summary)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", summary.ID).Warn("order cancelled with warning")
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) shipOrder(c *gin.Context) {
	summary, err := h.orders.ShipOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(summary))
}

func (h *Handler) getOrder(c *gin.Context) {
	summary, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(summary))
}

func (h *Handler) listOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBindError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultOrderListLimit
	}

	summaries, err := h.orders.ListOrders(c.Request.Context(), query.CustomerEmail, query.Limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]orderResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, newOrderResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *Handler) orderTimeline(c *gin.Context) {
	events, err := h.orders.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "events": newTimelineResponse(events)})
}
