package app

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/metrics"
	"github.com/vladislavdragonenkov/myshop/internal/service/payment"
	"github.com/vladislavdragonenkov/myshop/internal/service/shop"
)

// Dependencies содержит внешние зависимости сервисов магазина.
type Dependencies struct {
	Products domain.ProductRepository
	Orders   domain.OrderRepository
	Timeline domain.TimelineRepository
	Payments domain.PaymentGateway
	Notifier domain.Notifier
	Events   domain.EventPublisher
	Metrics  *metrics.ShopMetrics
	Logger   *log.Entry
}

// Services содержит собранные сервисы магазина.
type Services struct {
	Catalog *shop.CatalogService
	Orders  *shop.OrderService
}

// NewServices собирает каталог и сервис заказов поверх зависимостей.
// Если Payments не задан, используется симулятор; реальный платёжный провайдер подключается через domain.PaymentGateway.
func NewServices(cfg Config, deps Dependencies) (*Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "app")
	}
	payments := deps.Payments
	if payments == nil {
		payments = payment.NewSimulator(uuid.NewString, logger.WithField("component", "payment"))
	}

	catalog := shop.NewCatalogService(deps.Products, logger.WithField("component", "catalog"),
		shop.WithDefaultCurrency(cfg.DefaultCurrency),
		shop.WithCatalogMetrics(deps.Metrics),
	)

	orders, err := shop.NewOrderService(shop.OrderServiceDeps{
		Products: deps.Products,
		Orders:   deps.Orders,
		Timeline: deps.Timeline,
		Payments: payments,
		Notifier: deps.Notifier,
		Events:   deps.Events,
		Pricing:  cfg.Pricing,
		Metrics:  deps.Metrics,
		Logger:   logger.WithField("component", "orders"),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	return &Services{Catalog: catalog, Orders: orders}, nil
}
