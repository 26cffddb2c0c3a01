package shop

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/metrics"
)

// DefaultCurrency используется для товаров, созданных без явной валюты.
const DefaultCurrency = "BRL"

// CreateProductInput описывает новый товар каталога.
type CreateProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	Currency      string
	StockQuantity int
}

// CatalogService реализует операции каталога поверх ProductRepository.
type CatalogService struct {
	products        domain.ProductRepository
	updater         productUpdater
	nextID          domain.IDGenerator
	now             func() time.Time
	defaultCurrency string
	logger          *log.Entry
}

// CatalogOption настраивает CatalogService.
type CatalogOption func(*CatalogService)

// WithCatalogIDGenerator задаёт генератор идентификаторов товаров.
func WithCatalogIDGenerator(next domain.IDGenerator) CatalogOption {
	return func(s *CatalogService) {
		if next != nil {
			s.nextID = next
		}
	}
}

// WithCatalogClock задаёт источник времени.
func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(s *CatalogService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultCurrency задаёт валюту товаров по умолчанию.
func WithDefaultCurrency(currency string) CatalogOption {
	return func(s *CatalogService) {
		if c := strings.TrimSpace(currency); c != "" {
			s.defaultCurrency = strings.ToUpper(c)
		}
	}
}

// WithCatalogMetrics подключает метрики конфликтов версий.
func WithCatalogMetrics(m *metrics.ShopMetrics) CatalogOption {
	return func(s *CatalogService) {
		s.updater.metrics = m
	}
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(products domain.ProductRepository, logger *log.Entry, opts ...CatalogOption) *CatalogService {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	s := &CatalogService{
		products:        products,
		nextID:          uuid.NewString,
		now:             func() time.Time { return time.Now().UTC() },
		defaultCurrency: DefaultCurrency,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updater.products = products
	s.updater.logger = logger
	s.updater.now = s.now
	return s
}

// ListProducts возвращает каталог, отсортированный по имени.
func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	return s.products.Get(ctx, id)
}

// CreateProduct валидирует и сохраняет новый активный товар.
func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	price, err := domain.NewMoney(in.Price, currency)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := domain.NewProduct(s.nextID(), in.Name, in.Description, price, in.StockQuantity, s.now())
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"name":       product.Name,
		"price":      product.Price.String(),
		"stock":      product.StockQuantity,
	}).Info("product created")
	return product, nil
}

// UpdateStock задаёт остаток товара (инвентаризация).
func (s *CatalogService) UpdateStock(ctx context.Context, id string, quantity int) (domain.Product, error) {
	product, err := s.updater.update(ctx, id, func(p *domain.Product) error {
		return p.SetStock(quantity)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": id,
		"stock":      quantity,
	}).Info("product stock updated")
	return product, nil
}

// ChangePrice меняет цену товара. Пустая валюта означает текущую валюту товара.
// Уже оформленные заказы сохраняют цену на момент покупки.
func (s *CatalogService) ChangePrice(ctx context.Context, id string, amount decimal.Decimal, currency string) (domain.Product, error) {
	var previous domain.Money
	product, err := s.updater.update(ctx, id, func(p *domain.Product) error {
		target := currency
		if strings.TrimSpace(target) == "" {
			target = p.Price.Currency
		}
		price, err := domain.NewMoney(amount, target)
		if err != nil {
			return err
		}
		previous = p.Price
		return p.ChangePrice(price)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": id,
		"old_price":  previous.String(),
		"new_price":  product.Price.String(),
	}).Info("product price changed")
	return product, nil
}

// SetActive включает или скрывает товар для оформления заказов.
func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) (domain.Product, error) {
	product, err := s.updater.update(ctx, id, func(p *domain.Product) error {
		if active {
			p.Activate()
		} else {
			p.Deactivate()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, err
		}
		s.logger.WithError(err).WithField("product_id", id).Warn("toggle product failed")
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": id,
		"active":     active,
	}).Info("product availability changed")
	return product, nil
}
