package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/metrics"
)

// ErrPaymentFailed оборачивает ошибки платёжного провайдера при авторизации и возврате.
var ErrPaymentFailed = errors.New("payment failed")

var errMissingDependency = errors.New("order service: missing dependency")

// OrderItemInput задаёт запрошенную позицию: товар и количество.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput описывает запрос на оформление заказа.
type CreateOrderInput struct {
	CustomerEmail   string
	ShippingAddress domain.Address
	Items           []OrderItemInput
}

// OrderServiceDeps перечисляет зависимости OrderService.
// Timeline, Events, Metrics, NextID, Now и Logger необязательны.
type OrderServiceDeps struct {
	Products domain.ProductRepository
	Orders   domain.OrderRepository
	Timeline domain.TimelineRepository
	Payments domain.PaymentGateway
	Notifier domain.Notifier
	Events   domain.EventPublisher
	Pricing  PricingPolicy
	NextID   domain.IDGenerator
	Now      func() time.Time
	Metrics  *metrics.ShopMetrics
	Logger   *log.Entry
}

// OrderService реализует оформление, отмену и отгрузку заказов.
type OrderService struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	payments domain.PaymentGateway
	notifier domain.Notifier
	events   domain.EventPublisher
	pricing  PricingPolicy
	nextID   domain.IDGenerator
	now      func() time.Time
	metrics  *metrics.ShopMetrics
	logger   *log.Entry
	stock    productUpdater
}

// NewOrderService проверяет зависимости и создаёт сервис заказов.
func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	switch {
	case deps.Products == nil:
		return nil, fmt.Errorf("%w: product repository", errMissingDependency)
	case deps.Orders == nil:
		return nil, fmt.Errorf("%w: order repository", errMissingDependency)
	case deps.Payments == nil:
		return nil, fmt.Errorf("%w: payment gateway", errMissingDependency)
	case deps.Notifier == nil:
		return nil, fmt.Errorf("%w: notifier", errMissingDependency)
	}
	if err := deps.Pricing.Validate(); err != nil {
		return nil, fmt.Errorf("pricing policy: %w", err)
	}
	if deps.NextID == nil {
		deps.NextID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "orders")
	}

	return &OrderService{
		products: deps.Products,
		orders:   deps.Orders,
		timeline: deps.Timeline,
		payments: deps.Payments,
		notifier: deps.Notifier,
		events:   deps.Events,
		pricing:  deps.Pricing,
		nextID:   deps.NextID,
		now:      deps.Now,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		stock: productUpdater{
			products: deps.Products,
			logger:   deps.Logger,
			metrics:  deps.Metrics,
			now:      deps.Now,
		},
	}, nil
}

// reservation — суммарное количество товара в одном запросе.
type reservation struct {
	productID string
	quantity  int
}

// CreateOrder проверяет наличие всех позиций, резервирует склад, рассчитывает доставку и скидку,
// подтверждает и сохраняет заказ, авторизует оплату и отправляет подтверждение.
//
// До сохранения заказа любая ошибка отменяет уже сделанные резервы. Если оплата не прошла,
// заказ отменяется, склад возвращается, а ошибка оборачивает ErrPaymentFailed.
// Если не удалось отправить письмо, заказ остаётся оформленным: возвращаются и summary, и ошибка.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderSummary, error) {
	started := time.Now()
	s.metrics.RecordCheckoutStarted()
	defer func() { s.metrics.RecordCheckoutFinished(time.Since(started)) }()

	logger := s.logger.WithField("customer_email", in.CustomerEmail)

	step := time.Now()
	addr, lines, err := validateRequest(in)
	if err == nil {
		err = s.checkAvailability(ctx, in.Items, lines)
	}
	s.metrics.RecordStepDuration(metrics.StepValidate, time.Since(step))
	if err != nil {
		return OrderSummary{}, s.reject(logger, err)
	}

	step = time.Now()
	reserved, err := s.reserveAll(ctx, lines)
	s.metrics.RecordStepDuration(metrics.StepReserve, time.Since(step))
	if err != nil {
		return OrderSummary{}, s.reject(logger, err)
	}

	order, err := s.buildOrder(in.CustomerEmail, addr, in.Items, reserved)
	if err != nil {
		s.restoreStock(ctx, lines)
		return OrderSummary{}, s.reject(logger, err)
	}
	logger = logger.WithField("order_id", order.ID)

	step = time.Now()
	if err := s.orders.Create(ctx, *order); err != nil {
		s.restoreStock(ctx, lines)
		return OrderSummary{}, s.reject(logger, fmt.Errorf("persist order %s: %w", order.ID, err))
	}
	s.metrics.RecordStepDuration(metrics.StepPersist, time.Since(step))
	s.recordTimeline(ctx, order.ID, domain.TimelineOrderCreated, "")
	s.recordTimeline(ctx, order.ID, domain.TimelineOrderConfirmed, "")

	step = time.Now()
	ref, err := s.payments.Authorize(ctx, order.Total(), order.CustomerEmail, "MyShop order "+order.ID)
	s.metrics.RecordStepDuration(metrics.StepPayment, time.Since(step))
	if err != nil {
		s.metrics.RecordPaymentFailure()
		s.compensatePayment(ctx, order.ID, lines, err)
		return OrderSummary{}, s.reject(logger, fmt.Errorf("%w: authorize order %s: %w", ErrPaymentFailed, order.ID, err))
	}

	// Ссылка на платёж сохраняется и при отменённом запросе: без неё CancelOrder не сделает возврат.
	persistCtx := context.WithoutCancel(ctx)
	saved, err := s.updateOrder(persistCtx, order.ID, func(o *domain.Order) error {
		o.PaymentReference = ref
		return nil
	})
	if err != nil {
		logger.WithError(err).WithField("transaction", ref).Error("payment authorized but reference not stored")
		s.voidPayment(persistCtx, order, ref)
		s.compensatePayment(persistCtx, order.ID, lines, err)
		return OrderSummary{}, fmt.Errorf("store payment reference for order %s: %w", order.ID, err)
	}
	s.recordTimeline(persistCtx, saved.ID, domain.TimelinePaymentAuthorized, ref)
	s.metrics.RecordOrderCreated()
	s.publishEvent(ctx, saved, domain.OrderEventConfirmed)

	logger.WithFields(log.Fields{
		"items":       len(saved.Items),
		"total":       saved.Total().String(),
		"transaction": ref,
	}).Info("order confirmed")

	summary := NewOrderSummary(saved)

	step = time.Now()
	err = s.notifier.Send(ctx, saved.CustomerEmail,
		fmt.Sprintf("Order %s confirmed", saved.ID),
		fmt.Sprintf("Thank you for shopping with MyShop!\nOrder: %s\nTotal: %s\nTransaction: %s", saved.ID, saved.Total(), ref),
	)
	s.metrics.RecordStepDuration(metrics.StepNotify, time.Since(step))
	if err != nil {
		logger.WithError(err).Warn("order confirmation email failed")
		return summary, fmt.Errorf("send confirmation for order %s: %w", saved.ID, err)
	}

	return summary, nil
}

// CancelOrder отменяет заказ, возвращает товары на склад, делает возврат оплаты
// (если она была) и уведомляет клиента.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (OrderSummary, error) {
	if strings.TrimSpace(orderID) == "" {
		return OrderSummary{}, domain.ErrOrderIDRequired
	}
	logger := s.logger.WithField("order_id", orderID)

	// Переход статуса сохраняется первым: повторная отмена получит ErrOrderAlreadyCancelled
	// и не вернёт товар на склад второй раз.
	order, err := s.updateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.Cancel()
	})
	if err != nil {
		logger.WithError(err).Warn("cancel order rejected")
		return OrderSummary{}, err
	}
	s.metrics.RecordOrderCancelled()
	s.recordTimeline(ctx, order.ID, domain.TimelineOrderCancelled, "cancelled by request")

	summary := NewOrderSummary(order)

	if err := s.restoreStock(ctx, linesFromItems(order.Items)); err != nil {
		return summary, fmt.Errorf("restore stock for order %s: %w", order.ID, err)
	}

	refund := "no payment to refund"
	if order.PaymentReference != "" {
		if err := s.payments.Refund(ctx, order.PaymentReference, order.Total()); err != nil {
			logger.WithError(err).WithField("transaction", order.PaymentReference).Error("refund failed")
			return summary, fmt.Errorf("%w: refund order %s: %w", ErrPaymentFailed, order.ID, err)
		}
		s.metrics.RecordRefund()
		s.recordTimeline(ctx, order.ID, domain.TimelinePaymentRefunded, order.PaymentReference)
		refund = fmt.Sprintf("%s refunded (transaction %s)", order.Total(), order.PaymentReference)
	}

	s.publishEvent(ctx, order, domain.OrderEventCancelled)
	logger.WithField("refund", refund).Info("order cancelled")

	err = s.notifier.Send(ctx, order.CustomerEmail,
		fmt.Sprintf("Order %s cancelled", order.ID),
		fmt.Sprintf("Your order %s has been cancelled.\nRefund: %s", order.ID, refund),
	)
	if err != nil {
		logger.WithError(err).Warn("order cancellation email failed")
		return summary, fmt.Errorf("send cancellation for order %s: %w", order.ID, err)
	}

	return summary, nil
}

// ShipOrder переводит подтверждённый заказ в shipped.
func (s *OrderService) ShipOrder(ctx context.Context, orderID string) (OrderSummary, error) {
	if strings.TrimSpace(orderID) == "" {
		return OrderSummary{}, domain.ErrOrderIDRequired
	}

	order, err := s.updateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.MarkShipped()
	})
	if err != nil {
		return OrderSummary{}, err
	}

	s.metrics.RecordOrderShipped()
	s.recordTimeline(ctx, order.ID, domain.TimelineOrderShipped, "")
	s.publishEvent(ctx, order, domain.OrderEventShipped)
	s.logger.WithField("order_id", order.ID).Info("order shipped")

	return NewOrderSummary(order), nil
}

// GetOrder возвращает заказ или ErrOrderNotFound.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (OrderSummary, error) {
	if strings.TrimSpace(orderID) == "" {
		return OrderSummary{}, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderSummary{}, err
	}
	return NewOrderSummary(order), nil
}

// ListOrders возвращает последние заказы; при непустом customerEmail — только заказы клиента.
func (s *OrderService) ListOrders(ctx context.Context, customerEmail string, limit int) ([]OrderSummary, error) {
	var (
		orders []domain.Order
		err    error
	)
	if email := strings.TrimSpace(customerEmail); email != "" {
		orders, err = s.orders.ListByCustomer(ctx, email, limit)
	} else {
		orders, err = s.orders.List(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	result := make([]OrderSummary, 0, len(orders))
	for _, order := range orders {
		result = append(result, NewOrderSummary(order))
	}
	return result, nil
}

// Timeline возвращает историю заказа в хронологическом порядке.
func (s *OrderService) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(ctx, orderID)
}

// validateRequest проверяет запрос и суммирует количество по товарам в порядке первого упоминания.
func validateRequest(in CreateOrderInput) (domain.Address, []reservation, error) {
	if len(in.Items) == 0 {
		return domain.Address{}, nil, domain.ErrItemsRequired
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return domain.Address{}, nil, domain.ErrCustomerEmailRequired
	}
	a := in.ShippingAddress
	addr, err := domain.NewAddress(a.Street, a.City, a.State, a.ZipCode, a.Country)
	if err != nil {
		return domain.Address{}, nil, err
	}

	index := make(map[string]int, len(in.Items))
	lines := make([]reservation, 0, len(in.Items))
	for _, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Address{}, nil, domain.ErrProductIDRequired
		}
		if item.Quantity <= 0 {
			return domain.Address{}, nil, domain.ErrQuantityInvalid
		}
		if i, ok := index[item.ProductID]; ok {
			lines[i].quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, reservation{productID: item.ProductID, quantity: item.Quantity})
	}
	return addr, lines, nil
}

// checkAvailability проверяет каждую позицию в порядке запроса до любых изменений склада.
func (s *OrderService) checkAvailability(ctx context.Context, items []OrderItemInput, lines []reservation) error {
	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		requested[line.productID] = line.quantity
	}

	loaded := make(map[string]domain.Product, len(lines))
	currency := ""
	for _, item := range items {
		product, ok := loaded[item.ProductID]
		if !ok {
			p, err := s.products.Get(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
				}
				return fmt.Errorf("load product %s: %w", item.ProductID, err)
			}
			product = p
			loaded[item.ProductID] = p
		}

		if !product.IsActive {
			return fmt.Errorf("%w: %s", domain.ErrProductInactive, product.Name)
		}
		if qty := requested[product.ID]; !product.HasStock(qty) {
			return &domain.InsufficientStockError{
				ProductName: product.Name,
				Requested:   qty,
				Available:   product.StockQuantity,
			}
		}
		if currency == "" {
			currency = product.Price.Currency
		} else if product.Price.Currency != currency {
			return domain.ErrCurrencyMismatch
		}
	}
	return nil
}

// reserveAll резервирует все позиции; при ошибке уже сделанные резервы возвращаются на склад.
func (s *OrderService) reserveAll(ctx context.Context, lines []reservation) (map[string]domain.Product, error) {
	reserved := make(map[string]domain.Product, len(lines))
	for i, line := range lines {
		product, err := s.stock.update(ctx, line.productID, func(p *domain.Product) error {
			if !p.IsActive {
				return fmt.Errorf("%w: %s", domain.ErrProductInactive, p.Name)
			}
			return p.Reserve(line.quantity)
		})
		if err != nil {
			s.restoreStock(ctx, lines[:i])
			return nil, err
		}
		reserved[line.productID] = product
	}
	return reserved, nil
}

// buildOrder собирает подтверждённый заказ со снимками товаров, доставкой и скидкой.
func (s *OrderService) buildOrder(email string, addr domain.Address, items []OrderItemInput, products map[string]domain.Product) (*domain.Order, error) {
	first := products[items[0].ProductID]
	order, err := domain.NewOrder(s.nextID(), email, addr, first.Price.Currency, s.now())
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		line, err := domain.NewOrderLineItem(s.nextID(), products[item.ProductID], item.Quantity)
		if err != nil {
			return nil, err
		}
		if err := order.AddItem(line); err != nil {
			return nil, err
		}
	}

	if err := order.SetShippingCost(s.pricing.ShippingCost(order.Subtotal)); err != nil {
		return nil, err
	}
	discount, err := s.pricing.Discount(order.Subtotal)
	if err != nil {
		return nil, err
	}
	if err := order.ApplyDiscount(discount); err != nil {
		return nil, err
	}
	if err := order.Confirm(); err != nil {
		return nil, err
	}
	return order, nil
}

// compensatePayment отменяет заказ после неудачной оплаты и возвращает товары на склад.
// voidPayment возвращает авторизованную сумму, которую не удалось привязать к заказу.
func (s *OrderService) voidPayment(ctx context.Context, order *domain.Order, ref string) {
	entry := s.logger.WithFields(log.Fields{"order_id": order.ID, "transaction": ref})
	if err := s.payments.Refund(ctx, ref, order.Total()); err != nil {
		entry.WithError(err).Error("void unreferenced payment failed")
		return
	}
	s.metrics.RecordRefund()
	s.recordTimeline(ctx, order.ID, domain.TimelinePaymentRefunded, ref)
	entry.Warn("unreferenced payment voided")
}

func (s *OrderService) compensatePayment(ctx context.Context, orderID string, lines []reservation, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.WithField("order_id", orderID)

	s.recordTimeline(ctx, orderID, domain.TimelinePaymentFailed, cause.Error())
	order, err := s.updateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.Cancel()
	})
	if err != nil {
		logger.WithError(err).Error("cancel order after payment failure failed")
		return
	}
	if err := s.restoreStock(ctx, lines); err != nil {
		return
	}
	s.recordTimeline(ctx, orderID, domain.TimelineOrderCancelled, "payment failed")
	s.publishEvent(ctx, order, domain.OrderEventCancelled)
	logger.WithError(cause).Warn("order cancelled after payment failure")
}

// restoreStock возвращает количество на склад. Выполняется и при отменённом контексте запроса,
// чтобы не оставить частично возвращённый резерв.
func (s *OrderService) restoreStock(ctx context.Context, lines []reservation) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, line := range lines {
		_, err := s.stock.update(ctx, line.productID, func(p *domain.Product) error {
			return p.Restore(line.quantity)
		})
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"product_id": line.productID,
				"quantity":   line.quantity,
			}).Error("restore stock failed")
			errs = append(errs, fmt.Errorf("product %s: %w", line.productID, err))
		}
	}
	return errors.Join(errs...)
}

func linesFromItems(items []domain.OrderLineItem) []reservation {
	index := make(map[string]int, len(items))
	lines := make([]reservation, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			lines[i].quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, reservation{productID: item.ProductID, quantity: item.Quantity})
	}
	return lines
}

// updateOrder перечитывает заказ, применяет изменение и сохраняет с проверкой версии.
func (s *OrderService) updateOrder(ctx context.Context, orderID string, mutate func(o *domain.Order) error) (domain.Order, error) {
	var updated domain.Order
	err := retryOnConflict(ctx, s.logger, s.metrics, "order", orderID, func() error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := mutate(&order); err != nil {
			return err
		}
		order.UpdatedAt = s.now()
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		order.Version++
		updated = order
		return nil
	})
	return updated, err
}

func (s *OrderService) recordTimeline(ctx context.Context, orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	s.metrics.RecordTimelineEvent()
}

// publishEvent отправляет событие во внешнюю шину. Ошибка публикации не прерывает операцию.
func (s *OrderService) publishEvent(ctx context.Context, order domain.Order, eventType domain.OrderEventType) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Status:        order.Status,
		Total:         order.Total(),
		OccurredAt:    s.now(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.metrics.RecordEventPublished(false)
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("publish order event failed")
		return
	}
	s.metrics.RecordEventPublished(true)
}

func (s *OrderService) reject(logger *log.Entry, err error) error {
	reason := rejectReason(err)
	s.metrics.RecordOrderRejected(reason)
	logger.WithError(err).WithField("reason", reason).Warn("order rejected")
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrPaymentFailed):
		return metrics.RejectPayment
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.RejectInsufficientStock
	case errors.Is(err, domain.ErrNotFound):
		return metrics.RejectNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return metrics.RejectVersionConflict
	case errors.Is(err, domain.ErrValidation):
		return metrics.RejectValidation
	default:
		return metrics.RejectInternal
	}
}
