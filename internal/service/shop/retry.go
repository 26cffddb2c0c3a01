package shop

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/metrics"
)

const (
	maxConflictAttempts = 3
	conflictBaseDelay   = 10 * time.Millisecond
)

// retryOnConflict повторяет read-modify-write при конфликте версий с экспоненциальной задержкой.
// Остальные ошибки возвращаются сразу.
func retryOnConflict(ctx context.Context, logger *log.Entry, m *metrics.ShopMetrics, entity, id string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictAttempts; attempt++ {
		if err = fn(); err == nil || !domain.IsVersionConflict(err) {
			return err
		}
		m.RecordVersionConflict(entity)
		if attempt == maxConflictAttempts-1 {
			break
		}

		delay := conflictBaseDelay * time.Duration(1<<uint(attempt))
		logger.WithFields(log.Fields{
			"entity":  entity,
			"id":      id,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("version conflict detected, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logger.WithFields(log.Fields{
		"entity":       entity,
		"id":           id,
		"max_attempts": maxConflictAttempts,
	}).Error("version conflict persisted after all attempts")
	return err
}

// productUpdater перечитывает товар, применяет изменение и сохраняет его с проверкой версии.
type productUpdater struct {
	products domain.ProductRepository
	logger   *log.Entry
	metrics  *metrics.ShopMetrics
	now      func() time.Time
}

func (u productUpdater) update(ctx context.Context, id string, mutate func(p *domain.Product) error) (domain.Product, error) {
	var updated domain.Product
	err := retryOnConflict(ctx, u.logger, u.metrics, "product", id, func() error {
		product, err := u.products.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&product); err != nil {
			return err
		}
		product.UpdatedAt = u.now()
		if err := u.products.Update(ctx, product); err != nil {
			return err
		}
		product.Version++
		updated = product
		return nil
	})
	return updated, err
}
