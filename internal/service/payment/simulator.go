package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// ErrDeclined — платёжный провайдер отклонил операцию.
var ErrDeclined = errors.New("payment declined")

// transactionPrefix добавляется к идентификатору транзакции.
const transactionPrefix = "TX-"

// Simulator реализует PaymentGateway локально и всегда авторизует платёж.
// Идентификаторы транзакций выдаёт внедрённый генератор.
type Simulator struct {
	nextID domain.IDGenerator
	logger *log.Entry
}

// NewSimulator создаёт симулятор платежей. По умолчанию идентификаторы генерируются как UUID.
func NewSimulator(nextID domain.IDGenerator, logger *log.Entry) *Simulator {
	if nextID == nil {
		nextID = uuid.NewString
	}
	if logger == nil {
		logger = log.New().WithField("component", "payment-simulator")
	}
	return &Simulator{nextID: nextID, logger: logger}
}

// Authorize возвращает ссылку на транзакцию вида TX-<id>.
func (s *Simulator) Authorize(ctx context.Context, amount domain.Money, payer, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(payer) == "" {
		return "", fmt.Errorf("%w: payer is required", ErrDeclined)
	}
	if amount.Amount.IsNegative() {
		return "", fmt.Errorf("%w: amount must be non-negative", ErrDeclined)
	}

	ref := transactionPrefix + s.nextID()
	s.logger.WithFields(log.Fields{
		"transaction": ref,
		"payer":       payer,
		"amount":      amount.String(),
		"memo":        memo,
	}).Info("payment authorized")
	return ref, nil
}

// Refund логирует возврат по ранее выданной ссылке.
func (s *Simulator) Refund(ctx context.Context, transactionRef string, amount domain.Money) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(transactionRef, transactionPrefix) {
		return fmt.Errorf("%w: unknown transaction %q", ErrDeclined, transactionRef)
	}

	s.logger.WithFields(log.Fields{
		"transaction": transactionRef,
		"amount":      amount.String(),
	}).Info("payment refunded")
	return nil
}

var _ domain.PaymentGateway = (*Simulator)(nil)
