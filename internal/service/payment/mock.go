package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// MockGateway: конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	mu sync.Mutex

	AuthorizeRef string
	AuthorizeErr error
	RefundErr    error

	AuthorizeCalls int
	RefundCalls    int

	// LastAmount и LastRefundRef фиксируют аргументы последних вызовов.
	LastAmount    domain.Money
	LastPayer     string
	LastRefundRef string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Authorize возвращает заранее настроенный результат и считает вызовы.
// Без настроенной ссылки выдаёт TX-<номер вызова>.
func (m *MockGateway) Authorize(_ context.Context, amount domain.Money, payer, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AuthorizeCalls++
	m.LastAmount = amount
	m.LastPayer = payer
	if m.AuthorizeErr != nil {
		return "", m.AuthorizeErr
	}
	if m.AuthorizeRef != "" {
		return m.AuthorizeRef, nil
	}
	return fmt.Sprintf("%s%d", transactionPrefix, m.AuthorizeCalls), nil
}

// Refund возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Refund(_ context.Context, transactionRef string, amount domain.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	m.LastRefundRef = transactionRef
	return m.RefundErr
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
