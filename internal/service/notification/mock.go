package notification

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// Message хранит письмо, перехваченное MockNotifier.
type Message struct {
	To      string
	Subject string
	Body    string
}

// MockNotifier запоминает отправленные письма; Err позволяет смоделировать сбой.
type MockNotifier struct {
	mu   sync.Mutex
	sent []Message

	Err error
}

// NewMockNotifier возвращает mock с успешным сценарием по умолчанию.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Send сохраняет письмо, если не настроена ошибка.
func (m *MockNotifier) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Sent возвращает копию отправленных писем.
func (m *MockNotifier) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ domain.Notifier = (*MockNotifier)(nil)
