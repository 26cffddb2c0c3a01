package notification

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// ErrRecipientRequired — не указан адрес получателя.
var ErrRecipientRequired = errors.New("notification recipient is required")

// LogNotifier «отправляет» email, записывая его в лог. Используется, когда Kafka не настроена.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier поверх logrus.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "email")
	}
	return &LogNotifier{logger: logger}
}

// Send пишет письмо в лог.
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return ErrRecipientRequired
	}

	n.logger.WithFields(log.Fields{
		"to":      to,
		"subject": subject,
		"body":    body,
	}).Info("email sent")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
