package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/service/shop"
)

const internalErrorMessage = "internal server error"

// statusFor переводит ошибку сервиса в HTTP статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shop.ErrPaymentFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает {"error": "..."}; детали внутренних ошибок остаются в логе.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	status := statusFor(err)
	message := err.Error()

	entry := logger.WithError(err).WithFields(log.Fields{
		"method": c.Request.Method,
		"route":  c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		if status == http.StatusInternalServerError {
			message = internalErrorMessage
		}
	} else {
		entry.Debug("request rejected")
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// writeBindError отвечает 400 на некорректное тело или параметры запроса.
func writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
}

func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		switch fe.Tag() {
		case "required", "notblank":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		case "email":
			parts = append(parts, fmt.Sprintf("%s must be a valid email", field))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must contain at least %s element(s)", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed on %s", field, fe.Tag()))
		}
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// fieldPath отбрасывает имя корневой структуры: createOrderRequest.Items[0].Quantity → Items[0].Quantity.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
