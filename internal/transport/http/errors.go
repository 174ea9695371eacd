package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    int            `json:"status"`
	Kind      ledgererr.Kind `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
}

func statusFor(kind ledgererr.Kind) int {
	switch kind {
	case ledgererr.KindValidation, ledgererr.KindCurrencyMismatch:
		return http.StatusBadRequest
	case ledgererr.KindAccountNotFound:
		return http.StatusNotFound
	case ledgererr.KindAccountFrozen, ledgererr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case ledgererr.KindIdempotencyConflict, ledgererr.KindLockContention, ledgererr.KindOptimisticConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	kind := ledgererr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	if kind.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Kind:      kind,
		Message:   ledgererr.PublicMessage(err),
		Retryable: kind.Retryable(),
	})
}
