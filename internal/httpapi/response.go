package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pavelzar/paylink/internal/auth"
	"github.com/pavelzar/paylink/internal/domain"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// transactionResponse is the JSON shape of a TransactionRecord.
type transactionResponse struct {
	IdempotencyKey       string `json:"idempotencyKey"`
	FromAccount          string `json:"fromAccount"`
	ToAccount            string `json:"toAccount"`
	Amount               int64  `json:"amount"`
	Status               string `json:"status"`
	FailureReason        string `json:"failureReason,omitempty"`
	ResultingFromBalance int64  `json:"resultingFromBalance"`
	ResultingToBalance   int64  `json:"resultingToBalance"`
	Timestamp            string `json:"timestamp"`
}

func newTransactionResponse(record *domain.TransactionRecord) transactionResponse {
	return transactionResponse{
		IdempotencyKey:       record.IdempotencyKey,
		FromAccount:          record.FromAccount.String(),
		ToAccount:            record.ToAccount.String(),
		Amount:               record.Amount,
		Status:               string(record.Status),
		FailureReason:        record.FailureReason,
		ResultingFromBalance: record.ResultingFromBalance,
		ResultingToBalance:   record.ResultingToBalance,
		Timestamp:            record.Timestamp.UTC().Format(time.RFC3339),
	}
}

func sendError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorResponse{Code: code, Message: message})
}

// sendDomainError maps typed ledger and auth results to HTTP status codes.
func sendDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	case errors.Is(err, domain.ErrAccountNotFound):
		return sendError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, domain.ErrAccountExists):
		return sendError(c, http.StatusConflict, "ACCOUNT_EXISTS", "username already exists")
	case errors.Is(err, domain.ErrSelfTransfer):
		return sendError(c, http.StatusBadRequest, "SELF_TRANSFER", "sender and recipient must differ")
	case errors.Is(err, domain.ErrInvalidAmount):
		return sendError(c, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be positive")
	case errors.Is(err, domain.ErrInvalidUsername):
		return sendError(c, http.StatusBadRequest, "INVALID_USERNAME", "username is required")
	case errors.Is(err, domain.ErrMissingIdempotencyKey):
		return sendError(c, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required")
	case errors.Is(err, domain.ErrInsufficientFunds):
		return sendError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "insufficient funds")
	case errors.Is(err, domain.ErrStorageUnavailable):
		c.Set(fiber.HeaderRetryAfter, "1")
		return sendError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "ledger storage unavailable, retry with the same idempotency key")
	default:
		return sendError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// failureMessage returns the response text for a recorded failure reason.
func failureMessage(reason string) string {
	switch reason {
	case domain.ReasonInsufficientFunds:
		return "insufficient funds"
	default:
		return "transfer failed"
	}
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// principal returns the account id stored by the auth middleware.
func principal(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(principalKey).(uuid.UUID)
	return id, ok
}
