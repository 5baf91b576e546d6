package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pavelzar/paylink/internal/domain"
)

type signupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type transferRequest struct {
	To             string `json:"to"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// handleSignup creates an account with a zero balance, registers the
// password, and returns a bearer token.
func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to parse request body")
	}
	if len(req.Username) < 3 {
		return sendError(c, http.StatusBadRequest, "INVALID_USERNAME", "username must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		return sendError(c, http.StatusBadRequest, "INVALID_PASSWORD", "password must be at least 6 characters")
	}

	displayName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	account, err := s.engine.CreateAccount(c.Context(), req.Username, displayName)
	if err != nil {
		return sendDomainError(c, err)
	}

	// Credentials are written after the account row. If either write fails the
	// account exists without a password and the username stays taken; the
	// account has a zero balance and no credentials, so nothing can act on it.
	if err := s.gate.Register(c.Context(), account.ID, req.Password); err != nil {
		s.logger.Error("signup left account without credentials",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return sendDomainError(c, err)
	}
	token, err := s.gate.IssueToken(c.Context(), account.ID)
	if err != nil {
		s.logger.Error("signup left account without a token",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return sendDomainError(c, err)
	}

	s.logger.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("username", account.Username),
	)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"accountId": account.ID.String(),
		"token":     token,
	})
}

// handleSignin verifies the password and issues a fresh bearer token.
func (s *Server) handleSignin(c *fiber.Ctx) error {
	var req signinRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to parse request body")
	}

	account, err := s.engine.GetAccountByUsername(c.Context(), req.Username)
	if err != nil {
		// Do not reveal whether the username exists.
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	}
	if err := s.gate.Authenticate(c.Context(), account.ID, req.Password); err != nil {
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	}

	token, err := s.gate.IssueToken(c.Context(), account.ID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return c.JSON(fiber.Map{
		"accountId": account.ID.String(),
		"token":     token,
	})
}

// handleListUsers serves the recipient picker: id and display name for
// accounts matching the optional filter.
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	accounts, err := s.engine.ListAccounts(c.Context(), c.Query("filter"))
	if err != nil {
		return sendDomainError(c, err)
	}

	users := make([]fiber.Map, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, fiber.Map{
			"id":          account.ID.String(),
			"username":    account.Username,
			"displayName": account.DisplayName,
		})
	}
	return c.JSON(fiber.Map{"users": users})
}

// handleBalance returns the caller's committed balance.
func (s *Server) handleBalance(c *fiber.Ctx) error {
	accountID, ok := principal(c)
	if !ok {
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
	}
	balance, err := s.engine.GetBalance(c.Context(), accountID)
	if err != nil {
		return sendDomainError(c, err)
	}
	return c.JSON(fiber.Map{"balance": balance})
}

// handleTransfer submits a transfer from the authenticated principal. The
// idempotency key comes from the Idempotency-Key header, with the body field
// as a fallback.
func (s *Server) handleTransfer(c *fiber.Ctx) error {
	accountID, ok := principal(c)
	if !ok {
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to parse request body")
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		return sendError(c, http.StatusBadRequest, "INVALID_RECIPIENT", "recipient must be an account id")
	}
	key := c.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	record, err := s.engine.Transfer(c.Context(), domain.TransferIntent{
		FromAccount:    accountID,
		ToAccount:      to,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		if record != nil && record.Status == domain.RecordStatusFailed {
			// Recorded business failure: include the stored outcome so
			// retries see the identical response.
			return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
				"code":        record.FailureReason,
				"message":     failureMessage(record.FailureReason),
				"transaction": newTransactionResponse(record),
			})
		}
		return sendDomainError(c, err)
	}
	return c.JSON(fiber.Map{"transaction": newTransactionResponse(record)})
}

// handleHistory returns the caller's transfer records, newest first.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	accountID, ok := principal(c)
	if !ok {
		return sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return sendError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
		}
		limit = n
	}

	records, err := s.engine.History(c.Context(), accountID, limit)
	if err != nil {
		return sendDomainError(c, err)
	}

	out := make([]transactionResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newTransactionResponse(record))
	}
	return c.JSON(fiber.Map{"transactions": out})
}
