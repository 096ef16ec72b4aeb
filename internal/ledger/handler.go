package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/api"
	"giftrelay/internal/auth"
	"giftrelay/internal/logger"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// GetBalance godoc
// @Summary      Current coin balance
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ledger.BalanceResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/wallet [get]
func (h *Handler) GetBalance(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	acct, err := h.repo.GetAccount(c.Request.Context(), accountID)
	if errors.Is(err, ErrAccountNotFound) {
		c.JSON(http.StatusOK, BalanceResponse{AccountID: accountID})
		return
	}
	if err != nil {
		logger.Error("failed to load account", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{AccountID: acct.ID, Balance: acct.Balance})
}

// ListTransactions godoc
// @Summary      Ledger history for the current account
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query int false "Page size (max 200)"
// @Param        offset query int false "Offset"
// @Success      200 {object} ledger.TransactionsResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.repo.GetTransactions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		logger.Error("failed to load transactions", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, TransactionsResponse{Transactions: txs, Limit: limit, Offset: offset})
}

// Grant godoc
// @Summary      Credit coins to an account
// @Description  Admin-only. Creates the account on first use. Replaying the same idempotency key returns the original entry.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int                 true "Account ID"
// @Param        request body ledger.GrantRequest true "Grant payload"
// @Success      201 {object} ledger.Result
// @Success      200 {object} ledger.Result
// @Failure      400 {object} api.ValidationErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/accounts/{id}/grant [post]
func (h *Handler) Grant(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req GrantRequest
	if !api.BindStrict(c, &req) {
		return
	}

	res, err := h.repo.Grant(c.Request.Context(), accountID, req.Amount, req.IdempotencyKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrIdempotencyMismatch):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			logger.Error("grant failed", "account_id", accountID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to grant coins"})
		}
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	} else {
		logger.Info("coins granted", "account_id", accountID, "amount", req.Amount, "balance_after", res.BalanceAfter())
	}
	c.JSON(status, res)
}

// Audit godoc
// @Summary      Compare an account balance with its ledger
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Account ID"
// @Success      200 {object} ledger.Audit
// @Failure      404 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/accounts/{id}/audit [get]
func (h *Handler) Audit(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	a, err := h.repo.Audit(c.Request.Context(), accountID)
	if errors.Is(err, ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		logger.Error("audit failed", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to audit account"})
		return
	}
	if !a.Consistent {
		logger.Warn("ledger drift detected", "account_id", accountID, "balance", a.Balance, "ledger_sum", a.LedgerSum)
	}

	c.JSON(http.StatusOK, a)
}

func parseAccountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid account id"})
		return 0, false
	}
	return id, true
}
