package exchange

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/api"
	"giftrelay/internal/auth"
	"giftrelay/internal/ledger"
	"giftrelay/internal/logger"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Exchange godoc
// @Summary      Spend coins on a gift delivery
// @Description  Debits unit cost times quantity and queues a delivery task. The idempotency key may be sent in the body or the Idempotency-Key header; repeating it returns the original task.
// @Tags         gifts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string                   false "Idempotency key"
// @Param        request         body   exchange.ExchangeRequest true  "Exchange payload"
// @Success      201 {object} exchange.ExchangeResponse
// @Success      200 {object} exchange.ExchangeResponse
// @Failure      400 {object} api.ValidationErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      402 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/gifts/exchange [post]
func (h *Handler) Exchange(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req ExchangeRequest
	if !api.BindStrict(c, &req) {
		return
	}

	key := req.IdempotencyKey
	if header := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); header != "" {
		if key != "" && key != header {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "idempotency key in header and body differ"})
			return
		}
		key = header
	}
	if key == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: ledger.ErrMissingIdempotencyKey.Error()})
		return
	}
	if errs := api.ValidateVar("IdempotencyKey", key, idempotencyKeyRule); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	receipt, err := h.service.Exchange(c.Request.Context(), Request{
		AccountID:      accountID,
		GiftID:         req.GiftID,
		RoomID:         req.RoomID,
		Quantity:       req.Quantity,
		TotalCost:      req.TotalCost,
		IdempotencyKey: key,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ledger.ErrIdempotencyMismatch):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrUnknownGift), errors.Is(err, ErrInvalidQuantity),
			errors.Is(err, ErrPriceMismatch), errors.Is(err, ErrMissingRoom),
			errors.Is(err, ledger.ErrMissingIdempotencyKey):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			logger.Error("exchange failed", "account_id", accountID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to exchange gift"})
		}
		return
	}

	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	t := receipt.Task
	c.JSON(status, ExchangeResponse{
		TaskID:       t.ID,
		Status:       t.Status,
		GiftID:       t.GiftID,
		RoomID:       t.RoomID,
		Quantity:     t.QuantityRequested,
		UnitCost:     t.UnitCost,
		TotalCost:    receipt.TotalCost,
		BalanceAfter: receipt.BalanceAfter,
		Replayed:     receipt.Replayed,
	})
}

// Catalog godoc
// @Summary      List gifts and prices
// @Tags         gifts
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} exchange.CatalogResponse
// @Router       /api/gifts/catalog [get]
func (h *Handler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, CatalogResponse{
		Gifts:       h.service.Catalog().All(),
		MaxQuantity: h.service.MaxQuantity(),
	})
}
