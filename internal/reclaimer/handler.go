package reclaimer

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/api"
	"giftrelay/internal/logger"
)

type Handler struct {
	reclaimer *Reclaimer
}

func NewHandler(r *Reclaimer) *Handler {
	return &Handler{reclaimer: r}
}

// Sweep godoc
// @Summary      Run a reclaim sweep now
// @Description  Requeues stale claims, fails tasks past their attempt limit and expires old pending tasks.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} gifttask.ReclaimReport
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/gift-tasks/reclaim [post]
func (h *Handler) Sweep(c *gin.Context) {
	report, err := h.reclaimer.SweepOnce(c.Request.Context())
	if err != nil {
		logger.Error("manual reclaim sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "reclaim sweep failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
