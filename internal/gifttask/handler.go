package gifttask

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/api"
	"giftrelay/internal/auth"
	"giftrelay/internal/logger"
	"giftrelay/internal/signature"
)

// WorkerHandler serves the signed task-queue API used by delivery agents.
type WorkerHandler struct {
	store Store
}

func NewWorkerHandler(store Store) *WorkerHandler {
	return &WorkerHandler{store: store}
}

// ListPending godoc
// @Summary      List pending gift tasks
// @Tags         agent
// @Produce      json
// @Param        limit query int false "Maximum tasks to return (max 100)"
// @Success      200 {object} gifttask.ListPendingResponse
// @Failure      401 {object} api.SecurityErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/gift-tasks [get]
func (h *WorkerHandler) ListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	tasks, err := h.store.ListPending(c.Request.Context(), limit)
	if err != nil {
		logger.Error("failed to list pending tasks", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, ListPendingResponse{Tasks: tasks})
}

// ClaimNext godoc
// @Summary      Claim the oldest pending gift task
// @Tags         agent
// @Produce      json
// @Success      200 {object} gifttask.Assignment
// @Success      204 "queue is empty"
// @Failure      401 {object} api.SecurityErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/gift-tasks/claim [post]
func (h *WorkerHandler) ClaimNext(c *gin.Context) {
	agentID, _ := signature.AgentID(c)

	task, err := h.store.ClaimNext(c.Request.Context(), agentID)
	if errors.Is(err, ErrNoPendingTask) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.Assignment())
}

// Claim godoc
// @Summary      Claim a specific gift task
// @Tags         agent
// @Produce      json
// @Param        id path int true "Task ID"
// @Success      200 {object} gifttask.Assignment
// @Failure      401 {object} api.SecurityErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /api/gift-tasks/{id}/claim [post]
func (h *WorkerHandler) Claim(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	agentID, _ := signature.AgentID(c)

	task, err := h.store.Claim(c.Request.Context(), id, agentID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.Assignment())
}

// Complete godoc
// @Summary      Report delivery of a claimed task
// @Description  Delivering fewer units than requested refunds the difference. Reporting on a settled task returns the stored outcome.
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        id      path int                      true "Task ID"
// @Param        request body gifttask.CompleteRequest true "Delivered quantity"
// @Success      200 {object} gifttask.OutcomeResponse
// @Failure      400 {object} api.ValidationErrorResponse
// @Failure      401 {object} api.SecurityErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /api/gift-tasks/{id}/complete [post]
func (h *WorkerHandler) Complete(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req CompleteRequest
	if !api.BindStrict(c, &req) {
		return
	}

	out, err := h.store.Complete(c.Request.Context(), id, *req.DeliveredQuantity)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcomeResponse(out))
}

// Fail godoc
// @Summary      Report that a claimed task could not be delivered
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        id      path int                  true "Task ID"
// @Param        request body gifttask.FailRequest true "Failure reason"
// @Success      200 {object} gifttask.OutcomeResponse
// @Failure      400 {object} api.ValidationErrorResponse
// @Failure      401 {object} api.SecurityErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /api/gift-tasks/{id}/fail [post]
func (h *WorkerHandler) Fail(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req FailRequest
	if !api.BindStrict(c, &req) {
		return
	}

	out, err := h.store.Fail(c.Request.Context(), id, req.Error)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcomeResponse(out))
}

// Handler serves task status to the account that paid for the tasks.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ListMine godoc
// @Summary      List the current account's gift tasks
// @Tags         gifts
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query int false "Page size (max 100)"
// @Param        offset query int false "Offset"
// @Success      200 {object} gifttask.ListTasksResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /api/gifts/tasks [get]
func (h *Handler) ListMine(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tasks, err := h.store.ListByAccount(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		logger.Error("failed to list account tasks", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list tasks"})
		return
	}

	views := make([]StatusView, 0, len(tasks))
	for i := range tasks {
		views = append(views, tasks[i].View())
	}
	c.JSON(http.StatusOK, ListTasksResponse{Tasks: views, Limit: limit, Offset: offset})
}

// GetMine godoc
// @Summary      Status of one of the current account's gift tasks
// @Tags         gifts
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Task ID"
// @Success      200 {object} gifttask.StatusView
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /api/gifts/tasks/{id} [get]
func (h *Handler) GetMine(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.store.Get(c.Request.Context(), id)
	if err == nil && task.AccountID != accountID {
		err = ErrTaskNotFound
	}
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, task.View())
}

func outcomeResponse(out *Outcome) OutcomeResponse {
	return OutcomeResponse{
		Task:         out.Task.View(),
		RefundAmount: out.Refunded,
		Replayed:     out.Replayed,
	}
}

func parseTaskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid task id"})
		return 0, false
	}
	return id, true
}

func respondTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	default:
		logger.Error("gift task operation failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}
