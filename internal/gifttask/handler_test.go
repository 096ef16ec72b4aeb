package gifttask_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"giftrelay/internal/auth"
	"giftrelay/internal/gifttask"
	"giftrelay/internal/gifttask/gifttaskmock"
	"giftrelay/internal/signature"
)

func newWorkerRouter(store gifttask.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := gifttask.NewWorkerHandler(store)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		signature.SetAgentID(c, "agent-1")
		c.Next()
	})
	r.GET("/api/gift-tasks", h.ListPending)
	r.POST("/api/gift-tasks/claim", h.ClaimNext)
	r.POST("/api/gift-tasks/:id/claim", h.Claim)
	r.POST("/api/gift-tasks/:id/complete", h.Complete)
	r.POST("/api/gift-tasks/:id/fail", h.Fail)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func partialTask() *gifttask.Task {
	return &gifttask.Task{
		ID: 7, AccountID: 1, GiftID: "rose", GiftName: "Rose", RoomID: "room-9",
		QuantityRequested: 10, QuantityDelivered: 6, UnitCost: 15, RefundAmount: 60,
		Status: gifttask.StatusPartialSuccess,
	}
}

func TestWorker_ListPending(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("ListPending", mock.Anything, 5).Return([]gifttask.Summary{{ID: 7, GiftID: "rose", Quantity: 10}}, nil)

	w := serve(newWorkerRouter(store), http.MethodGet, "/api/gift-tasks?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantity":10`)
	assert.NotContains(t, w.Body.String(), "account_id")
}

func TestWorker_ClaimNext(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("ClaimNext", mock.Anything, "agent-1").
		Return(&gifttask.Task{ID: 7, RoomID: "room-9", QuantityRequested: 10, Status: gifttask.StatusClaimed}, nil).Once()
	store.On("ClaimNext", mock.Anything, "agent-1").Return(nil, gifttask.ErrNoPendingTask).Once()

	r := newWorkerRouter(store)

	w := serve(r, http.MethodPost, "/api/gift-tasks/claim", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"room_id":"room-9"`)

	w = serve(r, http.MethodPost, "/api/gift-tasks/claim", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWorker_Claim(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"claimed", "/api/gift-tasks/7/claim", nil, http.StatusOK},
		{"lost race", "/api/gift-tasks/7/claim", gifttask.ErrAlreadyClaimed, http.StatusConflict},
		{"missing", "/api/gift-tasks/7/claim", gifttask.ErrTaskNotFound, http.StatusNotFound},
		{"bad id", "/api/gift-tasks/x/claim", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(gifttaskmock.Store)
			if tt.err != nil {
				store.On("Claim", mock.Anything, int64(7), "agent-1").Return(nil, tt.err)
			} else {
				store.On("Claim", mock.Anything, int64(7), "agent-1").
					Return(&gifttask.Task{ID: 7, Status: gifttask.StatusClaimed}, nil)
			}

			w := serve(newWorkerRouter(store), http.MethodPost, tt.path, "")
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestWorker_Complete(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("Complete", mock.Anything, int64(7), 6).
		Return(&gifttask.Outcome{Task: partialTask(), Refunded: 60}, nil)

	w := serve(newWorkerRouter(store), http.MethodPost, "/api/gift-tasks/7/complete", `{"delivered_quantity":6}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refund_amount":60`)
	assert.Contains(t, w.Body.String(), `"status":"partial_success"`)
	assert.Contains(t, w.Body.String(), `"replayed":false`)
}

func TestWorker_CompleteReplayIsOK(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("Complete", mock.Anything, int64(7), 6).
		Return(&gifttask.Outcome{Task: partialTask(), Refunded: 60, Replayed: true}, nil)

	w := serve(newWorkerRouter(store), http.MethodPost, "/api/gift-tasks/7/complete", `{"delivered_quantity":6}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"replayed":true`)
}

func TestWorker_CompleteRejectsBadBodies(t *testing.T) {
	store := new(gifttaskmock.Store)
	r := newWorkerRouter(store)

	for _, body := range []string{
		`{}`,
		`{"delivered_quantity":-1}`,
		`{"delivered_quantity":6,"refund_amount":999}`,
		`{"delivered_quantity":"6"}`,
	} {
		w := serve(r, http.MethodPost, "/api/gift-tasks/7/complete", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_CompleteOnPendingConflicts(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("Complete", mock.Anything, int64(7), 6).Return(nil, gifttask.ErrInvalidTransition)

	w := serve(newWorkerRouter(store), http.MethodPost, "/api/gift-tasks/7/complete", `{"delivered_quantity":6}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWorker_Fail(t *testing.T) {
	store := new(gifttaskmock.Store)
	failed := &gifttask.Task{ID: 7, QuantityRequested: 10, UnitCost: 15, RefundAmount: 150, Status: gifttask.StatusFailed}
	store.On("Fail", mock.Anything, int64(7), "room closed").Return(&gifttask.Outcome{Task: failed, Refunded: 150}, nil)

	w := serve(newWorkerRouter(store), http.MethodPost, "/api/gift-tasks/7/fail", `{"error":"room closed"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refund_amount":150`)
}

func TestWorker_InternalErrorIsGeneric(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("Fail", mock.Anything, int64(7), "x").Return(nil, errors.New("pq: relation does not exist"))

	w := serve(newWorkerRouter(store), http.MethodPost, "/api/gift-tasks/7/fail", `{"error":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

func newAccountRouter(store gifttask.Store, accountID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := gifttask.NewHandler(store)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetAccount(c, accountID, auth.RoleUser)
		c.Next()
	})
	r.GET("/api/gifts/tasks", h.ListMine)
	r.GET("/api/gifts/tasks/:id", h.GetMine)
	return r
}

func TestAccount_GetMine(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("Get", mock.Anything, int64(7)).Return(partialTask(), nil)

	w := serve(newAccountRouter(store, 1), http.MethodGet, "/api/gifts/tasks/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantity_delivered":6`)
	assert.Contains(t, w.Body.String(), `"total_cost":150`)

	// another account cannot see it
	w = serve(newAccountRouter(store, 2), http.MethodGet, "/api/gifts/tasks/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccount_ListMine(t *testing.T) {
	store := new(gifttaskmock.Store)
	store.On("ListByAccount", mock.Anything, int64(1), 20, 0).Return([]gifttask.Task{*partialTask()}, nil)

	w := serve(newAccountRouter(store, 1), http.MethodGet, "/api/gifts/tasks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"partial_success"`)
}
