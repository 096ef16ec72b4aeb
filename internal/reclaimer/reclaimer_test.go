package reclaimer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giftrelay/internal/gifttask"
)

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) ReclaimStale(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (*gifttask.ReclaimReport, error) {
	args := m.Called(ctx, staleAfter, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.ReclaimReport), args.Error(1)
}

func (m *mockSweeper) ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (*gifttask.ReclaimReport, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gifttask.ReclaimReport), args.Error(1)
}

var testConfig = Config{
	StaleAfter:  5 * time.Minute,
	MaxAttempts: 3,
	BatchSize:   10,
	PendingTTL:  30 * time.Minute,
	Interval:    10 * time.Millisecond,
}

func TestSweepOnce_MergesReports(t *testing.T) {
	store := new(mockSweeper)
	store.On("ReclaimStale", mock.Anything, 5*time.Minute, 3, 10).
		Return(&gifttask.ReclaimReport{Requeued: []int64{7}, Failed: []int64{8}}, nil)
	store.On("ExpirePending", mock.Anything, 30*time.Minute, 10).
		Return(&gifttask.ReclaimReport{Expired: []int64{9}}, nil)

	report, err := New(store, testConfig).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, report.Requeued)
	assert.Equal(t, []int64{8}, report.Failed)
	assert.Equal(t, []int64{9}, report.Expired)
	store.AssertExpectations(t)
}

func TestSweepOnce_ExpiryRunsAfterReclaimError(t *testing.T) {
	store := new(mockSweeper)
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).
		Return(&gifttask.ReclaimReport{Expired: []int64{9}}, nil)

	report, err := New(store, testConfig).SweepOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int64{9}, report.Expired)
	store.AssertExpectations(t)
}

func TestStart_SweepsUntilCancelled(t *testing.T) {
	store := new(mockSweeper)
	empty := &gifttask.ReclaimReport{}
	swept := make(chan struct{}, 1)
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(empty, nil).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		})
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).Return(empty, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(store, testConfig).Start(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("no sweep ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimer did not stop")
	}
}

func TestStart_ReturnsAfterInFlightSweep(t *testing.T) {
	store := new(mockSweeper)
	empty := &gifttask.ReclaimReport{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(empty, nil).
		Run(func(mock.Arguments) {
			first.Do(func() { close(entered) })
			<-release
		})
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).Return(empty, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(store, testConfig).Start(ctx)
		close(done)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("no sweep ran")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("reclaimer stopped with a sweep still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimer did not stop")
	}
	// the held sweep ran to completion, expiry pass included
	store.AssertCalled(t, "ExpirePending", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Sweep(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := new(mockSweeper)
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&gifttask.ReclaimReport{Requeued: []int64{7}}, nil)
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).
		Return(&gifttask.ReclaimReport{}, nil)

	r := gin.New()
	r.POST("/reclaim", NewHandler(New(store, testConfig)).Sweep)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reclaim", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requeued":[7],"failed":[],"expired":[]}`, w.Body.String())
}

func TestHandler_SweepError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := new(mockSweeper)
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("pq: deadlock"))
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	r := gin.New()
	r.POST("/reclaim", NewHandler(New(store, testConfig)).Sweep)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reclaim", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}
