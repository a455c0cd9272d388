package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/schedulex/internal/api/dto"
	"github.com/cuongbtq/schedulex/internal/api/handler"
	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/payment"
	"github.com/cuongbtq/schedulex/internal/storage/memory"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testAPI struct {
	router  *gin.Engine
	gateway *payment.ScriptedGateway
}

func newTestAPI(t *testing.T, outcomes ...payment.Outcome) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	gateway := payment.NewScriptedGateway(outcomes...)
	jobs := job.NewService(store, logger, domain.DefaultJobMaxRetries)
	workflow := payment.NewWorkflow(store, jobs, gateway, events.Nop{}, logger, payment.Config{})

	return &testAPI{
		router: SetupRouter(&handler.Dependencies{
			Logger: logger,
			Jobs:   jobs,
			Orders: workflow,
		}),
		gateway: gateway,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHealth_Unhealthy(t *testing.T) {
	r := SetupRouter(&handler.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: func(context.Context) error { return errors.New("database health check failed") },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database health check failed")
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodOptions, "/api/v1/jobs", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestJobs_CreateAndGet(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"job_name": "send-report",
		"payload":  "weekly",
		"priority": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[dto.JobDTO](t, w)
	assert.NotEmpty(t, created.JobID)
	assert.Equal(t, "send-report", created.JobName)
	assert.Equal(t, "ONE_TIME", created.JobType)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, 5, created.Priority)
	assert.Equal(t, domain.DefaultJobMaxRetries, created.MaxRetries)

	w = api.do(t, http.MethodGet, "/api/v1/jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.JobID, decode[dto.JobDTO](t, w).JobID)
}

func TestJobs_CreateRecurring(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"job_name":        "cleanup",
		"job_type":        "RECURRING",
		"cron_expression": "@every 1h",
		"max_retries":     0,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[dto.JobDTO](t, w)
	assert.Equal(t, "RECURRING", created.JobType)
	assert.Equal(t, "@every 1h", created.CronExpression)
	assert.Equal(t, 0, created.MaxRetries)
}

func TestJobs_CreateValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "missing name", body: map[string]any{"payload": "x"}, field: "JobName"},
		{name: "invalid cron", body: map[string]any{"job_name": "x", "job_type": "RECURRING", "cron_expression": "61 * * * *"}, field: "CronExpression"},
		{name: "recurring without cron", body: map[string]any{"job_name": "x", "job_type": "RECURRING"}, field: "cron_expression"},
		{name: "unknown type", body: map[string]any{"job_name": "x", "job_type": "HOURLY"}, field: "JobType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			resp := decode[struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}](t, w)
			assert.Equal(t, "validation_failed", resp.Error)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_request_body")
	})
}

func TestJobs_GetErrors(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/jobs/5b0c7c5e-6a6b-4c36-9d53-1d2f3f1c2a10", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestJobs_ListPaginationAndStats(t *testing.T) {
	api := newTestAPI(t)

	for _, name := range []string{"a", "b", "c"} {
		w := api.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{"job_name": name})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := api.do(t, http.MethodGet, "/api/v1/jobs?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[dto.ListJobsResponse](t, w)
	require.Len(t, first.Jobs, 2)
	require.NotEmpty(t, first.NextCursor)

	w = api.do(t, http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+url.QueryEscape(first.NextCursor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[dto.ListJobsResponse](t, w)
	require.Len(t, second.Jobs, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, j := range append(first.Jobs, second.Jobs...) {
		seen[j.JobID] = true
	}
	assert.Len(t, seen, 3)

	w = api.do(t, http.MethodGet, "/api/v1/jobs?status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.ListJobsResponse](t, w).Jobs)

	w = api.do(t, http.MethodGet, "/api/v1/jobs?status=SLEEPING", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/jobs?cursor=%25%25%25", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/jobs/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.JobStats](t, w)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.Pending)
}

func TestOrders_CreatePaid(t *testing.T) {
	api := newTestAPI(t, payment.Outcome{Approve: true})

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"order_id":    "ORD_API_1",
		"customer_id": "cust-1",
		"amount":      120.5,
		"order_items": []map[string]any{{"sku": "A1", "qty": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode[dto.OrderDTO](t, w)
	assert.Equal(t, "ORD_API_1", order.OrderID)
	assert.Equal(t, "SUCCESS", order.PaymentStatus)
	assert.Equal(t, "PAID", order.OrderStatus)
	assert.NotEmpty(t, order.PaymentID)
	assert.NotNil(t, order.PaidAt)
	assert.JSONEq(t, `[{"sku":"A1","qty":2}]`, string(order.OrderItems))

	w = api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"order_id":    "ORD_API_1",
		"customer_id": "cust-1",
		"amount":      10,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Paid orders cannot be retried
	w = api.do(t, http.MethodPost, "/api/v1/orders/ORD_API_1/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOrders_DeclineThenManualRetry(t *testing.T) {
	api := newTestAPI(t,
		payment.Outcome{Reason: "Card expired"},
		payment.Outcome{Approve: true},
	)

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id": "cust-2",
		"amount":      45,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode[dto.OrderDTO](t, w)
	assert.Regexp(t, `^ORD_[0-9A-F]{12}$`, order.OrderID)
	assert.Equal(t, "FAILED", order.PaymentStatus)
	assert.Equal(t, "PAYMENT_FAILED", order.OrderStatus)
	assert.Equal(t, "Card expired", order.FailureReason)
	assert.Equal(t, 1, order.RetryCount)
	assert.True(t, order.CanRetry)
	assert.NotNil(t, order.NextRetryTime)

	w = api.do(t, http.MethodPost, "/api/v1/orders/"+order.OrderID+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	retried := decode[dto.OrderDTO](t, w)
	assert.Equal(t, "SUCCESS", retried.PaymentStatus)

	w = api.do(t, http.MethodGet, "/api/v1/orders/"+order.OrderID+"/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode[dto.ListTransactionsResponse](t, w)
	require.Len(t, txs.Transactions, 2)
	assert.Equal(t, 1, txs.Transactions[0].AttemptNumber)
	assert.Equal(t, "FAILED", txs.Transactions[0].Status)
	assert.Equal(t, 2, txs.Transactions[1].AttemptNumber)
	assert.Equal(t, "SUCCESS", txs.Transactions[1].Status)

	assert.Equal(t, []int{1, 2}, api.gateway.Calls())
}

func TestOrders_ValidationAndNotFound(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"customer_id": "c", "amount": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{"amount": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/orders/ORD_MISSING", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/orders/ORD_MISSING/transactions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/orders/ORD_MISSING/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Empty(t, api.gateway.Calls())
}

func TestOrders_ListAndStats(t *testing.T) {
	api := newTestAPI(t,
		payment.Outcome{Approve: true},
		payment.Outcome{Reason: "Insufficient funds in account"},
		payment.Outcome{Approve: true},
	)

	for _, id := range []string{"ORD_L1", "ORD_L2", "ORD_L3"} {
		w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
			"order_id":    id,
			"customer_id": "cust-list",
			"amount":      10,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := api.do(t, http.MethodGet, "/api/v1/orders?payment_status=FAILED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	failed := decode[dto.ListOrdersResponse](t, w)
	require.Len(t, failed.Orders, 1)
	assert.Equal(t, "ORD_L2", failed.Orders[0].OrderID)

	w = api.do(t, http.MethodGet, "/api/v1/orders?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[dto.ListOrdersResponse](t, w)
	assert.Len(t, page.Orders, 2)
	assert.NotEmpty(t, page.NextCursor)

	w = api.do(t, http.MethodGet, "/api/v1/orders/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.OrderStats](t, w)
	assert.Equal(t, int64(3), stats.TotalOrders)
	assert.Equal(t, int64(2), stats.SuccessfulPayments)
	assert.Equal(t, int64(1), stats.FailedPayments)
}
