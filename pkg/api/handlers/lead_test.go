package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jordanlanch/leadbridge/pkg/database"
	"github.com/jordanlanch/leadbridge/pkg/forwarding"
	"github.com/jordanlanch/leadbridge/pkg/leads"
	"github.com/jordanlanch/leadbridge/pkg/logger"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/jordanlanch/leadbridge/pkg/store/gormstore"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leadTestEnv wires the lead routes to a sqlite store and a forwarding
// target whose status code the test controls.
type leadTestEnv struct {
	e          *echo.Echo
	store      *gormstore.Store
	targetCode atomic.Int32
	forwards   atomic.Int32
}

func setupLeadTest(t *testing.T) *leadTestEnv {
	t.Helper()
	env := &leadTestEnv{}
	env.targetCode.Store(http.StatusOK)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.forwards.Add(1)
		w.WriteHeader(int(env.targetCode.Load()))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(target.Close)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	env.store = gormstore.New(db)
	require.NoError(t, env.store.Migrate(context.Background()))
	t.Cleanup(func() { _ = env.store.Close() })

	dispatcher := forwarding.NewDispatcher(
		forwarding.NewRouter([]string{"Bulk WhatsApp Services"}, target.URL+"/marketing", target.URL+"/whatsapp"),
		forwarding.WithLogger(logger.Discard()),
	)
	svc := leads.NewService(env.store, dispatcher, leads.WithLogger(logger.Discard()))

	env.e = echo.New()
	NewLeadHandler(svc, true).Register(env.e.Group("/api/leads"))
	health := NewHealthHandler(env.store, nil)
	env.e.GET("/health", health.Live)
	env.e.GET("/ready", health.Ready)
	return env
}

func (env *leadTestEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func acmeLead(leadID string) map[string]any {
	return map[string]any{
		"leadid":    leadID,
		"leadtype":  "company",
		"name":      "Acme",
		"date":      "2024-01-15",
		"time":      "10:30:00",
		"category":  "Digital Marketing Services",
		"city":      "Mumbai",
		"dncmobile": 0,
		"dncphone":  0,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreate_ThenGetIsNeverPending(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusBadGateway} {
		t.Run(fmt.Sprintf("target %d", code), func(t *testing.T) {
			env := setupLeadTest(t)
			env.targetCode.Store(int32(code))

			rec := env.do(http.MethodPost, "/api/leads/", acmeLead("L1"))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "RECEIVED", rec.Body.String())

			rec = env.do(http.MethodGet, "/api/leads/L1", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[models.LeadResponse](t, rec)
			assert.True(t, resp.Success)
			assert.NotEqual(t, models.StatusPending, resp.Data.Status)
			if code == http.StatusOK {
				assert.Equal(t, models.StatusProcessed, resp.Data.Status)
			} else {
				assert.Equal(t, models.StatusFailed, resp.Data.Status)
				assert.Equal(t, "HTTP 502: {\"ok\":true}", resp.Data.LastError)
			}
		})
	}
}

func TestCreate_FromQueryString(t *testing.T) {
	env := setupLeadTest(t)

	q := url.Values{}
	for k, v := range acmeLead("Q1") {
		q.Set(k, fmt.Sprint(v))
	}
	rec := env.do(http.MethodGet, "/api/leads/?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RECEIVED", rec.Body.String())

	lead, err := env.store.FindByLeadID(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, "Mumbai", lead.City)
}

func TestCreate_WithoutTrailingSlash(t *testing.T) {
	env := setupLeadTest(t)

	rec := env.do(http.MethodPost, "/api/leads", acmeLead("S1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RECEIVED", rec.Body.String())

	q := url.Values{}
	for k, v := range acmeLead("S2") {
		q.Set(k, fmt.Sprint(v))
	}
	rec = env.do(http.MethodGet, "/api/leads?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, id := range []string{"S1", "S2"} {
		_, err := env.store.FindByLeadID(context.Background(), id)
		assert.NoError(t, err, id)
	}
}

func TestCreate_FromForm(t *testing.T) {
	env := setupLeadTest(t)

	form := url.Values{}
	for k, v := range acmeLead("F1") {
		form.Set(k, fmt.Sprint(v))
	}
	req := httptest.NewRequest(http.MethodPost, "/api/leads/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, err := env.store.FindByLeadID(context.Background(), "F1")
	require.NoError(t, err)
}

func TestCreate_Duplicate(t *testing.T) {
	env := setupLeadTest(t)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("L1")).Code)
	rec := env.do(http.MethodPost, "/api/leads/", acmeLead("L1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Lead already exists", resp.Message)
	assert.Equal(t, "L1", resp.LeadID)
	assert.Equal(t, int32(1), env.forwards.Load())
}

func TestCreate_ValidationReportsEveryField(t *testing.T) {
	env := setupLeadTest(t)

	rec := env.do(http.MethodPost, "/api/leads/", map[string]any{
		"leadid": "L1",
		"email":  "not-an-email",
		"time":   "25:00",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", resp.Message)

	var fields []string
	for _, fe := range resp.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Subset(t, fields, []string{"leadtype", "name", "date", "category", "city", "email", "time"})
	assert.Zero(t, env.forwards.Load())
}

func TestCreate_MalformedJSON(t *testing.T) {
	env := setupLeadTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/leads/", strings.NewReader(`{"leadid":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_NotFound(t *testing.T) {
	env := setupLeadTest(t)

	rec := env.do(http.MethodGet, "/api/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Lead not found", decode[models.ErrorResponse](t, rec).Message)
}

func TestUpdateStatus(t *testing.T) {
	env := setupLeadTest(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("L1")).Code)

	t.Run("invalid status leaves the lead unchanged", func(t *testing.T) {
		rec := env.do(http.MethodPatch, "/api/leads/L1/status", map[string]string{"status": "archived"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[models.ErrorResponse](t, rec)
		assert.Equal(t, "Invalid status", resp.Message)
		assert.Equal(t, models.ValidStatuses, resp.ValidStatuses)

		lead, err := env.store.FindByLeadID(context.Background(), "L1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessed, lead.Status)
	})

	t.Run("valid status", func(t *testing.T) {
		rec := env.do(http.MethodPatch, "/api/leads/L1/status", map[string]string{"status": "failed"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.StatusFailed, decode[models.LeadResponse](t, rec).Data.Status)
	})

	t.Run("unknown lead", func(t *testing.T) {
		rec := env.do(http.MethodPatch, "/api/leads/nope/status", map[string]string{"status": "failed"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRetry(t *testing.T) {
	env := setupLeadTest(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("L1")).Code)
	before := env.forwards.Load()

	t.Run("processed lead is rejected without forwarding", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/leads/L1/retry", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[models.ErrorResponse](t, rec)
		assert.Equal(t, models.StatusProcessed, resp.CurrentStatus)
		assert.Equal(t, "L1", resp.LeadID)
		assert.Equal(t, before, env.forwards.Load())
	})

	t.Run("failed lead is forwarded again", func(t *testing.T) {
		require.Equal(t, http.StatusOK,
			env.do(http.MethodPatch, "/api/leads/L1/status", map[string]string{"status": "failed"}).Code)

		rec := env.do(http.MethodPost, "/api/leads/L1/retry", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.RetryResponse](t, rec)
		assert.True(t, resp.Forward.Success)
		assert.Equal(t, "marketing", resp.Forward.Endpoint)
		assert.Equal(t, models.StatusProcessed, resp.Data.Status)
		assert.Equal(t, before+1, env.forwards.Load())
	})

	t.Run("unknown lead", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/leads/nope/retry", nil).Code)
	})
}

func TestBulkForward(t *testing.T) {
	env := setupLeadTest(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("A")).Code)
	wa := acmeLead("B")
	wa["category"] = "Bulk WhatsApp Services"
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", wa).Code)

	rec := env.do(http.MethodPost, "/api/leads/bulk-forward", map[string]any{
		"leadIds": []string{"B", "ghost", "A"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[models.BulkForwardResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Summary.NotFound)
	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.Successful)
	require.Len(t, resp.Details, 2)
	assert.Equal(t, "B", resp.Details[0].LeadID)
	assert.Equal(t, "whatsapp", resp.Details[0].Endpoint)
	assert.Equal(t, "A", resp.Details[1].LeadID)
}

func TestBulkForward_Bounds(t *testing.T) {
	env := setupLeadTest(t)

	rec := env.do(http.MethodPost, "/api/leads/bulk-forward", map[string]any{"leadIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = fmt.Sprintf("L%d", i)
	}
	rec = env.do(http.MethodPost, "/api/leads/bulk-forward", map[string]any{"leadIds": ids})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "leadIds must contain at most 100 items", resp.Errors[0].Message)
}

func TestList(t *testing.T) {
	env := setupLeadTest(t)
	for i := 0; i < 12; i++ {
		lead := acmeLead(fmt.Sprintf("L%02d", i))
		if i%3 == 0 {
			lead["city"] = "Pune"
		}
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", lead).Code)
	}

	rec := env.do(http.MethodGet, "/api/leads/list?limit=5&page=2&sortBy=leadid&sortOrder=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.LeadListResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, models.PaginationInfo{Page: 2, Limit: 5, Total: 12, Pages: 3}, resp.Pagination)
	require.Len(t, resp.Data, 5)
	assert.Equal(t, "L05", resp.Data[0].LeadID)
	assert.Contains(t, rec.Body.String(), `"processingTime"`)

	rec = env.do(http.MethodGet, "/api/leads/list?city=pun", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), decode[models.LeadListResponse](t, rec).Pagination.Total)

	rec = env.do(http.MethodGet, "/api/leads/list?status=lost&sortBy=secret", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[models.ErrorResponse](t, rec).Errors, 2)
}

func TestStats(t *testing.T) {
	env := setupLeadTest(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead(fmt.Sprintf("S%d", i))).Code)
	}

	rec := env.do(http.MethodGet, "/api/leads/stats?startDate=2024-01-15&endDate=2024-01-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.LeadStatsResponse](t, rec)
	assert.Equal(t, int64(3), resp.Data.Overview.TotalLeads)
	assert.Equal(t, int64(3), resp.Data.Overview.ProcessedLeads)
	assert.Equal(t, []models.Bucket{{ID: "Mumbai", Count: 3}}, resp.Data.CityStats)
	assert.Contains(t, rec.Body.String(), `"_id":"Mumbai"`)

	rec = env.do(http.MethodGet, "/api/leads/stats?startDate=2024-01-16", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[models.LeadStatsResponse](t, rec).Data.Overview.TotalLeads)
}

func TestExport(t *testing.T) {
	env := setupLeadTest(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("E1")).Code)

	rec := env.do(http.MethodGet, "/api/leads/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "E1", records[1][0])

	rec = env.do(http.MethodGet, "/api/leads/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.NotZero(t, rec.Body.Len())

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/leads/export?format=pdf", nil).Code)
}

func TestDelete(t *testing.T) {
	env := setupLeadTest(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/leads/", acmeLead("D1")).Code)

	rec := env.do(http.MethodDelete, "/api/leads/D1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lead deleted successfully", decode[models.LeadResponse](t, rec).Message)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/leads/D1", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/leads/D1", nil).Code)
}

func TestHealth(t *testing.T) {
	env := setupLeadTest(t)

	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decode[map[string]any](t, rec)["status"])

	rec = env.do(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "up", body["database"])
	assert.NotContains(t, body, "cache")
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return fmt.Errorf("connection refused") }

func TestHealth_Degraded(t *testing.T) {
	e := echo.New()
	health := NewHealthHandler(downPinger{}, downPinger{})
	e.GET("/health", health.Live)
	e.GET("/ready", health.Ready)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "down", body["database"])
	assert.Equal(t, "down", body["cache"])
}
