package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContext creates an echo.Context backed by an httptest.NewRecorder for the
// given HTTP method and path.
func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLog redirects the standard logger to a buffer for the duration of fn
// and returns everything that was logged.
func captureLog(fn func()) string {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	fn()
	return buf.String()
}

// ---------- ValidationError ----------

func TestValidationError_ResponseBody(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/leads/")
	err := ValidationError(c, []models.FieldError{
		{Field: "leadid", Message: "leadid is required"},
		{Field: "email", Message: "email must be a valid email address"},
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := parseBody(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Validation failed", resp.Message)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "leadid", resp.Errors[0].Field)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestValidationError_LogsPath(t *testing.T) {
	logged := captureLog(func() {
		c, _ := newContext(http.MethodPost, "/api/leads/")
		_ = ValidationError(c, []models.FieldError{{Field: "leadid", Message: "leadid is required"}})
	})

	assert.Contains(t, logged, "[VALIDATION ERROR]")
	assert.Contains(t, logged, "/api/leads/")
}

// ---------- InternalError ----------

func TestInternalError_NoInternalDetails(t *testing.T) {
	internalMsg := `pq: relation "leads" does not exist`
	var logged string
	c, rec := newContext(http.MethodGet, "/api/leads/stats")
	logged = captureLog(func() {
		_ = InternalError(c, errors.New(internalMsg))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := parseBody(t, rec)
	assert.Equal(t, "Internal server error", resp.Message)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.NotContains(t, rec.Body.String(), "relation")
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	assert.Contains(t, logged, "[INTERNAL ERROR]")
	assert.Contains(t, logged, internalMsg)
	assert.Contains(t, logged, "/api/leads/stats")
}

// ---------- Lead-specific responses ----------

func TestNotFoundError_Message(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/leads/L404")
	_ = NotFoundError(c, "Lead not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := parseBody(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Lead not found", resp.Message)
}

func TestConflictError_CarriesLeadID(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/leads/")
	_ = ConflictError(c, "Lead already exists", "L1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := parseBody(t, rec)
	assert.Equal(t, "Lead already exists", resp.Message)
	assert.Equal(t, "L1", resp.LeadID)
}

func TestInvalidStateError_CarriesCurrentStatus(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/leads/L1/retry")
	_ = InvalidStateError(c, "Only failed leads can be retried", "L1", models.StatusProcessed)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := parseBody(t, rec)
	assert.Equal(t, "L1", resp.LeadID)
	assert.Equal(t, models.StatusProcessed, resp.CurrentStatus)
}

func TestInvalidStatusError_ListsValidStatuses(t *testing.T) {
	c, rec := newContext(http.MethodPatch, "/api/leads/L1/status")
	_ = InvalidStatusError(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := parseBody(t, rec)
	assert.Equal(t, "Invalid status", resp.Message)
	assert.Equal(t, []models.Status{"pending", "processed", "failed"}, resp.ValidStatuses)
}

// ---------- HandleError ----------

func TestHandleError_StatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation → 400",
			err:         domain.NewValidationError([]models.FieldError{{Field: "leadid", Message: "leadid is required"}}),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Validation failed",
		},
		{
			name:        "bad request → 400",
			err:         domain.NewBadRequestError("leadIds must contain at least 1 item"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "leadIds must contain at least 1 item",
		},
		{
			name:        "invalid status → 400",
			err:         domain.NewBadRequestError(domain.MsgInvalidStatus),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid status",
		},
		{
			name:        "not found → 404",
			err:         domain.NewNotFoundError("Lead"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Lead not found",
		},
		{
			name:        "conflict → 409",
			err:         domain.NewLeadExistsError("L1"),
			wantStatus:  http.StatusConflict,
			wantMessage: "Lead already exists",
		},
		{
			name:        "invalid state → 400",
			err:         domain.NewLeadStateError("L1", models.StatusPending, "Only failed leads can be retried"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Only failed leads can be retried",
		},
		{
			name:        "wrapped internal → 500",
			err:         fmt.Errorf("listing: %w", domain.NewInternalError(errors.New("disk full"))),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
		{
			name:        "plain error → 500",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodGet, "/test")
			captureLog(func() {
				assert.NoError(t, HandleError(c, tt.err))
			})
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := parseBody(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.NotContains(t, rec.Body.String(), "disk full")
		})
	}
}

func TestHandleError_InvalidStatusListsValues(t *testing.T) {
	c, rec := newContext(http.MethodPatch, "/api/leads/L1/status")
	_ = HandleError(c, domain.NewBadRequestError(domain.MsgInvalidStatus))

	resp := parseBody(t, rec)
	assert.Len(t, resp.ValidStatuses, 3)
}
