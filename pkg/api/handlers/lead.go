package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/api/errors"
	"github.com/jordanlanch/leadbridge/pkg/export"
	"github.com/jordanlanch/leadbridge/pkg/leads"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/labstack/echo/v4"
)

// ReceivedBody is the plain-text acknowledgement of an accepted lead
const ReceivedBody = "RECEIVED"

// LeadHandler handles lead endpoints
type LeadHandler struct {
	leadService    *leads.Service
	exportsEnabled bool
	now            func() time.Time
}

// NewLeadHandler creates a new lead handler. The export route is only
// mounted when exportsEnabled is set.
func NewLeadHandler(leadService *leads.Service, exportsEnabled bool) *LeadHandler {
	return &LeadHandler{
		leadService:    leadService,
		exportsEnabled: exportsEnabled,
		now:            time.Now,
	}
}

// Register mounts the lead routes on g. The create webhook answers with and
// without a trailing slash. Static segments are matched before the :leadid
// parameter.
func (h *LeadHandler) Register(g *echo.Group) {
	for _, path := range []string{"", "/"} {
		g.POST(path, h.Create)
		g.GET(path, h.Create)
	}
	g.GET("/list", h.List)
	g.GET("/stats", h.Stats)
	if h.exportsEnabled {
		g.GET("/export", h.Export)
	}
	g.POST("/bulk-forward", h.BulkForward)
	g.GET("/:leadid", h.Get)
	g.PATCH("/:leadid/status", h.UpdateStatus)
	g.POST("/:leadid/retry", h.Retry)
	g.DELETE("/:leadid", h.Delete)
}

// Create godoc
// @Summary Receive a lead webhook
// @Description Validates, stores and forwards one lead. Fields may come from the query string, a JSON body or a form body.
// @Tags Leads
// @Accept json
// @Produce plain
// @Success 200 {string} string "RECEIVED"
// @Failure 400 {object} models.ErrorResponse "Validation failed"
// @Failure 409 {object} models.ErrorResponse "Lead already exists"
// @Router /leads/ [post]
func (h *LeadHandler) Create(c echo.Context) error {
	raw, err := rawInput(c)
	if err != nil {
		return errors.BadRequestError(c, "Invalid request body")
	}

	if _, err := h.leadService.Create(c.Request().Context(), raw); err != nil {
		return errors.HandleError(c, err)
	}
	return c.String(http.StatusOK, ReceivedBody)
}

// List godoc
// @Summary List leads
// @Tags Leads
// @Produce json
// @Param page query integer false "Page number" default(1)
// @Param limit query integer false "Results per page" default(10)
// @Param city query string false "City substring"
// @Param category query string false "Category substring"
// @Param leadtype query string false "company or category"
// @Param status query string false "pending, processed or failed"
// @Param startDate query string false "Earliest lead date"
// @Param endDate query string false "Latest lead date"
// @Param sortBy query string false "Sort field" default(createdAt)
// @Param sortOrder query string false "asc or desc" default(desc)
// @Success 200 {object} models.LeadListResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /leads/list [get]
func (h *LeadHandler) List(c echo.Context) error {
	start := h.now()

	var req models.LeadListRequest
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return errors.BadRequestError(c, "Invalid query parameters")
	}

	page, err := h.leadService.List(c.Request().Context(), req)
	if err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.LeadListResponse{
		Success:        true,
		Data:           page.Data,
		Pagination:     page.Pagination,
		ProcessingTime: h.elapsed(start),
	})
}

// Stats godoc
// @Summary Lead statistics
// @Tags Leads
// @Produce json
// @Success 200 {object} models.LeadStatsResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /leads/stats [get]
func (h *LeadHandler) Stats(c echo.Context) error {
	start := h.now()

	var req models.LeadStatsRequest
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return errors.BadRequestError(c, "Invalid query parameters")
	}

	stats, err := h.leadService.Stats(c.Request().Context(), req)
	if err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.LeadStatsResponse{
		Success:        true,
		Data:           stats,
		ProcessingTime: h.elapsed(start),
	})
}

// Export godoc
// @Summary Download the filtered lead list
// @Tags Leads
// @Produce octet-stream
// @Param format query string false "csv or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Router /leads/export [get]
func (h *LeadHandler) Export(c echo.Context) error {
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return errors.BadRequestError(c, "format must be one of [csv, xlsx]")
	}

	var req models.LeadListRequest
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return errors.BadRequestError(c, "Invalid query parameters")
	}

	rows, err := h.leadService.ListAll(c.Request().Context(), req)
	if err != nil {
		return errors.HandleError(c, err)
	}

	data, err := export.Bytes(format, rows)
	if err != nil {
		return errors.InternalError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", format.FileName(h.now())))
	return c.Blob(http.StatusOK, format.ContentType(), data)
}

// Get godoc
// @Summary Get lead by leadid
// @Tags Leads
// @Produce json
// @Param leadid path string true "Lead ID"
// @Success 200 {object} models.LeadResponse
// @Failure 404 {object} models.ErrorResponse "Lead not found"
// @Router /leads/{leadid} [get]
func (h *LeadHandler) Get(c echo.Context) error {
	start := h.now()

	lead, err := h.leadService.Get(c.Request().Context(), c.Param("leadid"))
	if err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.LeadResponse{
		Success:        true,
		Data:           lead,
		ProcessingTime: h.elapsed(start),
	})
}

// UpdateStatus godoc
// @Summary Set the status of a lead
// @Tags Leads
// @Accept json
// @Produce json
// @Param leadid path string true "Lead ID"
// @Param request body models.UpdateStatusRequest true "New status"
// @Success 200 {object} models.LeadResponse
// @Failure 400 {object} models.ErrorResponse "Invalid status"
// @Failure 404 {object} models.ErrorResponse "Lead not found"
// @Router /leads/{leadid}/status [patch]
func (h *LeadHandler) UpdateStatus(c echo.Context) error {
	start := h.now()

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return errors.BadRequestError(c, "Invalid request body")
	}

	lead, err := h.leadService.UpdateStatus(c.Request().Context(), c.Param("leadid"), req.Status)
	if err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.LeadResponse{
		Success:        true,
		Message:        "Lead status updated",
		Data:           lead,
		ProcessingTime: h.elapsed(start),
	})
}

// Retry godoc
// @Summary Retry forwarding of a failed lead
// @Tags Leads
// @Produce json
// @Param leadid path string true "Lead ID"
// @Success 200 {object} models.RetryResponse
// @Failure 400 {object} models.ErrorResponse "Lead is not failed"
// @Failure 404 {object} models.ErrorResponse "Lead not found"
// @Router /leads/{leadid}/retry [post]
func (h *LeadHandler) Retry(c echo.Context) error {
	start := h.now()

	res, err := h.leadService.Retry(c.Request().Context(), c.Param("leadid"))
	if err != nil {
		return errors.HandleError(c, err)
	}

	message := "Lead forwarded successfully"
	if !res.Forward.Success {
		message = "Lead forwarding failed"
	}

	return c.JSON(http.StatusOK, models.RetryResponse{
		Success: true,
		Message: message,
		Data:    res.Lead,
		Forward: models.RetryOutcome{
			Success:    res.Forward.Success,
			Endpoint:   string(res.Forward.Endpoint),
			StatusCode: res.Forward.StatusCode,
			Error:      res.Forward.Error,
		},
		ProcessingTime: h.elapsed(start),
	})
}

// BulkForward godoc
// @Summary Forward a batch of leads
// @Tags Leads
// @Accept json
// @Produce json
// @Param request body models.BulkForwardRequest true "Lead IDs (1-100)"
// @Success 200 {object} models.BulkForwardResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /leads/bulk-forward [post]
func (h *LeadHandler) BulkForward(c echo.Context) error {
	start := h.now()

	var req models.BulkForwardRequest
	if err := c.Bind(&req); err != nil {
		return errors.BadRequestError(c, "Invalid request body")
	}

	fieldErrs, err := h.leadService.Validator().StructErrors(req)
	if err != nil {
		return errors.InternalError(c, err)
	}
	if len(fieldErrs) > 0 {
		return errors.ValidationError(c, fieldErrs)
	}

	result, err := h.leadService.BulkForward(c.Request().Context(), req.LeadIDs)
	if err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.BulkForwardResponse{
		Success: true,
		Message: fmt.Sprintf("Bulk forward completed: %d successful, %d failed, %d not found",
			result.Summary.Successful, result.Summary.Failed, result.Summary.NotFound),
		Summary:        result.Summary,
		Details:        result.Details,
		ProcessingTime: h.elapsed(start),
	})
}

// Delete godoc
// @Summary Delete a lead
// @Tags Leads
// @Produce json
// @Param leadid path string true "Lead ID"
// @Success 200 {object} models.LeadResponse
// @Failure 404 {object} models.ErrorResponse "Lead not found"
// @Router /leads/{leadid} [delete]
func (h *LeadHandler) Delete(c echo.Context) error {
	start := h.now()

	if err := h.leadService.Delete(c.Request().Context(), c.Param("leadid")); err != nil {
		return errors.HandleError(c, err)
	}

	return c.JSON(http.StatusOK, models.LeadResponse{
		Success:        true,
		Message:        "Lead deleted successfully",
		ProcessingTime: h.elapsed(start),
	})
}

func (h *LeadHandler) elapsed(start time.Time) int64 {
	return h.now().Sub(start).Milliseconds()
}

// rawInput merges query parameters with a JSON or form body. Body fields win.
func rawInput(c echo.Context) (map[string]any, error) {
	raw := make(map[string]any)
	for key, values := range c.QueryParams() {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}

	req := c.Request()
	if req.Body == nil || req.Method == http.MethodGet {
		return raw, nil
	}

	ctype := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		var body map[string]any
		dec := json.NewDecoder(req.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil && err != io.EOF {
			return nil, err
		}
		for key, value := range body {
			raw[key] = value
		}
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm), strings.HasPrefix(ctype, echo.MIMEMultipartForm):
		form, err := c.FormParams()
		if err != nil {
			return nil, err
		}
		for key, values := range form {
			if len(values) > 0 {
				raw[key] = values[0]
			}
		}
	}
	return raw, nil
}
