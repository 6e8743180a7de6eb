package models

import "time"

// LeadFilter narrows list, count and aggregate queries. Empty fields are ignored.
type LeadFilter struct {
	City      string     `json:"city,omitempty"`     // case-insensitive substring
	Category  string     `json:"category,omitempty"` // case-insensitive substring
	LeadType  string     `json:"leadtype,omitempty"`
	Status    Status     `json:"status,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"` // inclusive, on the lead date
	EndDate   *time.Time `json:"endDate,omitempty"`   // inclusive, on the lead date
}

// SortOrder is asc or desc
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// LeadSort selects the ordering of a list query. Field is the JSON field name.
type LeadSort struct {
	Field string
	Order SortOrder
}

// DefaultLeadSort orders by creation time, newest first
var DefaultLeadSort = LeadSort{Field: "createdAt", Order: SortDesc}

// SortableFields maps JSON field names accepted in sortBy to storage column names
var SortableFields = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"date":           "date",
	"leadid":         "leadid",
	"name":           "name",
	"city":           "city",
	"category":       "category",
	"status":         "status",
	"processingTime": "processing_time",
}

// LeadListRequest carries the query string of the list endpoint
type LeadListRequest struct {
	Page      int    `query:"page"`
	Limit     int    `query:"limit"`
	City      string `query:"city"`
	Category  string `query:"category"`
	LeadType  string `query:"leadtype" validate:"omitempty,oneof=company category"`
	Status    string `query:"status" validate:"omitempty,oneof=pending processed failed"`
	StartDate string `query:"startDate"`
	EndDate   string `query:"endDate"`
	SortBy    string `query:"sortBy"`
	SortOrder string `query:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// LeadStatsRequest carries the query string of the stats endpoint
type LeadStatsRequest struct {
	StartDate string `query:"startDate"`
	EndDate   string `query:"endDate"`
	City      string `query:"city"`
	Category  string `query:"category"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// LeadPage is one page of a filtered list
type LeadPage struct {
	Data       []Lead         `json:"data"`
	Pagination PaginationInfo `json:"pagination"`
}

// Overview holds aggregate counts over a filtered set of leads
type Overview struct {
	TotalLeads        int64   `json:"totalLeads" bson:"totalLeads"`
	PendingLeads      int64   `json:"pendingLeads" bson:"pendingLeads"`
	ProcessedLeads    int64   `json:"processedLeads" bson:"processedLeads"`
	FailedLeads       int64   `json:"failedLeads" bson:"failedLeads"`
	AvgProcessingTime float64 `json:"avgProcessingTime" bson:"avgProcessingTime"`
}

// Bucket is one group of a top-N aggregation
type Bucket struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// LeadStats is the payload of the stats endpoint
type LeadStats struct {
	Overview      Overview `json:"overview"`
	CityStats     []Bucket `json:"cityStats"`
	CategoryStats []Bucket `json:"categoryStats"`
}

// BulkForwardRequest is the body of the bulk forward endpoint
type BulkForwardRequest struct {
	LeadIDs []string `json:"leadIds" validate:"required,min=1,max=100,dive,required"`
}

// BulkSummary aggregates the outcome of a bulk forward
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	NotFound   int `json:"notFound"`
}

// BulkDetail is the outcome of forwarding one lead in a bulk request
type BulkDetail struct {
	LeadID   string `json:"leadid"`
	Success  bool   `json:"success"`
	Status   Status `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BulkForwardResult is returned by the bulk forward operation
type BulkForwardResult struct {
	Summary BulkSummary  `json:"summary"`
	Details []BulkDetail `json:"details"`
}

// UpdateStatusRequest is the body of the status update endpoint
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON body of every non-2xx response
type ErrorResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	Errors        []FieldError `json:"errors,omitempty"`
	LeadID        string       `json:"leadid,omitempty"`
	CurrentStatus Status       `json:"currentStatus,omitempty"`
	ValidStatuses []Status     `json:"validStatuses,omitempty"`
}

// LeadResponse wraps a single lead
type LeadResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	Data           *Lead  `json:"data"`
	ProcessingTime int64  `json:"processingTime"`
}

// LeadListResponse wraps one page of leads
type LeadListResponse struct {
	Success        bool           `json:"success"`
	Data           []Lead         `json:"data"`
	Pagination     PaginationInfo `json:"pagination"`
	ProcessingTime int64          `json:"processingTime"`
}

// LeadStatsResponse wraps the stats payload
type LeadStatsResponse struct {
	Success        bool       `json:"success"`
	Data           *LeadStats `json:"data"`
	ProcessingTime int64      `json:"processingTime"`
}

// BulkForwardResponse is the body of a completed bulk forward
type BulkForwardResponse struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	Summary        BulkSummary  `json:"summary"`
	Details        []BulkDetail `json:"details"`
	ProcessingTime int64        `json:"processingTime"`
}

// RetryOutcome summarizes the forwarding attempt of a retry
type RetryOutcome struct {
	Success    bool   `json:"success"`
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RetryResponse is the body of a retry
type RetryResponse struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	Data           *Lead        `json:"data"`
	Forward        RetryOutcome `json:"forward"`
	ProcessingTime int64        `json:"processingTime"`
}
