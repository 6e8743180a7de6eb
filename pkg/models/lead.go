package models

import (
	"time"
)

// Status is the processing state of a stored lead
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// ValidStatuses lists every status accepted by the status update endpoint
var ValidStatuses = []Status{StatusPending, StatusProcessed, StatusFailed}

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Lead is the stored lead record. The same struct is persisted by the
// relational (gorm) and document (bson) stores.
type Lead struct {
	ID uint `gorm:"primaryKey" json:"-" bson:"-"`

	LeadID   string `gorm:"column:leadid;size:255;not null;uniqueIndex" json:"leadid" bson:"leadid"`
	LeadType string `gorm:"column:leadtype;size:20;not null;index" json:"leadtype" bson:"leadtype"`
	Prefix   string `gorm:"column:prefix;size:10" json:"prefix,omitempty" bson:"prefix,omitempty"`
	Name     string `gorm:"column:name;size:255;not null" json:"name" bson:"name"`

	// Contact
	Mobile string `gorm:"column:mobile;size:50" json:"mobile,omitempty" bson:"mobile,omitempty"`
	Phone  string `gorm:"column:phone;size:50" json:"phone,omitempty" bson:"phone,omitempty"`
	Email  string `gorm:"column:email;size:255" json:"email,omitempty" bson:"email,omitempty"`

	// Enquiry
	Date       time.Time `gorm:"column:date;not null;index" json:"date" bson:"date"`
	Time       string    `gorm:"column:time;size:8;not null" json:"time" bson:"time"`
	Category   string    `gorm:"column:category;size:255;not null;index" json:"category" bson:"category"`
	City       string    `gorm:"column:city;size:255;not null;index" json:"city" bson:"city"`
	Area       string    `gorm:"column:area;size:255" json:"area,omitempty" bson:"area,omitempty"`
	BranchArea string    `gorm:"column:brancharea;size:255" json:"brancharea,omitempty" bson:"brancharea,omitempty"`
	Pincode    string    `gorm:"column:pincode;size:50" json:"pincode,omitempty" bson:"pincode,omitempty"`
	BranchPin  string    `gorm:"column:branchpin;size:50" json:"branchpin,omitempty" bson:"branchpin,omitempty"`

	// Do-not-call flags (0 or 1)
	DNCMobile int `gorm:"column:dncmobile;not null;default:0" json:"dncmobile" bson:"dncmobile"`
	DNCPhone  int `gorm:"column:dncphone;not null;default:0" json:"dncphone" bson:"dncphone"`

	Company  string `gorm:"column:company;size:255" json:"company,omitempty" bson:"company,omitempty"`
	ParentID string `gorm:"column:parentid;size:255" json:"parentid,omitempty" bson:"parentid,omitempty"`

	// Processing
	Status         Status `gorm:"column:status;size:20;not null;default:pending;index" json:"status" bson:"status"`
	ProcessingTime int64  `gorm:"column:processing_time;not null;default:0" json:"processingTime" bson:"processingTime"`
	ForwardedTo    string `gorm:"column:forwarded_to;size:20" json:"forwardedTo,omitempty" bson:"forwardedTo,omitempty"`
	LastError      string `gorm:"column:last_error;type:text" json:"lastError,omitempty" bson:"lastError,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;index" json:"updatedAt" bson:"updatedAt"`
}

// TableName pins the table name used by gorm
func (Lead) TableName() string { return "leads" }

// LeadInput is the canonical, validated shape of an inbound lead. The struct
// tags are the rule table evaluated by the validation stage.
type LeadInput struct {
	LeadID     string    `json:"leadid" validate:"required,max=255"`
	LeadType   string    `json:"leadtype" validate:"required,oneof=company category"`
	Prefix     string    `json:"prefix" validate:"omitempty,max=10,oneof=Mr Ms Dr"`
	Name       string    `json:"name" validate:"required,max=255"`
	Mobile     string    `json:"mobile" validate:"omitempty,max=50,phonechars"`
	Phone      string    `json:"phone" validate:"omitempty,max=50,phonechars"`
	Email      string    `json:"email" validate:"omitempty,max=255,email"`
	Date       time.Time `json:"date" validate:"required"`
	Time       string    `json:"time" validate:"required,hhmmss"`
	Category   string    `json:"category" validate:"required,max=255"`
	City       string    `json:"city" validate:"required,max=255"`
	Area       string    `json:"area" validate:"omitempty,max=255"`
	BranchArea string    `json:"brancharea" validate:"omitempty,max=255"`
	Pincode    string    `json:"pincode" validate:"omitempty,max=50,digits"`
	BranchPin  string    `json:"branchpin" validate:"omitempty,max=50,digits"`
	DNCMobile  *int      `json:"dncmobile" validate:"required,oneof=0 1"`
	DNCPhone   *int      `json:"dncphone" validate:"required,oneof=0 1"`
	Company    string    `json:"company" validate:"omitempty,max=255"`
	ParentID   string    `json:"parentid" validate:"omitempty,max=255"`
}

// ToLead builds a pending lead record from validated input
func (in *LeadInput) ToLead() *Lead {
	lead := &Lead{
		LeadID:     in.LeadID,
		LeadType:   in.LeadType,
		Prefix:     in.Prefix,
		Name:       in.Name,
		Mobile:     in.Mobile,
		Phone:      in.Phone,
		Email:      in.Email,
		Date:       in.Date,
		Time:       in.Time,
		Category:   in.Category,
		City:       in.City,
		Area:       in.Area,
		BranchArea: in.BranchArea,
		Pincode:    in.Pincode,
		BranchPin:  in.BranchPin,
		Company:    in.Company,
		ParentID:   in.ParentID,
		Status:     StatusPending,
	}
	if in.DNCMobile != nil {
		lead.DNCMobile = *in.DNCMobile
	}
	if in.DNCPhone != nil {
		lead.DNCPhone = *in.DNCPhone
	}
	return lead
}

// FieldError is a single validation violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
