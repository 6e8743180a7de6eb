package forwarding

import (
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/models"
)

// isoMillis matches the millisecond UTC layout marketing APIs expect
const isoMillis = "2006-01-02T15:04:05.000Z"

// Payload is the wire shape posted to a forwarding endpoint. Empty fields are omitted.
type Payload struct {
	Name            string `json:"name,omitempty"`
	PhoneNumber     string `json:"phone-number,omitempty"`
	EmailAddress    string `json:"email-address,omitempty"`
	EnquiryDateTime string `json:"enquiry-date-time,omitempty"`
	Category        string `json:"category,omitempty"`
	City            string `json:"city,omitempty"`
	Area            string `json:"area,omitempty"`
	BranchArea      string `json:"branch-area,omitempty"`
	Pincode         string `json:"pincode,omitempty"`
}

// TransformLead converts a stored lead into the outbound payload
func TransformLead(lead *models.Lead) Payload {
	p := Payload{
		Name:         strings.TrimSpace(lead.Name),
		EmailAddress: lead.Email,
		Category:     lead.Category,
		City:         lead.City,
		Area:         lead.Area,
		BranchArea:   lead.BranchArea,
		Pincode:      lead.Pincode,
	}

	if lead.Prefix != "" {
		p.Name = strings.TrimSpace(lead.Prefix + " " + lead.Name)
	}

	p.PhoneNumber = lead.Mobile
	if p.PhoneNumber == "" {
		p.PhoneNumber = lead.Phone
	}

	p.EnquiryDateTime = enquiryDateTime(lead.Date, lead.Time)
	return p
}

// enquiryDateTime overwrites the time of day of date with an HH:MM:SS clock.
// A missing or unparsable clock leaves the date at midnight.
func enquiryDateTime(date time.Time, clock string) string {
	if date.IsZero() {
		return ""
	}
	d := date.UTC()
	h, m, s, ok := parseClock(clock)
	if !ok {
		h, m, s = 0, 0, 0
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, time.UTC).Format(isoMillis)
}

func parseClock(clock string) (h, m, s int, ok bool) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], true
}
