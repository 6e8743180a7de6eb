// Package validation turns raw webhook input into a canonical models.LeadInput.
//
// Coercion runs first (strings trimmed, email lowercased, DNC flags and dates
// parsed), then the rule table declared as struct tags on models.LeadInput is
// evaluated in one pass so every violation is reported together.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leadbridge/pkg/models"
)

var (
	phoneCharsRe = regexp.MustCompile(`^[0-9+\-()\s]+$`)
	digitsRe     = regexp.MustCompile(`^[0-9]+$`)
	hhmmssRe     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$`)
)

// Input field names, in the order violations are reported.
var fieldOrder = []string{
	"leadid", "leadtype", "prefix", "name", "mobile", "phone", "email",
	"date", "time", "category", "city", "area", "brancharea", "pincode",
	"branchpin", "dncmobile", "dncphone", "company", "parentid",
}

var stringFields = map[string]func(in *models.LeadInput, v string){
	"leadid":     func(in *models.LeadInput, v string) { in.LeadID = v },
	"leadtype":   func(in *models.LeadInput, v string) { in.LeadType = v },
	"prefix":     func(in *models.LeadInput, v string) { in.Prefix = v },
	"name":       func(in *models.LeadInput, v string) { in.Name = v },
	"mobile":     func(in *models.LeadInput, v string) { in.Mobile = v },
	"phone":      func(in *models.LeadInput, v string) { in.Phone = v },
	"email":      func(in *models.LeadInput, v string) { in.Email = strings.ToLower(v) },
	"time":       func(in *models.LeadInput, v string) { in.Time = v },
	"category":   func(in *models.LeadInput, v string) { in.Category = v },
	"city":       func(in *models.LeadInput, v string) { in.City = v },
	"area":       func(in *models.LeadInput, v string) { in.Area = v },
	"brancharea": func(in *models.LeadInput, v string) { in.BranchArea = v },
	"pincode":    func(in *models.LeadInput, v string) { in.Pincode = v },
	"branchpin":  func(in *models.LeadInput, v string) { in.BranchPin = v },
	"company":    func(in *models.LeadInput, v string) { in.Company = v },
	"parentid":   func(in *models.LeadInput, v string) { in.ParentID = v },
}

// Validator validates raw lead input
type Validator struct {
	validate *validator.Validate
	position map[string]int
}

// New creates a lead validator with the lead-specific rules registered
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	mustRegister(v, "phonechars", func(fl validator.FieldLevel) bool {
		return phoneCharsRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "digits", func(fl validator.FieldLevel) bool {
		return digitsRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "hhmmss", func(fl validator.FieldLevel) bool {
		return hhmmssRe.MatchString(fl.Field().String())
	})

	position := make(map[string]int, len(fieldOrder))
	for i, f := range fieldOrder {
		position[f] = i
	}

	return &Validator{validate: v, position: position}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// StructErrors runs the rule table of a tagged query or body DTO and returns
// its violations as field errors. The error return is reserved for
// unexpected failures.
func (v *Validator) StructErrors(s any) ([]models.FieldError, error) {
	err := v.validate.Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("validate %T: %w", s, err)
	}
	fieldErrs := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fieldErrs = append(fieldErrs, models.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return fieldErrs, nil
}

// Validate coerces and validates raw input. It returns the canonical input
// or the full list of violations. The error return is reserved for
// unexpected failures and must be treated as an internal error.
func (v *Validator) Validate(raw map[string]any) (*models.LeadInput, []models.FieldError, error) {
	in := &models.LeadInput{}
	coerceErrs := make(map[string]string)

	for key, value := range raw {
		if setter, ok := stringFields[key]; ok {
			s, err := toString(value)
			if err != nil {
				coerceErrs[key] = fmt.Sprintf("%s must be a string", key)
				continue
			}
			setter(in, strings.TrimSpace(s))
		}
	}

	if value, ok := raw["date"]; ok {
		date, err := toDate(value)
		if err != nil {
			coerceErrs["date"] = "date must be a valid ISO date"
		} else {
			in.Date = date
		}
	}

	for key, dst := range map[string]**int{"dncmobile": &in.DNCMobile, "dncphone": &in.DNCPhone} {
		value, ok := raw[key]
		if !ok {
			continue
		}
		n, present, err := toInt(value)
		if err != nil {
			coerceErrs[key] = fmt.Sprintf("%s must be a number", key)
			continue
		}
		if present {
			*dst = &n
		}
	}

	fieldErrs := make([]models.FieldError, 0, len(coerceErrs))
	for field, msg := range coerceErrs {
		fieldErrs = append(fieldErrs, models.FieldError{Field: field, Message: msg})
	}

	if err := v.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, nil, fmt.Errorf("validate lead input: %w", err)
		}
		for _, fe := range verrs {
			if _, seen := coerceErrs[fe.Field()]; seen {
				continue
			}
			fieldErrs = append(fieldErrs, models.FieldError{Field: fe.Field(), Message: message(fe)})
		}
	}

	if len(fieldErrs) > 0 {
		v.sortFieldErrors(fieldErrs)
		return nil, fieldErrs, nil
	}
	return in, nil, nil
}

func (v *Validator) sortFieldErrors(errs []models.FieldError) {
	// insertion sort, the list is at most len(fieldOrder) long
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && v.position[errs[j].Field] < v.position[errs[j-1].Field]; j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "phonechars":
		return fmt.Sprintf("%s may only contain digits, spaces and + - ( )", field)
	case "digits":
		return fmt.Sprintf("%s must contain only digits", field)
	case "hhmmss":
		return fmt.Sprintf("%s must be in HH:MM:SS format", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}

// toInt coerces numeric-looking input. present is false for nil or blank values.
func toInt(value any) (n int, present bool, err error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return integral(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false, err
		}
		return integral(f)
	case bool:
		if v {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
				return integral(f)
			}
			if b, berr := strconv.ParseBool(s); berr == nil {
				return toInt(b)
			}
			return 0, false, err
		}
		return i, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported type %T", value)
	}
}

// integral accepts floats with no fractional part, such as 1.0
func integral(f float64) (int, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false, fmt.Errorf("not an integer: %v", f)
	}
	return int(f), true, nil
}

// toDate parses an ISO date or timestamp and keeps only the calendar date (UTC).
func toDate(value any) (time.Time, error) {
	var t time.Time
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		t = v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		parsed, err := ParseDate(s)
		if err != nil {
			return time.Time{}, err
		}
		t = parsed
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", value)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// dateLayouts are tried in order. Timestamps without an offset are read as UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// ParseDate accepts YYYY-MM-DD or an ISO 8601 timestamp with or without an offset
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
