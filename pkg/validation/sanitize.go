package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/jordanlanch/leadbridge/pkg/models"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Sanitize returns a copy of a validated input with every string field
// collapsed to single spaces and trimmed. Non-string fields are untouched.
func Sanitize(in *models.LeadInput) *models.LeadInput {
	if in == nil {
		return nil
	}
	out := *in

	rv := reflect.ValueOf(&out).Elem()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(CollapseWhitespace(f.String()))
		}
	}
	return &out
}

// CollapseWhitespace replaces whitespace runs with one space and trims the ends
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
