package validation

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vinodismyname/sectorspace/internal/stats"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

var (
	v       *validator.Validate
	once    sync.Once
	monthRe = regexp.MustCompile(`^[0-9]{4}-(0[1-9]|1[0-2])$`)
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: input table path must be a workbook or CSV file
		_ = v.RegisterValidation("filepath_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			if s == "" {
				return false
			}
			return strings.HasSuffix(s, ".xlsx") || strings.HasSuffix(s, ".csv")
		})
		// Custom: YYYY-MM month
		_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
			return monthRe.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		// Custom: quantile edges start at 0, end at 1 and strictly increase
		_ = v.RegisterValidation("quantile_edges", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.Slice {
				return false
			}
			if f.Len() == 0 {
				return true // empty means the engine default
			}
			edges := make([]float64, f.Len())
			for i := range edges {
				e := f.Index(i)
				if e.Kind() != reflect.Float64 && e.Kind() != reflect.Float32 {
					return false
				}
				edges[i] = e.Float()
			}
			return stats.ValidateEdges(edges) == nil
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
				return false
			}
			if _, err := pagination.DecodeCursor(s); err != nil {
				return false
			}
			return true
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	if err := Validator().Struct(s); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return Message(ve[0])
		}
		return "VALIDATION: invalid inputs"
	}
	return ""
}

// Message renders a single field error.
func Message(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply cursor)", field)
	case "filepath_ext":
		return fmt.Sprintf("VALIDATION: %s must be an .xlsx or .csv file", field)
	case "month":
		return fmt.Sprintf("VALIDATION: %s must be a YYYY-MM month", field)
	case "quantile_edges":
		return fmt.Sprintf("VALIDATION: %s must start at 0, end at 1 and increase strictly", field)
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination"
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("VALIDATION: %s must be one of [%s]", field, fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
