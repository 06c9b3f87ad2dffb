// Package validate decodes JSON request bodies into typed inputs, applies
// defaults and checks them against struct tag rules.
package validate

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"libracatalog/internal/apperror"
	"libracatalog/internal/caldate"
	"libracatalog/internal/storage"
)

var (
	isbnPattern    = regexp.MustCompile(`^[0-9-]{10,13}$`)
	phonePattern   = regexp.MustCompile(`^[0-9-+() ]{10,20}$`)
	unknownFieldRe = regexp.MustCompile(`found unknown field: ([^,\s]+)`)
	numberFieldRe  = regexp.MustCompile(`(\w+): decode (integer|number): `)
	dateFieldRe    = regexp.MustCompile(`(\w+): unmarshalerDecoder: invalid date`)
)

// strict rejects keys the target struct does not declare. Numeric fields
// go through numberExtension.
var strict = func() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		DisallowUnknownFields:  true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&numberExtension{})
	return api
}()

// Defaulter is implemented by inputs that fill omitted optional fields.
type Defaulter interface {
	ApplyDefaults()
}

// Validator wraps a configured validator.Validate. It is safe for concurrent
// use once all struct validations are registered.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

func New() *Validator {
	val := &Validator{v: validator.New(), now: time.Now}

	val.v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Dates validate as time.Time so "required" rejects the zero day.
	val.v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(caldate.Date); ok {
			return d.Time
		}
		return nil
	}, caldate.Date{})
	val.v.RegisterValidation("isbn", func(fl validator.FieldLevel) bool {
		return isbnPattern.MatchString(fl.Field().String())
	})
	val.v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	val.v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(val.now().Year())
	})
	val.v.RegisterValidation("cents", func(fl validator.FieldLevel) bool {
		scaled := fl.Field().Float() * 100
		return math.Abs(scaled-math.Round(scaled)) < 1e-9
	})
	return val
}

// RegisterStructValidation adds a cross-field rule for the given types.
func (val *Validator) RegisterStructValidation(fn validator.StructLevelFunc, types ...any) {
	val.v.RegisterStructValidation(fn, types...)
}

// Bind decodes r into dst, applies defaults and validates the result. Every
// failure is an *apperror.Error of KindValidation.
func (val *Validator) Bind(r io.Reader, dst any) error {
	if err := strict.NewDecoder(r).Decode(dst); err != nil {
		return decodeError(err, dst)
	}
	if d, ok := dst.(Defaulter); ok {
		d.ApplyDefaults()
	}
	return val.Struct(dst)
}

// Struct validates an already decoded value.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Internal(err)
	}
	details := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apperror.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return apperror.Validation(details...)
}

// Page reads the optional skip and limit query parameters.
func (val *Validator) Page(q url.Values) (storage.Page, error) {
	var in struct {
		Skip  *int `json:"skip" validate:"omitempty,gte=0"`
		Limit *int `json:"limit" validate:"omitempty,gte=1,lte=100"`
	}
	for _, p := range []struct {
		name string
		dst  **int
	}{{"skip", &in.Skip}, {"limit", &in.Limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return storage.Page{}, apperror.Validation(apperror.FieldError{
				Field:   p.name,
				Message: fmt.Sprintf("%q must be a number", p.name),
			})
		}
		*p.dst = &n
	}
	if err := val.Struct(&in); err != nil {
		return storage.Page{}, err
	}

	var page storage.Page
	if in.Skip != nil {
		page.Offset = uint(*in.Skip)
	}
	if in.Limit != nil {
		page.Limit = uint(*in.Limit)
	}
	return page, nil
}

func decodeError(err error, dst any) error {
	if errors.Is(err, io.EOF) {
		return apperror.Validation(apperror.FieldError{Message: "request body is required"})
	}
	if m := numberFieldRe.FindStringSubmatch(err.Error()); m != nil {
		field := jsonName(dst, m[1])
		article := "a"
		if m[2] == "integer" {
			article = "an"
		}
		return apperror.Validation(apperror.FieldError{
			Field:   field,
			Message: fmt.Sprintf("%q must be %s %s", field, article, m[2]),
		})
	}
	if m := dateFieldRe.FindStringSubmatch(err.Error()); m != nil {
		field := jsonName(dst, m[1])
		return apperror.Validation(apperror.FieldError{
			Field:   field,
			Message: fmt.Sprintf("%q must be a valid date", field),
		})
	}
	if m := unknownFieldRe.FindStringSubmatch(err.Error()); m != nil {
		return apperror.Validation(apperror.FieldError{
			Field:   m[1],
			Message: fmt.Sprintf("%q is not allowed", m[1]),
		})
	}
	return apperror.Validation(apperror.FieldError{Message: "request body is not valid JSON for this resource"})
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%q must be greater than %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "isbn", "phone":
		return fmt.Sprintf("%q with value %q fails to match the required pattern", field, fmt.Sprint(fe.Value()))
	case "notfuture":
		return fmt.Sprintf("%q must not be in the future", field)
	case "cents":
		return fmt.Sprintf("%q must have no more than 2 decimal places", field)
	case "datefrom":
		return fmt.Sprintf("%q must be greater than or equal to %q", field, fe.Param())
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
