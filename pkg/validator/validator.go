package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	currencyPattern    = regexp.MustCompile(`^[A-Z]{3}$`)
	quoteNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_./-]*$`)
)

// ValidationError represents a single field validation failure. Field is the
// JSON name of the failing field; Path includes parent fields and slice
// indexes, e.g. "lineItems[1].quantity".
type ValidationError struct {
	Field string `json:"field"`
	Path  string `json:"path,omitempty"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		name := err.Path
		if name == "" {
			name = err.Field
		}
		if err.Param != "" {
			parts[i] = name + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = name + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a record or payload using the registered rules.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Path:  fieldPath(fe.Namespace()),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}

// RegisterValidation adds a custom rule.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		// Both patterns compile at init; registration cannot fail.
		_ = validate.RegisterValidation("currency", matches(currencyPattern))
		_ = validate.RegisterValidation("quote_number", matches(quoteNumberPattern))
	})
	return validate
}

func matches(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}
}

func jsonName(fld reflect.StructField) string {
	name := fld.Tag.Get("json")
	if comma := strings.Index(name, ","); comma != -1 {
		name = name[:comma]
	}
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// fieldPath strips the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if dot := strings.Index(namespace, "."); dot != -1 {
		return namespace[dot+1:]
	}
	return namespace
}
