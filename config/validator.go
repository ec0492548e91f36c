package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("env", validateEnvironment)
	validate.RegisterStructValidation(validateStorage, StorageConfig{})
	validate.RegisterStructValidation(validateEvents, EventsConfig{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: formatValidationError(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	case "backoff":
		return "must be positive and not above max_backoff"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	}
	return false
}

// validateStorage requires the location of the selected backend.
func validateStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(StorageConfig)
	switch s.Type {
	case StorageFile:
		if s.File.Path == "" {
			sl.ReportError(s.File.Path, "File.Path", "path", "required", "")
		}
	case StorageBadger:
		if s.Badger.Path == "" {
			sl.ReportError(s.Badger.Path, "Badger.Path", "path", "required", "")
		}
	case StorageRedis:
		if s.Redis.Address == "" {
			sl.ReportError(s.Redis.Address, "Redis.Address", "address", "required", "")
		}
	case StorageSQLite:
		if s.SQLite.DSN == "" {
			sl.ReportError(s.SQLite.DSN, "SQLite.DSN", "dsn", "required", "")
		}
	}
}

func validateEvents(sl validator.StructLevel) {
	e := sl.Current().Interface().(EventsConfig)
	if e.Type == "" || e.Type == EventsNone {
		return
	}
	if e.Type == EventsNATS && e.NATS.URL == "" {
		sl.ReportError(e.NATS.URL, "NATS.URL", "url", "required", "")
	}
	if e.Retry.InitialBackoff <= 0 || e.Retry.MaxBackoff < e.Retry.InitialBackoff {
		sl.ReportError(e.Retry.InitialBackoff, "Retry.InitialBackoff", "initial_backoff", "backoff", "")
	}
}
