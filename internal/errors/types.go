package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeInternal      ErrorType = "internal"
)

// ShareError is a structured error type with context.
type ShareError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *ShareError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ShareError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ShareError) Is(target error) bool {
	var t *ShareError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ShareError) WithContext(key string, value interface{}) *ShareError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *ShareError) WithComponent(component string) *ShareError {
	e.Component = component

	return e
}

// Error creation functions

// NewAuthorizationError creates an error for a caller the access policy rejects.
func NewAuthorizationError(code, message string) *ShareError {
	return &ShareError{
		Type:        ErrorTypeAuthorization,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewNotFoundError creates an error for an unknown catalog entity.
func NewNotFoundError(code, message string) *ShareError {
	return &ShareError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewTransientError creates a serving failure (decode, transcode, archive I/O).
func NewTransientError(code, message string, cause error) *ShareError {
	return &ShareError{
		Type:        ErrorTypeTransient,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ShareError {
	return &ShareError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ShareError {
	return &ShareError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ShareError {
	return &ShareError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// TypeOf returns the ErrorType of err, or the empty string for foreign errors.
func TypeOf(err error) ErrorType {
	var se *ShareError
	if errors.As(err, &se) {
		return se.Type
	}

	return ""
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *ShareError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsAuthorizationDenied checks if an error came from the access policy.
func IsAuthorizationDenied(err error) bool {
	return TypeOf(err) == ErrorTypeAuthorization
}

// IsNotFound checks if an error reports an unknown entity.
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsTransient checks if an error is a serving failure.
func IsTransient(err error) bool {
	return TypeOf(err) == ErrorTypeTransient
}

// IsValidation checks if an error is a validation failure.
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsConfig checks if an error is a configuration failure.
func IsConfig(err error) bool {
	return TypeOf(err) == ErrorTypeConfig
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level that matches its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *ShareError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeAuthorization:
		h.logger.Warn(ctx, se, "Access denied",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	case ErrorTypeTransient, ErrorTypeNotFound, ErrorTypeValidation:
		h.logger.Warn(ctx, se, "Request failed",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	default:
		h.logger.Error(ctx, se, "Error occurred",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component)
	}
}

// Common error codes.
const (
	ErrCodePrivateNetworkOnly = "ERR_PRIVATE_NETWORK_ONLY"
	ErrCodeBookNotFound       = "ERR_BOOK_NOT_FOUND"
	ErrCodeListNotFound       = "ERR_LIST_NOT_FOUND"
	ErrCodeProviderOpen       = "ERR_PROVIDER_OPEN"
	ErrCodePageDecode         = "ERR_PAGE_DECODE"
	ErrCodePageEncode         = "ERR_PAGE_ENCODE"
	ErrCodePageRange          = "ERR_PAGE_RANGE"
	ErrCodePayloadTooLarge    = "ERR_PAYLOAD_TOO_LARGE"
	ErrCodeNotEditable        = "ERR_NOT_EDITABLE"
	ErrCodeInvalidUpdate      = "ERR_INVALID_UPDATE"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeDuplicateShare     = "ERR_DUPLICATE_SHARE"
	ErrCodeHostRunning        = "ERR_HOST_RUNNING"
	ErrCodeInternalError      = "ERR_INTERNAL"
	ErrCodeValidationFailed   = "ERR_VALIDATION_FAILED"
	ErrCodeMultipleErrors     = "ERR_MULTIPLE_ERRORS"
)

// FieldValidationError reports a single invalid field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToShareError converts the collection to a config ShareError, or nil when empty.
func (vec *ValidationErrorCollection) ToShareError() *ShareError {
	if !vec.HasErrors() {
		return nil
	}

	var messages []string
	context := make(map[string]interface{})

	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.FieldName] = map[string]interface{}{
			"value":       err.FieldValue,
			"suggestions": err.HelpText,
		}
	}

	return &ShareError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeValidationFailed,
		Message:     strings.Join(messages, "; "),
		Context:     context,
		Recoverable: false,
	}
}

// Helper functions for common errors

// ErrPrivateNetworkOnly creates the access gate denial.
func ErrPrivateNetworkOnly(addr string) *ShareError {
	return NewAuthorizationError(
		ErrCodePrivateNetworkOnly,
		"only clients in private network can connect",
	).WithContext("client", addr)
}

// ErrBookNotFound creates a book not found error.
func ErrBookNotFound(id string) *ShareError {
	return NewNotFoundError(ErrCodeBookNotFound, "book not found: "+id)
}

// ErrNotEditable creates the error returned for updates on read-only shares.
func ErrNotEditable(share string) *ShareError {
	return NewAuthorizationError(ErrCodeNotEditable, "share is not editable: "+share)
}
