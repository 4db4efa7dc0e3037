package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wrap wraps err in a ShareError of the given type. Component and context
// of an inner ShareError are carried over.
func Wrap(err error, errType ErrorType, code, message string) *ShareError {
	if err == nil {
		return nil
	}

	wrapped := &ShareError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeTransient || errType == ErrorTypeValidation,
	}

	var se *ShareError
	if errors.As(err, &se) {
		wrapped.Component = se.Component
		wrapped.Context = se.Context
	}

	return wrapped
}

// WrapConfig wraps an error as a configuration error.
func WrapConfig(err error, code, message string) *ShareError {
	return Wrap(err, ErrorTypeConfig, code, message)
}

// WrapInternal wraps an error as an internal error.
func WrapInternal(err error, code, message string) *ShareError {
	return Wrap(err, ErrorTypeInternal, code, message)
}

// FormatError renders err for a terminal, including the context of a
// ShareError sorted by key.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var se *ShareError
	if !errors.As(err, &se) || len(se.Context) == 0 {
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(err.Error())
	for _, key := range sortedKeys(se.Context) {
		fmt.Fprintf(&b, "\n  %s: %v", key, se.Context[key])
	}
	return b.String()
}

// ExtractCause returns the innermost cause of err.
func ExtractCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// CombineErrors joins the non-nil errors; it returns nil when there are
// none and the error itself when there is one.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &ShareError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeMultipleErrors,
		Message: fmt.Sprintf("multiple errors occurred: %s", strings.Join(messages, "; ")),
		Cause:   errors.Join(nonNil...),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
		},
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
