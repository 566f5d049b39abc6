package validation

import "strings"

// FieldError reports one invalid field of a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every field error of a payload so callers
// learn about all problems in one round trip. Validators return it
// through the error interface; retrieve it with errors.As.
type ValidationErrors []*FieldError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	messages := make([]string, len(e))
	for i, fieldErr := range e {
		messages[i] = fieldErr.Error()
	}
	return strings.Join(messages, "; ")
}
