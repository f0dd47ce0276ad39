// Package errors defines the error taxonomy shared by the policy service layers.
// Callers match with errors.Is; wrapped variants carry a more specific message
// while still matching their kind.
package errors

import (
	"fmt"
	"strings"
)

var (
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrDuplicate         = fmt.Errorf("duplicate")
	ErrDependency        = fmt.Errorf("invalid reference")

	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrForbidden       = fmt.Errorf("forbidden")

	// ErrNotificationDelivery is only raised inside the reminder sweep and never
	// reaches an API caller.
	ErrNotificationDelivery = fmt.Errorf("notification delivery failed")
)

// Dependency errors name the referenced entity that failed to resolve.
var (
	ErrProductNotFound = fmt.Errorf("%w: product not found", ErrDependency)
	ErrInvalidCustomer = fmt.Errorf("%w: invalid customer", ErrDependency)
	ErrInvalidPartner  = fmt.Errorf("%w: invalid partner", ErrDependency)
	ErrInvalidPolicy   = fmt.Errorf("%w: invalid policy", ErrDependency)
	ErrInvalidAgent    = fmt.Errorf("%w: invalid sales agent", ErrDependency)

	ErrDuplicateSale         = fmt.Errorf("%w: sale already exists for this policy", ErrDuplicate)
	ErrDuplicatePolicyNumber = fmt.Errorf("%w: policy number already in use", ErrDuplicate)
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field that failed validation. It matches
// ErrInvalidInput.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add appends a field error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed, so it can be returned directly.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
