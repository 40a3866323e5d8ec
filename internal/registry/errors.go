package registry

import (
	"errors"
	"fmt"
)

var (
	ErrFarmerNotFound  = errors.New("farmer not found")
	ErrHarvestNotFound = errors.New("harvest not found")
)

// ValidationError reports input rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
