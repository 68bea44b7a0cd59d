package ml

import (
	"errors"
	"fmt"
)

var (
	ErrModelNotLoaded  = errors.New("model not loaded, please train the model first")
	ErrUnknownCategory = errors.New("unknown category")
	ErrCodecMismatch   = errors.New("codec does not match feature schema")
	ErrBatchTooLarge   = fmt.Errorf("maximum %d customers per batch", MaxBatchSize)
	ErrEmptyDataset    = errors.New("dataset is empty")
	ErrNotFitted       = errors.New("model not trained")
)

// ValidationErrorKind classifies why a raw record was rejected.
type ValidationErrorKind string

const (
	KindMissingFields ValidationErrorKind = "missing_fields"
	KindInvalidType   ValidationErrorKind = "invalid_type"
	KindOutOfRange    ValidationErrorKind = "out_of_range"
	KindInvalidValue  ValidationErrorKind = "invalid_value"
)

// ValidationError is returned for records that do not match the customer schema.
type ValidationError struct {
	Kind    ValidationErrorKind
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UnknownCategoryError reports a categorical value the fitted encoder never saw.
type UnknownCategoryError struct {
	Feature string
	Value   string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for feature %s", e.Value, e.Feature)
}

func (e *UnknownCategoryError) Is(target error) bool {
	return target == ErrUnknownCategory
}
