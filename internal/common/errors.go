package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
)

// Category classifies a failure for the retry policy. Exactly three
// categories are retriable; everything else routes straight to the
// dead-letter channel.
type Category string

const (
	CategoryNotFound          Category = "NOT_FOUND"
	CategoryUnsupportedInput  Category = "UNSUPPORTED_INPUT"
	CategoryProviderTransient Category = "PROVIDER_TRANSIENT"
	CategoryProviderPermanent Category = "PROVIDER_PERMANENT"
	CategoryValidationFailure Category = "VALIDATION_FAILURE"
	CategoryStorageFailure    Category = "STORAGE_FAILURE"
)

// Retriable reports whether the coordinator may retry a failure of this category.
func Retriable(c Category) bool {
	switch c {
	case CategoryProviderTransient, CategoryValidationFailure, CategoryStorageFailure:
		return true
	default:
		return false
	}
}

// StageError carries the failure category alongside the stage and input key
// so the coordinator can classify without string matching.
type StageError struct {
	Stage    constants.StageName
	Key      string
	Category Category
	Err      error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s [%s]: %v", e.Stage, e.Key, e.Category, e.Err)
	}
	return fmt.Sprintf("%s %s [%s]", e.Stage, e.Key, e.Category)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage context and a category.
func NewStageError(stage constants.StageName, key string, category Category, err error) *StageError {
	return &StageError{Stage: stage, Key: key, Category: category, Err: err}
}

// Sentinel errors for terminal conditions.
var (
	ErrAssetNotFound         = errors.New("asset not found")
	ErrUnsupportedFormat     = errors.New("unsupported input format")
	ErrSchemaVersionMismatch = errors.New("summary schema version mismatch")
)

// Categorize extracts the category from an error chain. Context deadline
// overruns count as transient: the invocation exceeded its bounded duration
// and is eligible for retry.
func Categorize(err error) Category {
	var se *StageError
	if errors.As(err, &se) {
		return se.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryProviderTransient
	}
	return CategoryStorageFailure
}
