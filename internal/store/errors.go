package store

import (
	stderrors "errors"
	"fmt"

	apperrors "github.com/goliatone/go-errors"

	"factory-floor-backend/internal/model"
)

// Stable error codes surfaced to the API layer.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
)

var (
	// ErrValidation rejects malformed input before any transaction runs.
	ErrValidation = apperrors.New("validation failed", apperrors.CategoryValidation).
			WithTextCode(CodeValidation)
	// ErrInvalidTransition means the current lifecycle state does not allow the operation.
	ErrInvalidTransition = apperrors.New("invalid transition", apperrors.CategoryBadInput).
				WithTextCode(CodeInvalidTransition)
	// ErrConflict means an optimistic update lost the race to a concurrent caller.
	ErrConflict = apperrors.New("conflict", apperrors.CategoryConflict).
			WithTextCode(CodeConflict)
	// ErrNotFound means the referenced order or machine does not exist.
	ErrNotFound = apperrors.New("not found", apperrors.CategoryBadInput).
			WithTextCode(CodeNotFound)
)

func cloneErr(base *apperrors.Error, message string, source error) *apperrors.Error {
	err := base.Clone()
	if message != "" {
		err.Message = message
	}
	if source != nil {
		err.Source = source
	}
	return err
}

func validationErr(format string, args ...any) error {
	return cloneErr(ErrValidation, fmt.Sprintf(format, args...), nil)
}

func invalidTransitionErr(from, to model.OrderStatus) error {
	return cloneErr(ErrInvalidTransition, fmt.Sprintf("invalid transition: %s -> %s", from, to), nil)
}

func conflictErr(format string, args ...any) error {
	return cloneErr(ErrConflict, fmt.Sprintf(format, args...), nil)
}

func notFoundErr(format string, args ...any) error {
	return cloneErr(ErrNotFound, fmt.Sprintf(format, args...), nil)
}

func dbErr(err error, message string) error {
	return apperrors.Wrap(err, apperrors.CategoryExternal, message)
}

// ErrorCode extracts the stable code from any error in the taxonomy.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsInvalidTransition reports whether err is a lifecycle precondition failure.
func IsInvalidTransition(err error) bool { return ErrorCode(err) == CodeInvalidTransition }

// IsConflict reports whether err is an optimistic concurrency loss.
func IsConflict(err error) bool { return ErrorCode(err) == CodeConflict }

// IsNotFound reports whether err refers to a missing record.
func IsNotFound(err error) bool { return ErrorCode(err) == CodeNotFound }

// IsValidation reports whether err rejected the input itself.
func IsValidation(err error) bool { return ErrorCode(err) == CodeValidation }
