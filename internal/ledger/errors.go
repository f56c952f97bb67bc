package ledger

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("ledger: product not found")
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	ErrInternal          = errors.New("ledger: internal fault")
)

// ValidationError rejects a single input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failed snapshot read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s: persistence failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies a failed result.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindPersistence       ErrorKind = "persistence"
	KindInternal          ErrorKind = "internal"
)

// KindOf maps an error to its kind.
func KindOf(err error) ErrorKind {
	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.As(err, &perr):
		return KindPersistence
	default:
		return KindInternal
	}
}
