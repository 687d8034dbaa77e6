package pool

import "errors"

var (
	// Referential errors.
	ErrPoolNotFound       = errors.New("pool not found")
	ErrNoActivePool       = errors.New("no active pool")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrBookNotFound       = errors.New("pool book not found")

	// Validation errors: rejected before any mutation.
	ErrPoolNotActive         = errors.New("pool is not active")
	ErrEmptySelection        = errors.New("no collections selected")
	ErrCollectionUnavailable = errors.New("collection is not approved for pooling")
	ErrInvalidLiters         = errors.New("liters must be greater than zero")
	ErrInsufficientMilk      = errors.New("not enough milk remaining in pool")
	ErrFatExceedsFeasible    = errors.New("manual fat percent exceeds feasible ceiling")
	ErrSnfExceedsFeasible    = errors.New("manual snf percent exceeds feasible ceiling")

	// ErrConflict is returned when a concurrent writer won the transaction
	// and the retry also failed. The pool state is untouched.
	ErrConflict = errors.New("concurrent pool update conflict")
)

// IsValidation reports whether err is a precondition failure (as opposed to
// a referential, conflict or storage error).
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrPoolNotActive, ErrEmptySelection, ErrCollectionUnavailable,
		ErrInvalidLiters, ErrInsufficientMilk, ErrFatExceedsFeasible, ErrSnfExceedsFeasible,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a referential miss.
func IsNotFound(err error) bool {
	for _, v := range []error{ErrPoolNotFound, ErrNoActivePool, ErrCollectionNotFound, ErrBookNotFound} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}
