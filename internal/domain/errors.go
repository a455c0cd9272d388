package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrInvalidJob is returned when a job definition fails validation
	ErrInvalidJob = errors.New("invalid job")

	// ErrOrderNotFound is returned when no order has the requested external id
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderAlreadyExists is returned when an order id is already taken
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrInvalidOrder is returned when an order fails validation
	ErrInvalidOrder = errors.New("invalid order")

	// ErrStatusMismatch is returned when a conditional update finds an unexpected status
	ErrStatusMismatch = errors.New("status mismatch")

	// ErrOrderNotRetryable is returned when an order has no retry budget or is not FAILED
	ErrOrderNotRetryable = errors.New("order is not retryable")

	// ErrRetryNotDue is returned when an order's next retry time is still in the future
	ErrRetryNotDue = errors.New("order retry is not due yet")
)

// IsNotFound reports whether err is one of the lookup failures
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrOrderNotFound)
}
