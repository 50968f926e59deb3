package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrReleaseUnsupported is returned by Unlock on transaction scoped
	// handles. Those locks are released when the transaction ends.
	ErrReleaseUnsupported = errors.New("lock: transaction scoped locks are released at transaction end")

	// ErrUnsupported is wrapped by providers for statements they cannot serve.
	ErrUnsupported = errors.New("lock: statement not supported by provider")
)

// ProviderError is returned when the provider fails to run a statement.
type ProviderError struct {
	// Op is the statement that failed.
	Op Statement
	// Key is the bound key, if the statement binds one.
	Key    int64
	HasKey bool
	Err    error
}

func newProviderError(op Statement, err error) *ProviderError {
	return &ProviderError{Op: op, Err: err}
}

func newKeyedProviderError(op Statement, key int64, err error) *ProviderError {
	return &ProviderError{Op: op, Key: key, HasKey: true, Err: err}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.HasKey {
		return fmt.Sprintf("lock: %s(%d): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("lock: %s: %v", e.Op, e.Err)
}

// Unwrap returns the provider's error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is checks if err is ProviderError.
func (e *ProviderError) Is(err error) bool {
	_, ok := err.(*ProviderError)
	return ok
}

// IsProviderError checks if err is a provider error.
func IsProviderError(err error) bool {
	return errors.Is(err, &ProviderError{})
}

// AsProviderError return err as ProviderError or nil if it is not
// successful.
func AsProviderError(err error) (perr *ProviderError, b bool) {
	if errors.As(err, &perr) {
		return perr, true
	}

	return nil, false
}
