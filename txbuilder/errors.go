package txbuilder

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction marks a transfer that can never be built or signed. It is
	// not retryable: it points at bad configuration, not at the network.
	ErrConstruction = errors.New("invalid transaction description")

	// ErrBatchTooLarge is returned when a batch would not fit in the node's pool.
	ErrBatchTooLarge = errors.New("batch exceeds transaction pool capacity")
)

// ConstructionError describes why a transaction could not be built.
type ConstructionError struct {
	Nonce  uint64
	Reason string
	Err    error
}

func (e *ConstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build tx nonce=%d: %s: %v", e.Nonce, e.Reason, e.Err)
	}
	return fmt.Sprintf("build tx nonce=%d: %s", e.Nonce, e.Reason)
}

func (e *ConstructionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConstruction}
	}
	return []error{ErrConstruction, e.Err}
}
