package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload means a webhook body could not be turned into a
	// subscription event.
	ErrInvalidPayload = errors.New("invalid subscription payload")
	// ErrIdentityUnresolved means no local account could be linked to a
	// subscription. The record is still stored, without an owner.
	ErrIdentityUnresolved = errors.New("subscription owner could not be resolved")
	// ErrIgnoredEvent marks webhook types this subsystem does not consume.
	ErrIgnoredEvent = errors.New("webhook event type ignored")
)

// DurableStoreError wraps a failure of the durable subscription store.
type DurableStoreError struct {
	Op  string
	Err error
}

func (e *DurableStoreError) Error() string {
	return fmt.Sprintf("billing store %s: %v", e.Op, e.Err)
}

func (e *DurableStoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DurableStoreError{Op: op, Err: err}
}
