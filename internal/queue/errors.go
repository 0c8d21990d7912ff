package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryFailed is matched by every error produced for a message the
	// platform rejected or could not confirm.
	ErrDeliveryFailed = errors.New("message delivery failed")

	// ErrWaitTimedOut means the confirmation did not arrive within the bound.
	ErrWaitTimedOut = errors.New("timed out waiting for message delivery")
)

type DeliveryError struct {
	ID     any
	Reason error
}

func (e *DeliveryError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("%s: %v", ErrDeliveryFailed, e.ID)
	}
	return fmt.Sprintf("%s: %v: %v", ErrDeliveryFailed, e.ID, e.Reason)
}

func (e *DeliveryError) Unwrap() error {
	return e.Reason
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}
