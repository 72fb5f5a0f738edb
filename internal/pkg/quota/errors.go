package quota

import "fmt"

// StoreError wraps a usage/plan store failure so callers can distinguish
// store trouble from business outcomes.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("quota: store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
