package core

import (
	"fmt"
	"time"
)

// SerialError reports a failure on a peripheral link: a write error, a Send
// while another request is in flight, or the link closing under a pending
// Send. It is surfaced to the caller and never retried automatically.
type SerialError struct {
	Port string
	Err  error
}

func (e *SerialError) Error() string {
	return fmt.Sprintf("serial error on %s: %v", e.Port, e.Err)
}

func (e *SerialError) Unwrap() error { return e.Err }

// TimeoutError reports that a send received no response within its budget.
type TimeoutError struct {
	Command string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s response after %s", e.Command, e.Elapsed)
}

// HardwareError is a structured error reported by firmware in an ERROR
// response frame. Dispensed, when present, records how many units were
// actually dispensed before the fault.
type HardwareError struct {
	Code      string
	Dispensed int
	HasCount  bool
}

func (e *HardwareError) Error() string {
	if e.HasCount {
		return fmt.Sprintf("hardware error %s (dispensed=%d)", e.Code, e.Dispensed)
	}
	return fmt.Sprintf("hardware error %s", e.Code)
}

// InvalidTransition reports a rejected transaction state-machine transition.
type InvalidTransition struct {
	From TxState
	To   TxState
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// TransactionError reports an orchestrator precondition failure: an active
// transaction conflict, tamper lockout, or an impossible dispense.
type TransactionError struct {
	TxID    string
	Message string
}

func (e *TransactionError) Error() string {
	if e.TxID == "" {
		return e.Message
	}
	return fmt.Sprintf("transaction %s: %s", e.TxID, e.Message)
}

// InsufficientInventory reports that the change calculator could not make
// exact change from available inventory.
type InsufficientInventory struct {
	Requested int
	Available int
	Shortfall int
}

func (e *InsufficientInventory) Error() string {
	return fmt.Sprintf("insufficient inventory: requested=%d available=%d shortfall=%d",
		e.Requested, e.Available, e.Shortfall)
}

// StorageFull is the error kind for a bill denomination's storage group
// being at capacity. The bill-acceptance pipeline does not construct it: it
// reports a full storage group as a BillRejected event and a STORAGE_FULL
// pipeline result instead of an error.
type StorageFull struct {
	Denom BillDenom
}

func (e *StorageFull) Error() string {
	return fmt.Sprintf("storage full for %s", e.Denom)
}
