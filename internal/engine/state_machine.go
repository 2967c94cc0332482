package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"moneychanger/internal/core"
	"moneychanger/internal/store"
)

// transitionTable enumerates every legal (from, to) pair. Anything absent
// is rejected with *core.InvalidTransition.
var transitionTable = map[core.TxState][]core.TxState{
	core.StateIdle:                   {core.StateWaitingForBill, core.StateCancelled},
	core.StateWaitingForBill:         {core.StateAuthenticating, core.StateWaitingForConfirmation, core.StateCancelled, core.StateError},
	core.StateAuthenticating:         {core.StateSorting, core.StateWaitingForBill, core.StateError},
	core.StateSorting:                {core.StateWaitingForBill, core.StateError},
	core.StateWaitingForConfirmation: {core.StateDispensing, core.StateCancelled},
	core.StateDispensing:             {core.StateComplete, core.StateError},
	core.StateComplete:               {core.StateIdle},
	core.StateCancelled:              {core.StateIdle},
	core.StateError:                  {core.StateIdle},
}

var cancellableStates = map[core.TxState]bool{
	core.StateIdle:                   true,
	core.StateWaitingForBill:         true,
	core.StateWaitingForConfirmation: true,
}

var terminalStates = map[core.TxState]bool{
	core.StateComplete:  true,
	core.StateCancelled: true,
	core.StateError:     true,
}

var stateTimeouts = map[core.TxState]time.Duration{
	core.StateWaitingForBill:         60 * time.Second,
	core.StateAuthenticating:         10 * time.Second,
	core.StateSorting:                10 * time.Second,
	core.StateWaitingForConfirmation: 60 * time.Second,
	core.StateDispensing:             30 * time.Second,
}

func isValidTransition(from, to core.TxState) bool {
	for _, candidate := range transitionTable[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionData carries the optional fields a transition may merge into
// the transaction record.
type TransitionData struct {
	InsertedAmount        *int
	DispensedAmount       *int
	InsertedDenominations map[string]int
	DispensePlan          *core.DispensePlan
	DispenseResult        *core.DispenseResult
	ErrorCode             string
	ErrorMessage          string
	LastRejection         string
}

func (d TransitionData) apply(tx *core.Transaction) {
	if d.InsertedAmount != nil {
		tx.InsertedAmount = *d.InsertedAmount
	}
	if d.DispensedAmount != nil {
		tx.DispensedAmount = *d.DispensedAmount
	}
	if d.InsertedDenominations != nil {
		tx.InsertedDenominations = d.InsertedDenominations
	}
	if d.DispensePlan != nil {
		tx.DispensePlan = d.DispensePlan
	}
	if d.DispenseResult != nil {
		tx.DispenseResult = d.DispenseResult
	}
	if d.ErrorCode != "" {
		tx.ErrorCode = d.ErrorCode
	}
	if d.ErrorMessage != "" {
		tx.ErrorMessage = d.ErrorMessage
	}
	if d.LastRejection != "" {
		tx.LastRejection = d.LastRejection
	}
}

// TransactionStateMachine drives a single transaction's lifecycle: every
// transition is logged to the write-ahead log before the persisted
// record is updated, and is marked Completed only once that update has
// committed. A per-state timer moves a transaction held too long in a
// state to Cancelled (from a cancellable state) or Error, with error code
// TIMEOUT.
type TransactionStateMachine struct {
	mu sync.Mutex

	tx          *core.Transaction
	txStore     *store.TransactionStore
	walStore    *store.WALStore
	broadcaster Broadcaster

	timer    *time.Timer
	timerGen uint64
}

// NewTransactionStateMachine constructs a state machine bound to tx,
// which must already be persisted once by the caller.
func NewTransactionStateMachine(tx *core.Transaction, txStore *store.TransactionStore, walStore *store.WALStore, broadcaster Broadcaster) *TransactionStateMachine {
	return &TransactionStateMachine{tx: tx, txStore: txStore, walStore: walStore, broadcaster: broadcaster}
}

// Current returns a deep copy of the transaction's current state.
func (m *TransactionStateMachine) Current() *core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx.Clone()
}

// TransitionTo moves the transaction from its current state to `to`,
// persisting the change via a WAL-then-record discipline, and arms the
// new state's timeout timer.
func (m *TransactionStateMachine) TransitionTo(ctx context.Context, to core.TxState, data TransitionData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.tx.State
	if !isValidTransition(from, to) {
		return &core.InvalidTransition{From: from, To: to}
	}

	m.stopTimerLocked()

	action := fmt.Sprintf("STATE_%s_TO_%s", strings.ToUpper(string(from)), strings.ToUpper(string(to)))
	entry, err := m.walStore.Append(m.tx.ID, action, nil)
	if err != nil {
		return fmt.Errorf("append wal entry: %w", err)
	}

	m.tx.State = to
	data.apply(m.tx)
	m.tx.UpdatedAt = time.Now()
	if terminalStates[to] {
		now := time.Now()
		m.tx.CompletedAt = &now
	}

	if err := m.txStore.Put(m.tx); err != nil {
		return fmt.Errorf("persist transaction: %w", err)
	}

	if err := m.walStore.SetStatus(entry.ID, core.WALCompleted); err != nil {
		return fmt.Errorf("mark wal entry completed: %w", err)
	}

	m.armTimerLocked(to)
	m.broadcastTransitionLocked(from, to)
	return nil
}

// ApplyData merges data into the transaction without transitioning
// state — used for updates that don't cross a state boundary (e.g. a
// coin insertion that doesn't yet reach the target amount). Unlike
// TransitionTo this does not append a WAL entry; WAL entries record state
// transitions only.
func (m *TransactionStateMachine) ApplyData(data TransitionData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data.apply(m.tx)
	m.tx.UpdatedAt = time.Now()
	if err := m.txStore.Put(m.tx); err != nil {
		return fmt.Errorf("persist transaction: %w", err)
	}
	return nil
}

// ResetTimeout rearms the current state's timer without transitioning.
func (m *TransactionStateMachine) ResetTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.armTimerLocked(m.tx.State)
}

// Cancel applies the cancellation policy for the current state: terminal
// states are a no-op, cancellable states go to Cancelled, everything else
// lands in Error with code CANCELLED.
func (m *TransactionStateMachine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	state := m.tx.State
	m.mu.Unlock()

	switch {
	case terminalStates[state]:
		return nil
	case cancellableStates[state]:
		return m.TransitionTo(ctx, core.StateCancelled, TransitionData{})
	default:
		return m.TransitionTo(ctx, core.StateError, TransitionData{ErrorCode: "CANCELLED", ErrorMessage: "transaction cancelled from " + string(state)})
	}
}

func (m *TransactionStateMachine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

func (m *TransactionStateMachine) armTimerLocked(state core.TxState) {
	d, ok := stateTimeouts[state]
	if !ok {
		return
	}
	gen := m.timerGen
	m.timer = time.AfterFunc(d, func() { m.onTimerExpired(gen, state) })
}

func (m *TransactionStateMachine) onTimerExpired(gen uint64, expiredState core.TxState) {
	m.mu.Lock()
	if gen != m.timerGen || m.tx.State != expiredState {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx := context.Background()
	if cancellableStates[expiredState] {
		_ = m.TransitionTo(ctx, core.StateCancelled, TransitionData{ErrorCode: "TIMEOUT", ErrorMessage: string(expiredState)})
		return
	}
	_ = m.TransitionTo(ctx, core.StateError, TransitionData{ErrorCode: "TIMEOUT", ErrorMessage: string(expiredState)})
}

func (m *TransactionStateMachine) broadcastTransitionLocked(from, to core.TxState) {
	if m.broadcaster == nil {
		return
	}
	payload := map[string]any{"transaction_id": m.tx.ID, "from": from, "to": to}
	switch to {
	case core.StateComplete:
		m.broadcaster.Broadcast("TransactionComplete", payload)
	case core.StateCancelled:
		m.broadcaster.Broadcast("TransactionCancelled", payload)
	case core.StateError:
		payload["error_code"] = m.tx.ErrorCode
		payload["error_message"] = m.tx.ErrorMessage
		m.broadcaster.Broadcast("TransactionError", payload)
	default:
		m.broadcaster.Broadcast("TransactionStateChanged", payload)
	}
}
