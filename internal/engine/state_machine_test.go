package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"moneychanger/internal/core"
	"moneychanger/internal/store"
)

type recordingBroadcaster struct {
	events []WSEvent
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{}
}

func (r *recordingBroadcaster) Broadcast(event string, payload any) {
	r.events = append(r.events, WSEvent{Type: event, Payload: payload, Timestamp: time.Now()})
}

func newStateMachineFixture(t *testing.T) (*TransactionStateMachine, *recordingBroadcaster, *store.WALStore) {
	t.Helper()
	dir := t.TempDir()
	txStore, err := store.OpenTransactionStore(filepath.Join(dir, "tx.jsonl"))
	if err != nil {
		t.Fatalf("OpenTransactionStore: %v", err)
	}
	t.Cleanup(func() { _ = txStore.Close() })
	walStore, err := store.OpenWALStore(filepath.Join(dir, "wal.jsonl"))
	if err != nil {
		t.Fatalf("OpenWALStore: %v", err)
	}
	t.Cleanup(func() { _ = walStore.Close() })

	tx := &core.Transaction{
		ID:           "tx-sm-1",
		Type:         core.BillToCoin,
		State:        core.StateIdle,
		TargetAmount: 500,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := txStore.Put(tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	bc := newRecordingBroadcaster()
	sm := NewTransactionStateMachine(tx, txStore, walStore, bc)
	return sm, bc, walStore
}

func TestStateMachineLegalTransitionPersistsAndBroadcasts(t *testing.T) {
	sm, bc, _ := newStateMachineFixture(t)
	ctx := context.Background()

	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if sm.Current().State != core.StateWaitingForBill {
		t.Fatalf("expected state WaitingForBill, got %s", sm.Current().State)
	}
	if len(bc.events) != 1 || bc.events[0].Type != "TransactionStateChanged" {
		t.Fatalf("expected one TransactionStateChanged broadcast, got %+v", bc.events)
	}
}

func TestStateMachineIllegalTransitionRejected(t *testing.T) {
	sm, bc, _ := newStateMachineFixture(t)
	ctx := context.Background()

	err := sm.TransitionTo(ctx, core.StateDispensing, TransitionData{})
	if err == nil {
		t.Fatalf("expected error transitioning Idle -> Dispensing")
	}
	if _, ok := err.(*core.InvalidTransition); !ok {
		t.Fatalf("expected *core.InvalidTransition, got %T: %v", err, err)
	}
	if sm.Current().State != core.StateIdle {
		t.Fatalf("rejected transition must not change state, got %s", sm.Current().State)
	}
	if len(bc.events) != 0 {
		t.Fatalf("rejected transition must not broadcast, got %+v", bc.events)
	}
}

func TestStateMachineWALEntryMarkedCompletedOnSuccess(t *testing.T) {
	sm, _, wal := newStateMachineFixture(t)
	ctx := context.Background()

	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if pending := wal.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending WAL entries after a successful transition, got %+v", pending)
	}
}

func TestStateMachineCancelFromCancellableStateTransitionsToCancelled(t *testing.T) {
	sm, _, _ := newStateMachineFixture(t)
	ctx := context.Background()

	if err := sm.Cancel(ctx); err != nil {
		t.Fatalf("cancel from Idle: %v", err)
	}
	if sm.Current().State != core.StateCancelled {
		t.Fatalf("expected Cancelled, got %s", sm.Current().State)
	}
}

func TestStateMachineCancelFromNonCancellableStateGoesToError(t *testing.T) {
	sm, _, _ := newStateMachineFixture(t)
	ctx := context.Background()

	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{}); err != nil {
		t.Fatalf("transition to WaitingForBill: %v", err)
	}
	if err := sm.TransitionTo(ctx, core.StateAuthenticating, TransitionData{}); err != nil {
		t.Fatalf("transition to Authenticating: %v", err)
	}

	if err := sm.Cancel(ctx); err != nil {
		t.Fatalf("cancel from Authenticating: %v", err)
	}
	tx := sm.Current()
	if tx.State != core.StateError {
		t.Fatalf("expected cancel from a non-cancellable state to land in Error, got %s", tx.State)
	}
	if tx.ErrorCode != "CANCELLED" {
		t.Fatalf("expected ErrorCode CANCELLED, got %q", tx.ErrorCode)
	}
}

func TestStateMachineCancelInTerminalStateIsNoOp(t *testing.T) {
	sm, bc, _ := newStateMachineFixture(t)
	ctx := context.Background()

	if err := sm.Cancel(ctx); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	eventsAfterFirstCancel := len(bc.events)

	if err := sm.Cancel(ctx); err != nil {
		t.Fatalf("second cancel on an already-terminal transaction must be a no-op, got error: %v", err)
	}
	if sm.Current().State != core.StateCancelled {
		t.Fatalf("expected state to remain Cancelled, got %s", sm.Current().State)
	}
	if len(bc.events) != eventsAfterFirstCancel {
		t.Fatalf("cancelling an already-terminal transaction must not broadcast again, got %+v", bc.events[eventsAfterFirstCancel:])
	}
}

func TestStateMachineTimeoutExpiryTransitionsCancellableStateToCancelled(t *testing.T) {
	dir := t.TempDir()
	txStore, err := store.OpenTransactionStore(filepath.Join(dir, "tx.jsonl"))
	if err != nil {
		t.Fatalf("OpenTransactionStore: %v", err)
	}
	defer txStore.Close()
	walStore, err := store.OpenWALStore(filepath.Join(dir, "wal.jsonl"))
	if err != nil {
		t.Fatalf("OpenWALStore: %v", err)
	}
	defer walStore.Close()

	tx := &core.Transaction{ID: "tx-timeout", Type: core.BillToCoin, State: core.StateIdle, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := txStore.Put(tx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sm := NewTransactionStateMachine(tx, txStore, walStore, nil)

	stateTimeouts[core.StateWaitingForBill] = 20 * time.Millisecond
	defer func() { stateTimeouts[core.StateWaitingForBill] = 60 * time.Second }()

	if err := sm.TransitionTo(context.Background(), core.StateWaitingForBill, TransitionData{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sm.Current().State == core.StateCancelled {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected timeout to cancel the transaction, final state %s", sm.Current().State)
}

func TestStateMachineResetTimeoutDoesNotChangeState(t *testing.T) {
	sm, _, _ := newStateMachineFixture(t)
	ctx := context.Background()
	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	sm.ResetTimeout()
	if sm.Current().State != core.StateWaitingForBill {
		t.Fatalf("ResetTimeout must not change state, got %s", sm.Current().State)
	}
}

func TestStateMachineApplyDataDoesNotAppendWALEntry(t *testing.T) {
	sm, _, wal := newStateMachineFixture(t)
	amount := 100
	if err := sm.ApplyData(TransitionData{InsertedAmount: &amount}); err != nil {
		t.Fatalf("apply data: %v", err)
	}
	if sm.Current().InsertedAmount != 100 {
		t.Fatalf("expected InsertedAmount 100, got %d", sm.Current().InsertedAmount)
	}
	if pending := wal.Pending(); len(pending) != 0 {
		t.Fatalf("ApplyData must not append a WAL entry, found pending %+v", pending)
	}
}
