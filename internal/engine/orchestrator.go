package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
	"moneychanger/internal/store"
)

// active bundles the live state machine for the one transaction the
// orchestrator currently owns. A successful StartTransaction installs
// it; any terminal-path transition clears it, under the orchestrator's
// own mutex — never an ambient global.
type active struct {
	sm *TransactionStateMachine
}

// TransactionOrchestrator is the top coordinator: it enforces at most
// one active transaction, sequences the bill-acceptance pipeline and
// dispense orchestrator against the state machine's transitions, and
// replays the write-ahead log for crash recovery on startup.
type TransactionOrchestrator struct {
	mu     sync.Mutex
	active *active

	txStore  *store.TransactionStore
	walStore *store.WALStore
	state    *core.MachineStateStore

	pipeline *BillPipeline
	dispense *DispenseOrchestrator

	broadcaster Broadcaster
	log         *logrus.Entry
}

func NewTransactionOrchestrator(
	txStore *store.TransactionStore,
	walStore *store.WALStore,
	state *core.MachineStateStore,
	pipeline *BillPipeline,
	dispense *DispenseOrchestrator,
	broadcaster Broadcaster,
	log *logrus.Logger,
) *TransactionOrchestrator {
	return &TransactionOrchestrator{
		txStore: txStore, walStore: walStore, state: state,
		pipeline: pipeline, dispense: dispense, broadcaster: broadcaster,
		log: log.WithField("component", "transaction_orchestrator"),
	}
}

// StartTransaction creates a transaction record and transitions it
// Idle -> WaitingForBill. It fails if a transaction is already active,
// if the security tamper latch is engaged, or if the requested amount
// cannot be made exactly from current inventory (a dry-run of the
// change calculator against target, not total_due).
func (o *TransactionOrchestrator) StartTransaction(ctx context.Context, txType core.TxType, targetAmount, fee int, selectedDispenseDenoms []int) (*core.Transaction, error) {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, &core.TransactionError{Message: "a transaction is already active"}
	}
	o.mu.Unlock()

	if o.state.Snapshot().Security.TamperActive {
		return nil, &core.TransactionError{Message: "cannot start a transaction while tamper is active"}
	}

	cons := o.state.Snapshot().Consumables
	if _, err := core.CalculateChange(targetAmount, billCountsByKey(cons.BillDispenserCounts), coinCountsByValue(cons.CoinCounts), selectedDispenseDenoms, core.CurrencyPHP); err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &core.Transaction{
		ID:                     uuid.NewString(),
		Type:                   txType,
		State:                  core.StateIdle,
		TargetAmount:           targetAmount,
		Fee:                    fee,
		TotalDue:               targetAmount + fee,
		InsertedDenominations:  map[string]int{},
		SelectedDispenseDenoms: append([]int(nil), selectedDispenseDenoms...),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	entry, err := o.walStore.Append(tx.ID, core.ActionTransactionCreate, nil)
	if err != nil {
		return nil, fmt.Errorf("append creation wal entry: %w", err)
	}
	if err := o.txStore.Put(tx); err != nil {
		return nil, fmt.Errorf("persist new transaction: %w", err)
	}
	if err := o.walStore.SetStatus(entry.ID, core.WALCompleted); err != nil {
		return nil, fmt.Errorf("mark creation wal entry completed: %w", err)
	}

	sm := NewTransactionStateMachine(tx, o.txStore, o.walStore, o.broadcaster)
	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{}); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active = &active{sm: sm}
	o.mu.Unlock()

	return sm.Current(), nil
}

// HandleBillInserted runs one bill-acceptance pipeline cycle against the
// active transaction. On rejection the transaction returns to
// WaitingForBill with the rejection reason recorded and its timeout
// reset. On success the sort/store sequence has already completed
// inside the pipeline by the time Run returns, so the state machine
// takes the Sorting state and immediately leaves it again, then the
// inserted amount is updated and the transaction advances to
// WaitingForConfirmation once the total due is met.
func (o *TransactionOrchestrator) HandleBillInserted(ctx context.Context) (*core.Transaction, error) {
	sm, err := o.requireActive()
	if err != nil {
		return nil, err
	}
	tx := sm.Current()
	if tx.State != core.StateWaitingForBill {
		return nil, &core.TransactionError{TxID: tx.ID, Message: "bill acceptance is only valid in WaitingForBill"}
	}

	if err := sm.TransitionTo(ctx, core.StateAuthenticating, TransitionData{}); err != nil {
		return nil, err
	}

	result, err := o.pipeline.Run(ctx)
	if err != nil {
		_ = sm.TransitionTo(ctx, core.StateError, TransitionData{ErrorCode: "PIPELINE_ERROR", ErrorMessage: err.Error()})
		o.clearActive(tx.ID)
		return sm.Current(), err
	}

	if !result.Success {
		if terr := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{LastRejection: result.Reason}); terr != nil {
			return nil, terr
		}
		sm.ResetTimeout()
		return sm.Current(), nil
	}

	if err := sm.TransitionTo(ctx, core.StateSorting, TransitionData{}); err != nil {
		return nil, err
	}

	cur := sm.Current()
	if entry, err := o.walStore.Append(cur.ID, core.ActionBillAccepted, nil); err != nil {
		o.log.WithError(err).Warn("append bill-accepted wal entry")
	} else if err := o.walStore.SetStatus(entry.ID, core.WALCompleted); err != nil {
		o.log.WithError(err).Warn("mark bill-accepted wal entry completed")
	}
	insertedAmount := cur.InsertedAmount + result.Value
	denomKey := fmt.Sprintf("%d", result.Value)
	insertedDenoms := cloneIntMap(cur.InsertedDenominations)
	insertedDenoms[denomKey]++

	if err := sm.TransitionTo(ctx, core.StateWaitingForBill, TransitionData{
		InsertedAmount:        &insertedAmount,
		InsertedDenominations: insertedDenoms,
	}); err != nil {
		return nil, err
	}

	if insertedAmount >= cur.TotalDue {
		if err := sm.TransitionTo(ctx, core.StateWaitingForConfirmation, TransitionData{}); err != nil {
			return nil, err
		}
	} else {
		sm.ResetTimeout()
	}

	return sm.Current(), nil
}

// HandleCoinInserted records one coin-insertion event against the
// active transaction. It is a no-op unless the transaction is currently
// in WaitingForBill.
func (o *TransactionOrchestrator) HandleCoinInserted(ctx context.Context, denom core.CoinDenom, total int) (*core.Transaction, error) {
	sm, err := o.requireActive()
	if err != nil {
		return nil, err
	}
	tx := sm.Current()
	if tx.State != core.StateWaitingForBill {
		return tx, nil
	}

	value := core.CoinValue(denom)
	insertedAmount := tx.InsertedAmount + value
	denomKey := fmt.Sprintf("%d", value)
	insertedDenoms := cloneIntMap(tx.InsertedDenominations)
	insertedDenoms[denomKey]++

	if o.broadcaster != nil {
		o.broadcaster.Broadcast("CoinInserted", map[string]any{
			"transaction_id": tx.ID, "denom": denom, "inserted_amount": insertedAmount,
		})
	}

	if insertedAmount >= tx.TotalDue {
		if err := sm.TransitionTo(ctx, core.StateWaitingForConfirmation, TransitionData{
			InsertedAmount: &insertedAmount, InsertedDenominations: insertedDenoms,
		}); err != nil {
			return nil, err
		}
		return sm.Current(), nil
	}

	if err := sm.ApplyData(TransitionData{InsertedAmount: &insertedAmount, InsertedDenominations: insertedDenoms}); err != nil {
		return nil, err
	}
	sm.ResetTimeout()
	return sm.Current(), nil
}

// ConfirmTransaction computes the dispense plan for target_amount (the
// fee is retained, not dispensed), transitions into Dispensing, and
// executes the dispense orchestrator. The active slot is cleared
// regardless of outcome, since both Complete and Error are terminal.
func (o *TransactionOrchestrator) ConfirmTransaction(ctx context.Context) (*core.Transaction, error) {
	sm, err := o.requireActive()
	if err != nil {
		return nil, err
	}
	tx := sm.Current()
	if tx.State != core.StateWaitingForConfirmation {
		return nil, &core.TransactionError{TxID: tx.ID, Message: "confirm is only valid in WaitingForConfirmation"}
	}

	cons := o.state.Snapshot().Consumables
	plan, err := core.CalculateChange(tx.TargetAmount, billCountsByKey(cons.BillDispenserCounts), coinCountsByValue(cons.CoinCounts), tx.SelectedDispenseDenoms, core.CurrencyPHP)
	if err != nil {
		_ = sm.TransitionTo(ctx, core.StateError, TransitionData{ErrorCode: "PLAN_FAILED", ErrorMessage: err.Error()})
		o.clearActive(tx.ID)
		return sm.Current(), nil
	}

	if err := sm.TransitionTo(ctx, core.StateDispensing, TransitionData{DispensePlan: &plan}); err != nil {
		return nil, err
	}

	result, err := o.dispense.Execute(ctx, tx.ID, plan)
	if err != nil {
		_ = sm.TransitionTo(ctx, core.StateError, TransitionData{ErrorCode: "DISPENSE_FAILED", ErrorMessage: err.Error()})
		o.clearActive(tx.ID)
		return sm.Current(), nil
	}

	dispensedAmount := result.TotalDispensed
	if result.Success {
		if err := sm.TransitionTo(ctx, core.StateComplete, TransitionData{
			DispensedAmount: &dispensedAmount, DispenseResult: result,
		}); err != nil {
			return nil, err
		}
	} else {
		if err := sm.TransitionTo(ctx, core.StateError, TransitionData{
			DispensedAmount: &dispensedAmount, DispenseResult: result,
			ErrorCode:    "PARTIAL_DISPENSE",
			ErrorMessage: fmt.Sprintf("dispensed=%d shortfall=%d claim_ticket=%s", result.TotalDispensed, result.Shortfall, result.ClaimTicketCode),
		}); err != nil {
			return nil, err
		}
	}

	o.clearActive(tx.ID)
	return sm.Current(), nil
}

// CancelTransaction delegates to the active state machine's cancellation
// policy and clears the active slot.
func (o *TransactionOrchestrator) CancelTransaction(ctx context.Context) (*core.Transaction, error) {
	sm, err := o.requireActive()
	if err != nil {
		return nil, err
	}
	if err := sm.Cancel(ctx); err != nil {
		return nil, err
	}
	tx := sm.Current()
	o.clearActive(tx.ID)
	return tx, nil
}

// CurrentTransaction returns the active transaction's current state, or
// nil if none is active.
func (o *TransactionOrchestrator) CurrentTransaction() *core.Transaction {
	o.mu.Lock()
	a := o.active
	o.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.sm.Current()
}

func (o *TransactionOrchestrator) requireActive() (*TransactionStateMachine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil, &core.TransactionError{Message: "no active transaction"}
	}
	return o.active.sm, nil
}

func (o *TransactionOrchestrator) clearActive(txID string) {
	o.mu.Lock()
	if o.active != nil && o.active.sm.Current().ID == txID {
		o.active = nil
	}
	o.mu.Unlock()
}

// RecoverCrashedTransactions scans the WAL for entries left Pending by a
// process that died mid-transition and resolves each one to a terminal
// Error state, rolling back the WAL entry itself. Recovery is
// best-effort: a failure on one entry is logged and the scan continues.
// Running it twice is a no-op the second time, since Completed and
// RolledBack entries are skipped.
func (o *TransactionOrchestrator) RecoverCrashedTransactions(ctx context.Context) {
	for _, entry := range o.walStore.Pending() {
		if err := o.recoverOne(ctx, entry); err != nil {
			o.log.WithError(err).WithField("wal_id", entry.ID).Error("crash recovery failed for entry")
		}
	}
}

func (o *TransactionOrchestrator) recoverOne(ctx context.Context, entry core.WALEntry) error {
	tx, ok := o.txStore.Get(entry.TransactionID)
	if !ok {
		return o.walStore.SetStatus(entry.ID, core.WALRolledBack)
	}

	now := time.Now()
	tx.State = core.StateError
	tx.ErrorCode = "CRASH_RECOVERY"
	tx.ErrorMessage = "Recovered from pending action: " + entry.Action
	tx.UpdatedAt = now
	tx.CompletedAt = &now
	if err := o.txStore.Put(tx); err != nil {
		return fmt.Errorf("persist recovered transaction %s: %w", tx.ID, err)
	}
	return o.walStore.SetStatus(entry.ID, core.WALRolledBack)
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func billCountsByKey(m map[core.BillDenom]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func coinCountsByValue(m map[core.CoinDenom]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[int(k)] = v
	}
	return out
}
