package engine

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
	"moneychanger/internal/serial"
	"moneychanger/internal/store"
)

const claimTicketAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DispenseOrchestrator executes a DispensePlan against the physical bill
// and coin dispensers: it reserves inventory optimistically, dispenses
// bills before coins, stops at the first hardware failure, and
// reconciles any units it reserved but never actually ejected back into
// the machine state store. A shortfall produces a claim ticket the
// attendant can redeem against later.
type DispenseOrchestrator struct {
	bill        *serial.BillController
	coin        *serial.CoinSecurityController
	state       *core.MachineStateStore
	walStore    *store.WALStore
	broadcaster Broadcaster
	log         *logrus.Entry
}

func NewDispenseOrchestrator(bill *serial.BillController, coin *serial.CoinSecurityController, state *core.MachineStateStore, walStore *store.WALStore, broadcaster Broadcaster, log *logrus.Logger) *DispenseOrchestrator {
	return &DispenseOrchestrator{
		bill: bill, coin: coin, state: state, walStore: walStore, broadcaster: broadcaster,
		log: log.WithField("component", "dispense_orchestrator"),
	}
}

// dispensed tracks, per plan item, how many units were actually ejected
// by the hardware so reconciliation can add the rest back to inventory.
type dispensed struct {
	item   core.DispensePlanItem
	actual int
}

// Execute dispenses plan for transaction txID and returns the result to
// be recorded on the transaction.
func (o *DispenseOrchestrator) Execute(ctx context.Context, txID string, plan core.DispensePlan) (*core.DispenseResult, error) {
	entry, err := o.walStore.Append(txID, core.ActionDispenseStart, nil)
	if err != nil {
		return nil, fmt.Errorf("append dispense-start wal entry: %w", err)
	}

	reserveEntry, err := o.walStore.Append(txID, core.ActionReserveInventory, nil)
	if err != nil {
		return nil, fmt.Errorf("append reserve-inventory wal entry: %w", err)
	}
	reserved := o.reserve(plan)
	if err := o.walStore.SetStatus(reserveEntry.ID, core.WALCompleted); err != nil {
		o.log.WithError(err).Error("mark reserve-inventory wal entry completed")
	}

	results := make([]dispensed, len(plan.Items))
	partialFailure := false
	for i, item := range plan.Items {
		if item.Kind != "bill" {
			continue
		}
		if partialFailure {
			results[i] = dispensed{item: item, actual: 0}
			continue
		}
		actual := o.dispenseBillItem(ctx, item)
		results[i] = dispensed{item: item, actual: actual}
		if actual < item.Count {
			partialFailure = true
		}
		o.broadcastProgress(txID, i+1, len(plan.Items))
	}

	for i, item := range plan.Items {
		if item.Kind != "coin" {
			continue
		}
		if partialFailure {
			results[i] = dispensed{item: item, actual: 0}
			continue
		}
		actual := o.dispenseCoinItem(ctx, item)
		results[i] = dispensed{item: item, actual: actual}
		if actual < item.Count {
			partialFailure = true
		}
		o.broadcastProgress(txID, i+1, len(plan.Items))
	}

	o.reconcile(results, reserved)

	result := o.buildResult(results, plan.TotalAmount)

	if result.Shortfall > 0 {
		ticket, err := generateClaimTicket()
		if err != nil {
			o.log.WithError(err).Error("claim ticket generation failed")
		} else {
			result.ClaimTicketCode = ticket
		}
	}

	if err := o.walStore.SetStatus(entry.ID, core.WALCompleted); err != nil {
		o.log.WithError(err).Error("mark dispense-start wal entry completed")
	}
	if doneEntry, err := o.walStore.Append(txID, core.ActionDispenseComplete, nil); err != nil {
		o.log.WithError(err).Error("append dispense-complete wal entry")
	} else if err := o.walStore.SetStatus(doneEntry.ID, core.WALCompleted); err != nil {
		o.log.WithError(err).Error("mark dispense-complete wal entry completed")
	}

	payload := map[string]any{
		"transaction_id":  txID,
		"success":         result.Success,
		"total_dispensed": result.TotalDispensed,
		"shortfall":       result.Shortfall,
		"dispensed_bills": result.DispensedBills,
		"dispensed_coins": result.DispensedCoins,
	}
	if result.ClaimTicketCode != "" {
		payload["claim_ticket"] = result.ClaimTicketCode
	}
	if o.broadcaster != nil {
		o.broadcaster.Broadcast("DispenseComplete", payload)
	}

	return result, nil
}

// reserve optimistically removes every plan item's count from inventory
// up front and returns, per plan item, how many units were actually on hand
// to reserve (the store saturates at 0); reconcile adds back whatever of
// that the hardware did not actually dispense.
func (o *DispenseOrchestrator) reserve(plan core.DispensePlan) []int {
	reserved := make([]int, len(plan.Items))
	for i, item := range plan.Items {
		inv := o.state.Snapshot().Consumables
		if item.Kind == "bill" {
			reserved[i] = min(item.Count, inv.BillDispenserCounts[core.BillDenom(item.Denom)])
			o.state.DecrementBillDispenser(core.BillDenom(item.Denom), item.Count)
		} else {
			reserved[i] = min(item.Count, inv.CoinCounts[core.CoinDenom(item.PerUnit)])
			o.state.DecrementCoin(core.CoinDenom(item.PerUnit), item.Count)
		}
	}
	return reserved
}

func (o *DispenseOrchestrator) dispenseBillItem(ctx context.Context, item core.DispensePlanItem) int {
	denom := core.BillDenom(item.Denom)
	actual, err := o.bill.Dispense(ctx, denom, item.Count)
	if err == nil {
		return actual
	}
	if hwErr, ok := err.(*core.HardwareError); ok && hwErr.HasCount {
		o.log.WithFields(logrus.Fields{"denom": denom, "requested": item.Count, "dispensed": hwErr.Dispensed}).Warn("bill dispense partial failure")
		return hwErr.Dispensed
	}
	o.log.WithError(err).WithField("denom", denom).Error("bill dispense failed")
	return 0
}

func (o *DispenseOrchestrator) dispenseCoinItem(ctx context.Context, item core.DispensePlanItem) int {
	denom := core.CoinDenom(item.PerUnit)
	actual, err := o.coin.CoinDispense(ctx, denom, item.Count)
	if err == nil {
		return actual
	}
	if hwErr, ok := err.(*core.HardwareError); ok && hwErr.HasCount {
		o.log.WithFields(logrus.Fields{"denom": denom, "requested": item.Count, "dispensed": hwErr.Dispensed}).Warn("coin dispense partial failure")
		return hwErr.Dispensed
	}
	o.log.WithError(err).WithField("denom", denom).Error("coin dispense failed")
	return 0
}

// reconcile adds back every unit that was reserved but never dispensed.
func (o *DispenseOrchestrator) reconcile(results []dispensed, reserved []int) {
	for i, r := range results {
		short := reserved[i] - r.actual
		if short <= 0 {
			continue
		}
		if r.item.Kind == "bill" {
			o.state.IncrementBillDispenser(core.BillDenom(r.item.Denom), short)
		} else {
			o.state.IncrementCoin(core.CoinDenom(r.item.PerUnit), short)
		}
	}
}

func (o *DispenseOrchestrator) buildResult(results []dispensed, targetAmount int) *core.DispenseResult {
	bills := map[core.BillDenom]int{}
	coins := map[core.CoinDenom]int{}
	totalValue := 0
	for _, r := range results {
		if r.actual <= 0 {
			continue
		}
		if r.item.Kind == "bill" {
			bills[core.BillDenom(r.item.Denom)] += r.actual
		} else {
			coins[core.CoinDenom(r.item.PerUnit)] += r.actual
		}
		totalValue += r.actual * r.item.PerUnit
	}
	shortfall := targetAmount - totalValue
	if shortfall < 0 {
		shortfall = 0
	}
	return &core.DispenseResult{
		Success:        shortfall == 0,
		TotalDispensed: totalValue,
		Shortfall:      shortfall,
		DispensedBills: bills,
		DispensedCoins: coins,
	}
}

func (o *DispenseOrchestrator) broadcastProgress(txID string, completed, total int) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.Broadcast("DispenseProgress", map[string]any{
		"transaction_id": txID,
		"completed":      completed,
		"total":          total,
	})
}

// generateClaimTicket returns an 8-character uppercase alphanumeric code.
func generateClaimTicket() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate claim ticket: %w", err)
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = claimTicketAlphabet[int(b)%len(claimTicketAlphabet)]
	}
	return string(out), nil
}
