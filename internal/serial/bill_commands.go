package serial

import (
	"context"
	"time"

	"moneychanger/internal/core"
)

// Per-operation timeout budgets, derived from the physical travel each
// command implies rather than a single link-wide constant.
const (
	sortTimeout   = 8 * time.Second
	homeTimeout   = 12 * time.Second
	statusTimeout = 5 * time.Second
)

// dispenseTimeout scales with count: each bill takes up to two seconds
// of feed travel, plus fixed setup slack.
func dispenseTimeout(count int) time.Duration {
	return time.Duration(count)*2*time.Second + 5*time.Second
}

// BillController wraps a Link with the bill controller's typed command
// set: SORT, HOME, SORT_STATUS, DISPENSE, DISPENSE_STATUS.
type BillController struct {
	link *Link
}

func NewBillController(link *Link) *BillController { return &BillController{link: link} }

// Sort moves the sorting mechanism to the slot for denom.
func (b *BillController) Sort(ctx context.Context, denom core.BillDenom) (slot int, err error) {
	frame, data, err := b.link.Send(ctx, Command{Cmd: "SORT", Args: map[string]any{"denom": string(denom)}}, sortTimeout)
	if err != nil {
		return 0, err
	}
	if frame.Status == "ERROR" {
		return 0, &core.HardwareError{Code: frame.Code}
	}
	return intField(data["slot"]), nil
}

// Home returns the sorting mechanism to its zero position.
func (b *BillController) Home(ctx context.Context) error {
	frame, _, err := b.link.Send(ctx, Command{Cmd: "HOME"}, homeTimeout)
	if err != nil {
		return err
	}
	if frame.Status == "ERROR" {
		return &core.HardwareError{Code: frame.Code}
	}
	return nil
}

// SortStatus reports the sorter's current position, slot, and homed flag.
func (b *BillController) SortStatus(ctx context.Context) (position, slot int, homed bool, err error) {
	frame, data, err := b.link.Send(ctx, Command{Cmd: "SORT_STATUS"}, statusTimeout)
	if err != nil {
		return 0, 0, false, err
	}
	if frame.Status == "ERROR" {
		return 0, 0, false, &core.HardwareError{Code: frame.Code}
	}
	homedVal, _ := data["homed"].(bool)
	return intField(data["position"]), intField(data["slot"]), homedVal, nil
}

// Dispense instructs the bill dispenser to eject count units of denom.
// err is a *core.HardwareError with Dispensed/HasCount populated when the
// firmware reports a partial-count fault.
func (b *BillController) Dispense(ctx context.Context, denom core.BillDenom, count int) (dispensed int, err error) {
	frame, data, err := b.link.Send(ctx, Command{Cmd: "DISPENSE", Args: map[string]any{"denom": string(denom), "count": count}}, dispenseTimeout(count))
	if err != nil {
		return 0, err
	}
	if frame.Status == "ERROR" {
		d, hasCount := data["dispensed"]
		return intField(d), &core.HardwareError{Code: frame.Code, Dispensed: intField(d), HasCount: hasCount}
	}
	return intField(data["dispensed"]), nil
}

// DispenseStatus reports whether the bill dispenser is ready for denom.
func (b *BillController) DispenseStatus(ctx context.Context, denom core.BillDenom) (ready bool, err error) {
	frame, data, err := b.link.Send(ctx, Command{Cmd: "DISPENSE_STATUS", Args: map[string]any{"denom": string(denom)}}, statusTimeout)
	if err != nil {
		return false, err
	}
	if frame.Status == "ERROR" {
		return false, &core.HardwareError{Code: frame.Code}
	}
	ready, _ = data["ready"].(bool)
	return ready, nil
}
