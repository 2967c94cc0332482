package serial

import (
	"context"
	"time"

	"moneychanger/internal/core"
)

// CoinSecurityController wraps a Link with the coin & security
// controller's typed command set: COIN_DISPENSE, COIN_CHANGE,
// COIN_RESET, SECURITY_LOCK, SECURITY_UNLOCK, SECURITY_STATUS, PING,
// VERSION, RESET.
type CoinSecurityController struct {
	link *Link
}

func NewCoinSecurityController(link *Link) *CoinSecurityController {
	return &CoinSecurityController{link: link}
}

// coinDispenseTimeout scales with count: a coin drops in roughly half a
// second, plus fixed setup slack.
func coinDispenseTimeout(count int) time.Duration {
	return time.Duration(count)*500*time.Millisecond + 3*time.Second
}

// CoinDispense ejects count coins of the given face value.
func (c *CoinSecurityController) CoinDispense(ctx context.Context, denom core.CoinDenom, count int) (dispensed int, err error) {
	frame, data, err := c.link.Send(ctx, Command{Cmd: "COIN_DISPENSE", Args: map[string]any{"denom": int(denom), "count": count}}, coinDispenseTimeout(count))
	if err != nil {
		return 0, err
	}
	if frame.Status == "ERROR" {
		d, hasCount := data["dispensed"]
		return intField(d), &core.HardwareError{Code: frame.Code, Dispensed: intField(d), HasCount: hasCount}
	}
	return intField(data["dispensed"]), nil
}

// CoinChange asks the firmware for a greedy coin breakdown of amount,
// keyed by face value string. Nothing in the kiosk compares it with, or
// substitutes it for, its own CalculateChange result.
func (c *CoinSecurityController) CoinChange(ctx context.Context, amount int) (map[string]int, error) {
	frame, data, err := c.link.Send(ctx, Command{Cmd: "COIN_CHANGE", Args: map[string]any{"amount": amount}}, statusTimeout)
	if err != nil {
		return nil, err
	}
	if frame.Status == "ERROR" {
		return nil, &core.HardwareError{Code: frame.Code}
	}
	breakdown := map[string]int{}
	if raw, ok := data["breakdown"].(map[string]any); ok {
		for k, v := range raw {
			breakdown[k] = intField(v)
		}
	}
	return breakdown, nil
}

// CoinReset zeroes the firmware's running coin total and returns its
// prior value.
func (c *CoinSecurityController) CoinReset(ctx context.Context) (previousTotal int, err error) {
	frame, data, err := c.link.Send(ctx, Command{Cmd: "COIN_RESET"}, statusTimeout)
	if err != nil {
		return 0, err
	}
	if frame.Status == "ERROR" {
		return 0, &core.HardwareError{Code: frame.Code}
	}
	return intField(data["previous_total"]), nil
}

// SecurityLock engages the enclosure lock.
func (c *CoinSecurityController) SecurityLock(ctx context.Context) error {
	return c.setLock(ctx, "SECURITY_LOCK")
}

// SecurityUnlock releases the enclosure lock.
func (c *CoinSecurityController) SecurityUnlock(ctx context.Context) error {
	return c.setLock(ctx, "SECURITY_UNLOCK")
}

func (c *CoinSecurityController) setLock(ctx context.Context, cmd string) error {
	frame, _, err := c.link.Send(ctx, Command{Cmd: cmd}, statusTimeout)
	if err != nil {
		return err
	}
	if frame.Status == "ERROR" {
		return &core.HardwareError{Code: frame.Code}
	}
	return nil
}

// SecurityStatus reports the enclosure lock state and whether a tamper
// condition is currently active.
func (c *CoinSecurityController) SecurityStatus(ctx context.Context) (locked, tamperActive bool, err error) {
	frame, data, err := c.link.Send(ctx, Command{Cmd: "SECURITY_STATUS"}, statusTimeout)
	if err != nil {
		return false, false, err
	}
	if frame.Status == "ERROR" {
		return false, false, &core.HardwareError{Code: frame.Code}
	}
	locked, _ = data["locked"].(bool)
	tamperActive, _ = data["tamper_active"].(bool)
	return locked, tamperActive, nil
}

// Ping checks link liveness.
func (c *CoinSecurityController) Ping(ctx context.Context) error {
	_, _, err := c.link.Send(ctx, Command{Cmd: "PING"}, statusTimeout)
	return err
}

// Version reports the firmware version string.
func (c *CoinSecurityController) Version(ctx context.Context) (string, error) {
	frame, data, err := c.link.Send(ctx, Command{Cmd: "VERSION"}, statusTimeout)
	if err != nil {
		return "", err
	}
	if frame.Status == "ERROR" {
		return "", &core.HardwareError{Code: frame.Code}
	}
	v, _ := data["version"].(string)
	return v, nil
}

// Reset clears the controller's running state (coin total, tamper
// latch).
func (c *CoinSecurityController) Reset(ctx context.Context) error {
	frame, _, err := c.link.Send(ctx, Command{Cmd: "RESET"}, statusTimeout)
	if err != nil {
		return err
	}
	if frame.Status == "ERROR" {
		return &core.HardwareError{Code: frame.Code}
	}
	return nil
}
