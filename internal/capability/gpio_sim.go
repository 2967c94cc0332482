// Package capability provides simulator and hardware-facing
// implementations of the core.Gpio, core.Camera, and core.Authenticator
// interfaces: one pair of implementations per capability, selected at
// construction by the kiosk's configuration rather than by any runtime
// detection.
package capability

import (
	"context"
	"sync"
	"time"

	"moneychanger/internal/core"
)

// SimGpio simulates the bill-acceptor conveyor, sensors, and LEDs for
// development and tests. A bill can be scripted to appear at the entry
// sensor and reach the camera position after the conveyor has run
// forward for a configured duration; SimulateJam keeps it from ever
// reaching position.
type SimGpio struct {
	mu sync.Mutex

	BillAtEntryDelay    time.Duration
	BillInPositionDelay time.Duration
	SimulateJam         bool

	motorState string // "stopped", "forward", "reverse"
	motorSpeed int
	uvLed      bool
	whiteLed   bool

	billAtEntry    bool
	billInPosition bool
	forwardStart   time.Time

	CallLog []string
}

func NewSimGpio() *SimGpio {
	return &SimGpio{motorState: "stopped"}
}

func (g *SimGpio) Setup(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "setup")
	return nil
}

func (g *SimGpio) Cleanup(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "cleanup")
	g.motorState = "stopped"
	g.motorSpeed = 0
	g.uvLed = false
	g.whiteLed = false
	return nil
}

func (g *SimGpio) MotorForward(ctx context.Context, speed int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "motor_forward")
	g.motorState = "forward"
	g.motorSpeed = speed
	g.forwardStart = time.Now()
	return nil
}

func (g *SimGpio) MotorReverse(ctx context.Context, speed int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "motor_reverse")
	g.motorState = "reverse"
	g.motorSpeed = speed
	g.forwardStart = time.Time{}
	return nil
}

func (g *SimGpio) MotorStop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "motor_stop")
	g.motorState = "stopped"
	g.motorSpeed = 0
	g.forwardStart = time.Time{}
	return nil
}

func (g *SimGpio) IsBillAtEntry(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.billAtEntry {
		return true, nil
	}
	if g.BillAtEntryDelay == 0 {
		return false, nil
	}
	g.billAtEntry = true
	return true, nil
}

func (g *SimGpio) IsBillInPosition(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SimulateJam {
		return false, nil
	}
	if g.billInPosition {
		return true, nil
	}
	if g.motorState == "forward" && !g.forwardStart.IsZero() {
		if time.Since(g.forwardStart) >= g.BillInPositionDelay {
			g.billInPosition = true
			return true, nil
		}
	}
	return false, nil
}

func (g *SimGpio) UVLedOn(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "uv_led_on")
	g.uvLed = true
	return nil
}

func (g *SimGpio) UVLedOff(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "uv_led_off")
	g.uvLed = false
	return nil
}

func (g *SimGpio) WhiteLedOn(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "white_led_on")
	g.whiteLed = true
	return nil
}

func (g *SimGpio) WhiteLedOff(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallLog = append(g.CallLog, "white_led_off")
	g.whiteLed = false
	return nil
}

// SetBillAtEntry lets a test drive entry-sensor state directly.
func (g *SimGpio) SetBillAtEntry(present bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.billAtEntry = present
}

// SetBillInPosition lets a test drive camera-position sensor state
// directly.
func (g *SimGpio) SetBillInPosition(present bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.billInPosition = present
}

// Reset restores a fresh simulated state between test cases.
func (g *SimGpio) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.motorState = "stopped"
	g.motorSpeed = 0
	g.uvLed = false
	g.whiteLed = false
	g.billAtEntry = false
	g.billInPosition = false
	g.forwardStart = time.Time{}
	g.SimulateJam = false
	g.CallLog = nil
}

var _ core.Gpio = (*SimGpio)(nil)
