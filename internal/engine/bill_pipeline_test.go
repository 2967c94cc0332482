package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"moneychanger/internal/capability"
	"moneychanger/internal/core"
	"moneychanger/internal/serial"
)

type pipelineFixture struct {
	p     *BillPipeline
	gpio  *capability.SimGpio
	auth  *capability.SimAuthenticator
	state *core.MachineStateStore
	sim   *serial.SimPort
	bill  *serial.BillController
}

func newTestBillPipeline(t *testing.T, cfg BillPipelineConfig) pipelineFixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(discardWriter{})

	sim := serial.NewSimPort(0)
	link := serial.NewLink("bill", sim, nil, 2*time.Second, log)
	t.Cleanup(func() { _ = link.Close() })
	billCtl := serial.NewBillController(link)

	state := core.NewMachineStateStore(core.Thresholds{StorageSlotCapacity: 2, LowBillThreshold: 1, LowCoinThreshold: 1}, nil)
	gpio := capability.NewSimGpio()
	camera := capability.NewSimCamera(32, 24)
	if err := camera.Initialize(context.Background()); err != nil {
		t.Fatalf("camera.Initialize: %v", err)
	}
	auth := capability.NewSimAuthenticator()

	p := NewBillPipeline(gpio, camera, auth, billCtl, state, nil, cfg, log)
	return pipelineFixture{p: p, gpio: gpio, auth: auth, state: state, sim: sim, bill: billCtl}
}

func defaultPipelineCfg() BillPipelineConfig {
	return BillPipelineConfig{
		AcceptanceTimeout: 200 * time.Millisecond,
		PositionTimeout:   200 * time.Millisecond,
		LEDStabilizeDelay: 0,
		PullSpeed:         60, EjectSpeed: 80, StoreSpeed: 70,
		StoreDuration: 0, EjectDuration: 0,
	}
}

func TestBillPipelineTimeoutAtEntryNeverMovesMotor(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Reason != "TIMEOUT_ENTRY" {
		t.Fatalf("expected TIMEOUT_ENTRY, got %+v", result)
	}
	for _, call := range f.gpio.CallLog {
		if call == "motor_forward" || call == "motor_reverse" {
			t.Fatalf("expected no motor movement on entry timeout, got call log %+v", f.gpio.CallLog)
		}
	}
}

func TestBillPipelineTimeoutAtPositionEjectsWithoutAuth(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.SimulateJam = true

	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Reason != "TIMEOUT_POSITION" {
		t.Fatalf("expected TIMEOUT_POSITION, got %+v", result)
	}
	authCalls, denomCalls := f.auth.CallCounts()
	if authCalls != 0 || denomCalls != 0 {
		t.Fatalf("expected no authentication attempt on position timeout, got auth=%d denom=%d", authCalls, denomCalls)
	}
	foundReverse := false
	for _, call := range f.gpio.CallLog {
		if call == "motor_reverse" {
			foundReverse = true
		}
	}
	if !foundReverse {
		t.Fatal("expected an eject (motor_reverse) on position timeout")
	}
	assertSafeShutdown(t, f.gpio)
}

func TestBillPipelineCounterfeitBillEjected(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.BillInPositionDelay = 0
	f.auth.SetRejectNext()

	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Reason != "NOT_GENUINE" {
		t.Fatalf("expected NOT_GENUINE, got %+v", result)
	}
	assertSafeShutdown(t, f.gpio)
}

func TestBillPipelineStorageFullRejectsWithoutSort(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.BillInPositionDelay = 0
	f.auth.SetNextDenomination(core.PHP100)

	f.state.IncrementBillStorage(core.PHP100, 1)
	f.state.IncrementBillStorage(core.PHP100, 1) // capacity is 2 in this fixture

	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success || result.Reason != "STORAGE_FULL" {
		t.Fatalf("expected STORAGE_FULL, got %+v", result)
	}
	assertSafeShutdown(t, f.gpio)
}

func TestBillPipelineHappyPathStoresAndIncrementsCounts(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.BillInPositionDelay = 0
	f.auth.SetNextDenomination(core.PHP500)

	before := f.state.Snapshot().Consumables.BillStorageCounts[string(core.PHP500)]
	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Denom != core.PHP500 || result.Value != 500 {
		t.Fatalf("expected successful PHP_500 acceptance, got %+v", result)
	}
	after := f.state.Snapshot().Consumables.BillStorageCounts[string(core.PHP500)]
	if after != before+1 {
		t.Fatalf("expected storage count incremented by 1, got before=%d after=%d", before, after)
	}
	assertSafeShutdown(t, f.gpio)
}

// The simulated firmware rejects SORT before HOME; the pipeline recovers
// with a single automatic HOME and one retry.
func TestBillPipelineHomesAndRetriesWhenSorterNotHomed(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.BillInPositionDelay = 0
	f.auth.SetNextDenomination(core.PHP100)

	result, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success via home-then-retry, got %+v", result)
	}

	_, slot, homed, err := f.bill.SortStatus(context.Background())
	if err != nil {
		t.Fatalf("SortStatus: %v", err)
	}
	if !homed || slot != 3 {
		t.Fatalf("expected sorter homed at slot 3 after retry, got homed=%v slot=%d", homed, slot)
	}
}

func TestBillPipelineSortFaultSurfacesWithSafeShutdown(t *testing.T) {
	f := newTestBillPipeline(t, defaultPipelineCfg())
	f.gpio.SetBillAtEntry(true)
	f.gpio.BillInPositionDelay = 0
	f.auth.SetNextDenomination(core.PHP100)
	f.sim.InjectFault("MOTOR_FAULT")

	_, err := f.p.Run(context.Background())
	if err == nil {
		t.Fatal("expected sort fault to surface as an error")
	}
	hwErr, ok := err.(*core.HardwareError)
	if !ok || hwErr.Code != "MOTOR_FAULT" {
		t.Fatalf("expected HardwareError MOTOR_FAULT, got %v", err)
	}
	assertSafeShutdown(t, f.gpio)
}

// assertSafeShutdown verifies the pipeline's invariant that every exit
// path leaves the motor stopped and both LEDs off.
func assertSafeShutdown(t *testing.T, gpio *capability.SimGpio) {
	t.Helper()
	last := map[string]int{}
	for i, call := range gpio.CallLog {
		last[call] = i
	}
	if idx, ok := last["motor_stop"]; !ok {
		t.Fatal("expected motor_stop to have been called")
	} else {
		for _, moving := range []string{"motor_forward", "motor_reverse"} {
			if mi, ok := last[moving]; ok && mi > idx {
				t.Fatalf("expected motor_stop to be the last motor call, but %s ran after it", moving)
			}
		}
	}
	if idx, ok := last["uv_led_off"]; !ok {
		t.Fatal("expected uv_led_off to have been called")
	} else if onIdx, ok := last["uv_led_on"]; ok && onIdx > idx {
		t.Fatal("expected uv_led_off to be the last UV LED call")
	}
	if idx, ok := last["white_led_off"]; !ok {
		t.Fatal("expected white_led_off to have been called")
	} else if onIdx, ok := last["white_led_on"]; ok && onIdx > idx {
		t.Fatal("expected white_led_off to be the last white LED call")
	}
}
