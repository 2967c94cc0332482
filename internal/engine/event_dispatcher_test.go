package engine

import (
	"testing"

	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
	"moneychanger/internal/serial"
)

func newDispatcherFixture(t *testing.T, onCoinIn func(core.CoinDenom, int)) (*EventDispatcher, *core.MachineStateStore, *recordingBroadcaster) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(discardWriter{})

	state := core.NewMachineStateStore(core.Thresholds{StorageSlotCapacity: 100, LowBillThreshold: 5, LowCoinThreshold: 10}, nil)
	bc := newRecordingBroadcaster()
	d := NewEventDispatcher(state, bc, onCoinIn, log)
	return d, state, bc
}

func TestEventDispatcherCoinInUpdatesStateBroadcastsAndBridges(t *testing.T) {
	var bridgedDenom core.CoinDenom
	var bridgedTotal int
	bridged := false
	d, state, bc := newDispatcherFixture(t, func(denom core.CoinDenom, total int) {
		bridged = true
		bridgedDenom = denom
		bridgedTotal = total
	})

	before := state.Snapshot().Consumables.CoinCounts[core.Coin10]
	d.HandlerFor("coin")(serial.Frame{Event: "COIN_IN"}, map[string]any{"denom": float64(core.Coin10), "total": 3})

	after := state.Snapshot().Consumables.CoinCounts[core.Coin10]
	if after != before+1 {
		t.Fatalf("expected coin count to increment by 1, got %d -> %d", before, after)
	}
	if len(bc.events) != 1 || bc.events[0].Type != "CoinInserted" {
		t.Fatalf("expected one CoinInserted broadcast, got %+v", bc.events)
	}
	if !bridged {
		t.Fatalf("expected onCoinIn callback to fire")
	}
	if bridgedDenom != core.Coin10 || bridgedTotal != 3 {
		t.Fatalf("unexpected bridged values: denom=%v total=%d", bridgedDenom, bridgedTotal)
	}
}

func TestEventDispatcherCoinInWithNilCallbackDoesNotPanic(t *testing.T) {
	d, _, _ := newDispatcherFixture(t, nil)
	d.HandlerFor("coin")(serial.Frame{Event: "COIN_IN"}, map[string]any{"denom": float64(core.Coin5), "total": 1})
}

func TestEventDispatcherTamperSetsSecurityAndBroadcasts(t *testing.T) {
	d, state, bc := newDispatcherFixture(t, nil)
	d.HandlerFor("bill")(serial.Frame{Event: "TAMPER"}, map[string]any{"sensor": "door"})

	snap := state.Snapshot()
	if !snap.Security.TamperActive {
		t.Fatalf("expected TamperActive true after TAMPER event")
	}
	if snap.Security.LastTamperSensor != "door" {
		t.Fatalf("expected LastSensor door, got %q", snap.Security.LastTamperSensor)
	}
	if len(bc.events) != 1 || bc.events[0].Type != "Tamper" {
		t.Fatalf("expected one Tamper broadcast, got %+v", bc.events)
	}
}

func TestEventDispatcherDoorStatePreservesTamperFlag(t *testing.T) {
	d, state, _ := newDispatcherFixture(t, nil)
	d.HandlerFor("bill")(serial.Frame{Event: "TAMPER"}, map[string]any{"sensor": "door"})
	d.HandlerFor("bill")(serial.Frame{Event: "DOOR_STATE"}, map[string]any{"locked": false})

	snap := state.Snapshot()
	if snap.Security.Locked {
		t.Fatalf("expected Locked false after DOOR_STATE locked=false")
	}
	if !snap.Security.TamperActive {
		t.Fatalf("DOOR_STATE must not clear a prior tamper flag")
	}
}

func TestEventDispatcherReadyUpdatesCorrectDevice(t *testing.T) {
	d, state, bc := newDispatcherFixture(t, nil)
	d.HandlerFor("bill")(serial.Frame{Event: "READY"}, map[string]any{"version": "1.2.3"})

	snap := state.Snapshot()
	if snap.BillDevice.Connection != core.Connected || snap.BillDevice.Firmware != "1.2.3" {
		t.Fatalf("expected bill device Connected@1.2.3, got %+v", snap.BillDevice)
	}
	if snap.CoinDevice.Connection == core.Connected {
		t.Fatalf("READY on bill controller must not affect coin device state")
	}
	if len(bc.events) != 1 || bc.events[0].Type != "DeviceConnected" {
		t.Fatalf("expected one DeviceConnected broadcast, got %+v", bc.events)
	}
}

func TestEventDispatcherReadyUnknownControllerIgnored(t *testing.T) {
	d, state, bc := newDispatcherFixture(t, nil)
	d.HandlerFor("printer")(serial.Frame{Event: "READY"}, map[string]any{"version": "9.9.9"})

	snap := state.Snapshot()
	if snap.BillDevice.Connection == core.Connected || snap.CoinDevice.Connection == core.Connected {
		t.Fatalf("READY from an unknown controller must not update any device state")
	}
	if len(bc.events) != 0 {
		t.Fatalf("expected no broadcast for an unknown controller, got %+v", bc.events)
	}
}

func TestEventDispatcherUnknownEventIsIgnoredSafely(t *testing.T) {
	d, _, bc := newDispatcherFixture(t, nil)
	d.HandlerFor("bill")(serial.Frame{Event: "SOMETHING_NEW"}, map[string]any{})
	if len(bc.events) != 0 {
		t.Fatalf("expected no broadcast for an unrecognized event, got %+v", bc.events)
	}
}
