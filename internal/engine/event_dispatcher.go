package engine

import (
	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
	"moneychanger/internal/serial"
)

// EventDispatcher routes unsolicited frames from either peripheral link
// into machine-state mutations and broadcasts. It is wired as the
// serial.EventHandler for both links; controllerID distinguishes which
// link an event arrived on.
type EventDispatcher struct {
	state       *core.MachineStateStore
	broadcaster Broadcaster
	onCoinIn    func(denom core.CoinDenom, total int)
	log         *logrus.Entry
}

// NewEventDispatcher builds a dispatcher for unsolicited serial frames.
// onCoinIn, if non-nil, runs after every COIN_IN event so the active
// transaction (if any) can apply the coin toward its inserted amount; in
// normal operation it is TransactionOrchestrator.HandleCoinInserted.
func NewEventDispatcher(state *core.MachineStateStore, broadcaster Broadcaster, onCoinIn func(denom core.CoinDenom, total int), log *logrus.Logger) *EventDispatcher {
	return &EventDispatcher{state: state, broadcaster: broadcaster, onCoinIn: onCoinIn, log: log.WithField("component", "event_dispatcher")}
}

// HandlerFor returns a serial.EventHandler bound to controllerID, for
// registration with a specific Link.
func (d *EventDispatcher) HandlerFor(controllerID string) serial.EventHandler {
	return func(frame serial.Frame, data map[string]any) {
		d.dispatch(controllerID, frame, data)
	}
}

func (d *EventDispatcher) dispatch(controllerID string, frame serial.Frame, data map[string]any) {
	switch frame.Event {
	case "COIN_IN":
		d.handleCoinIn(data)
	case "TAMPER":
		d.handleTamper(data)
	case "DOOR_STATE":
		d.handleDoorState(data)
	case "READY":
		d.handleReady(controllerID, data)
	case "KEYPAD":
		d.log.WithField("key", data["key"]).Debug("keypad event")
	default:
		d.log.WithField("event", frame.Event).Warn("unknown event type")
	}
}

func (d *EventDispatcher) handleCoinIn(data map[string]any) {
	denom := core.CoinDenom(asInt(data["denom"]))
	total := asInt(data["total"])
	d.state.IncrementCoin(denom, 1)
	if d.broadcaster != nil {
		d.broadcaster.Broadcast("CoinInserted", map[string]any{"denom": denom, "total": total})
	}
	if d.onCoinIn != nil {
		d.onCoinIn(denom, total)
	}
}

func (d *EventDispatcher) handleTamper(data map[string]any) {
	sensor, _ := data["sensor"].(string)
	d.state.UpdateSecurity(d.state.Snapshot().Security.Locked, true, sensor)
	if d.broadcaster != nil {
		d.broadcaster.Broadcast("Tamper", map[string]any{"sensor": sensor})
	}
}

func (d *EventDispatcher) handleDoorState(data map[string]any) {
	locked, _ := data["locked"].(bool)
	snap := d.state.Snapshot()
	d.state.UpdateSecurity(locked, snap.Security.TamperActive, "")
	if d.broadcaster != nil {
		d.broadcaster.Broadcast("StateChange", map[string]any{"door_locked": locked})
	}
}

func (d *EventDispatcher) handleReady(controllerID string, data map[string]any) {
	version, _ := data["version"].(string)
	switch controllerID {
	case "bill":
		d.state.UpdateBillDevice(core.Connected, version, "")
	case "coin":
		d.state.UpdateCoinDevice(core.Connected, version, "")
	default:
		d.log.WithField("controller", controllerID).Warn("READY from unknown controller")
		return
	}
	if d.broadcaster != nil {
		d.broadcaster.Broadcast("DeviceConnected", map[string]any{"controller": controllerID, "version": version})
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
