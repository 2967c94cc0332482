package core

import (
	"strings"
	"sync"
	"time"
)

// ConnectionState describes a peripheral controller's link status.
type ConnectionState string

const (
	Connected    ConnectionState = "Connected"
	Disconnected ConnectionState = "Disconnected"
	Connecting   ConnectionState = "Connecting"
)

// DeviceState is the read-mostly snapshot of one controller's connection.
type DeviceState struct {
	Connection ConnectionState
	Firmware   string
	LastPing   time.Time
	LastError  string
}

// SorterState is the read-mostly snapshot of the bill sorter.
type SorterState struct {
	Homed    bool
	Position int
	Slot     SortSlot
	HasSlot  bool
}

// SecurityState is the read-mostly snapshot of the door/tamper subsystem.
type SecurityState struct {
	Locked           bool
	TamperActive     bool
	LastTamperSensor string
	LastTamperTime   time.Time
}

// Consumables is the read-mostly snapshot of countable inventory and
// derived alerts.
type Consumables struct {
	BillStorageCounts   map[string]int
	BillDispenserCounts map[BillDenom]int
	CoinCounts          map[CoinDenom]int
	Alerts              map[string]struct{}
}

// MachineStateSnapshot is an immutable, deep-copied value returned by
// MachineStateStore.Snapshot.
type MachineStateSnapshot struct {
	BillDevice  DeviceState
	CoinDevice  DeviceState
	Sorter      SorterState
	Security    SecurityState
	Consumables Consumables
}

// Thresholds configures the alert-derivation rules applied on every
// consumables mutation. StorageSlotCapacity is the sole authoritative cap
// for STORAGE_FULL; LowBillThreshold and LowCoinThreshold are soft-alert
// inputs only.
type Thresholds struct {
	StorageSlotCapacity int
	LowBillThreshold    int
	LowCoinThreshold    int
}

// MachineStateStore owns the mutable machine state behind a single writer
// lock. Snapshots are deep copies so callers never observe a torn read.
type MachineStateStore struct {
	mu         sync.Mutex
	thresholds Thresholds
	onChange   func(MachineStateSnapshot)

	billDevice DeviceState
	coinDevice DeviceState
	sorter     SorterState
	security   SecurityState

	billStorageCounts   map[string]int
	billDispenserCounts map[BillDenom]int
	coinCounts          map[CoinDenom]int
	alerts              map[string]struct{}
}

// NewMachineStateStore builds an empty store. onChange, if non-nil, is
// invoked after every mutation with a fresh snapshot, outside the lock.
func NewMachineStateStore(t Thresholds, onChange func(MachineStateSnapshot)) *MachineStateStore {
	return &MachineStateStore{
		thresholds:          t,
		onChange:            onChange,
		billDevice:          DeviceState{Connection: Disconnected},
		coinDevice:          DeviceState{Connection: Disconnected},
		billStorageCounts:   make(map[string]int),
		billDispenserCounts: make(map[BillDenom]int),
		coinCounts:          make(map[CoinDenom]int),
		alerts:              make(map[string]struct{}),
	}
}

// Snapshot returns a deep-copied, immutable view of the machine state.
func (s *MachineStateStore) Snapshot() MachineStateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *MachineStateStore) snapshotLocked() MachineStateSnapshot {
	storage := make(map[string]int, len(s.billStorageCounts))
	for k, v := range s.billStorageCounts {
		storage[k] = v
	}
	dispenser := make(map[BillDenom]int, len(s.billDispenserCounts))
	for k, v := range s.billDispenserCounts {
		dispenser[k] = v
	}
	coins := make(map[CoinDenom]int, len(s.coinCounts))
	for k, v := range s.coinCounts {
		coins[k] = v
	}
	alerts := make(map[string]struct{}, len(s.alerts))
	for k := range s.alerts {
		alerts[k] = struct{}{}
	}
	return MachineStateSnapshot{
		BillDevice: s.billDevice,
		CoinDevice: s.coinDevice,
		Sorter:     s.sorter,
		Security:   s.security,
		Consumables: Consumables{
			BillStorageCounts:   storage,
			BillDispenserCounts: dispenser,
			CoinCounts:          coins,
			Alerts:              alerts,
		},
	}
}

// notify builds a fresh snapshot and invokes onChange. It must be called
// without holding mu: callbacks run outside the lock.
func (s *MachineStateStore) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

// UpdateBillDevice merges the provided fields into the bill controller's
// device state. Zero-valued fields are treated as "not provided" for
// Firmware/LastError; callers wanting to clear a field should not rely on
// this helper.
func (s *MachineStateStore) UpdateBillDevice(conn ConnectionState, firmware string, lastError string) {
	s.mu.Lock()
	s.billDevice.Connection = conn
	if firmware != "" {
		s.billDevice.Firmware = firmware
	}
	if lastError != "" {
		s.billDevice.LastError = lastError
	}
	s.billDevice.LastPing = time.Now()
	s.mu.Unlock()
	s.notify()
}

// UpdateCoinDevice mirrors UpdateBillDevice for the coin & security
// controller.
func (s *MachineStateStore) UpdateCoinDevice(conn ConnectionState, firmware string, lastError string) {
	s.mu.Lock()
	s.coinDevice.Connection = conn
	if firmware != "" {
		s.coinDevice.Firmware = firmware
	}
	if lastError != "" {
		s.coinDevice.LastError = lastError
	}
	s.coinDevice.LastPing = time.Now()
	s.mu.Unlock()
	s.notify()
}

// UpdateSorter replaces the sorter's homed/position/slot fields.
func (s *MachineStateStore) UpdateSorter(homed bool, position int, slot SortSlot, hasSlot bool) {
	s.mu.Lock()
	s.sorter = SorterState{Homed: homed, Position: position, Slot: slot, HasSlot: hasSlot}
	s.mu.Unlock()
	s.notify()
}

// UpdateSecurity merges locked/tamper fields into the security state.
func (s *MachineStateStore) UpdateSecurity(locked bool, tamperActive bool, tamperSensor string) {
	s.mu.Lock()
	s.security.Locked = locked
	s.security.TamperActive = tamperActive
	if tamperSensor != "" {
		s.security.LastTamperSensor = tamperSensor
		s.security.LastTamperTime = time.Now()
	}
	s.mu.Unlock()
	s.notify()
}

// IncrementBillStorage records count (default 1) additional bills of denom
// having been stored, and recomputes STORAGE_FULL alerts.
func (s *MachineStateStore) IncrementBillStorage(denom BillDenom, count int) {
	if count <= 0 {
		count = 1
	}
	s.mu.Lock()
	key := StorageKey(denom)
	s.billStorageCounts[key] += count
	if s.billStorageCounts[key] > s.thresholds.StorageSlotCapacity {
		s.billStorageCounts[key] = s.thresholds.StorageSlotCapacity
	}
	s.recomputeStorageAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// IsStorageFull reports whether denom's storage group is at capacity.
func (s *MachineStateStore) IsStorageFull(denom BillDenom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := StorageKey(denom)
	return s.billStorageCounts[key] >= s.thresholds.StorageSlotCapacity
}

// DecrementBillDispenser removes count units of denom from the dispenser,
// saturating at 0, and recomputes LOW_BILL/EMPTY_BILL alerts.
func (s *MachineStateStore) DecrementBillDispenser(denom BillDenom, count int) {
	s.mu.Lock()
	s.billDispenserCounts[denom] -= count
	if s.billDispenserCounts[denom] < 0 {
		s.billDispenserCounts[denom] = 0
	}
	s.recomputeBillAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// IncrementBillDispenser adds count units of denom back to the
// dispenser. Used by the dispense orchestrator to reconcile reservations
// that a partial hardware failure left unspent.
func (s *MachineStateStore) IncrementBillDispenser(denom BillDenom, count int) {
	if count <= 0 {
		return
	}
	s.mu.Lock()
	s.billDispenserCounts[denom] += count
	s.recomputeBillAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// IncrementCoin adds count units of denom to the coin hopper.
func (s *MachineStateStore) IncrementCoin(denom CoinDenom, count int) {
	if count <= 0 {
		count = 1
	}
	s.mu.Lock()
	s.coinCounts[denom] += count
	s.recomputeCoinAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// DecrementCoin removes count units of denom from the coin hopper,
// saturating at 0.
func (s *MachineStateStore) DecrementCoin(denom CoinDenom, count int) {
	s.mu.Lock()
	s.coinCounts[denom] -= count
	if s.coinCounts[denom] < 0 {
		s.coinCounts[denom] = 0
	}
	s.recomputeCoinAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// SetDispenserCounts bulk-replaces the bill dispenser counts (maintenance
// reload) and recomputes alerts.
func (s *MachineStateStore) SetDispenserCounts(counts map[BillDenom]int) {
	s.mu.Lock()
	s.billDispenserCounts = make(map[BillDenom]int, len(counts))
	for k, v := range counts {
		s.billDispenserCounts[k] = v
	}
	s.recomputeBillAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// SetCoinCounts bulk-replaces the coin hopper counts (maintenance reload)
// and recomputes alerts.
func (s *MachineStateStore) SetCoinCounts(counts map[CoinDenom]int) {
	s.mu.Lock()
	s.coinCounts = make(map[CoinDenom]int, len(counts))
	for k, v := range counts {
		s.coinCounts[k] = v
	}
	s.recomputeCoinAlertsLocked()
	s.mu.Unlock()
	s.notify()
}

// GetAcceptableDenominations returns the bill denominations whose storage
// group is below capacity.
func (s *MachineStateStore) GetAcceptableDenominations() []BillDenom {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BillDenom
	for _, d := range AllBillDenoms() {
		key := StorageKey(d)
		if s.billStorageCounts[key] < s.thresholds.StorageSlotCapacity {
			out = append(out, d)
		}
	}
	return out
}

// replaceAlertsWithPrefixLocked removes every alert sharing prefix and
// installs the provided replacements. Alerts not matching any known prefix
// are left untouched for forward compatibility.
func (s *MachineStateStore) replaceAlertsWithPrefixLocked(prefix string, fresh []string) {
	for a := range s.alerts {
		if strings.HasPrefix(a, prefix) {
			delete(s.alerts, a)
		}
	}
	for _, a := range fresh {
		s.alerts[a] = struct{}{}
	}
}

func (s *MachineStateStore) recomputeStorageAlertsLocked() {
	var fresh []string
	for key, count := range s.billStorageCounts {
		if count >= s.thresholds.StorageSlotCapacity {
			fresh = append(fresh, "STORAGE_FULL:"+key)
		}
	}
	s.replaceAlertsWithPrefixLocked("STORAGE_FULL:", fresh)
}

func (s *MachineStateStore) recomputeBillAlertsLocked() {
	var low, empty []string
	for _, d := range AllBillDenoms() {
		count := s.billDispenserCounts[d]
		if count == 0 {
			empty = append(empty, "EMPTY_BILL:"+string(d))
		} else if count < s.thresholds.LowBillThreshold {
			low = append(low, "LOW_BILL:"+string(d))
		}
	}
	s.replaceAlertsWithPrefixLocked("LOW_BILL:", low)
	s.replaceAlertsWithPrefixLocked("EMPTY_BILL:", empty)
}

func (s *MachineStateStore) recomputeCoinAlertsLocked() {
	var low, empty []string
	for _, d := range AllCoinDenoms() {
		count := s.coinCounts[d]
		if count == 0 {
			empty = append(empty, "EMPTY_COIN:"+denomLabel(d))
		} else if count < s.thresholds.LowCoinThreshold {
			low = append(low, "LOW_COIN:"+denomLabel(d))
		}
	}
	s.replaceAlertsWithPrefixLocked("LOW_COIN:", low)
	s.replaceAlertsWithPrefixLocked("EMPTY_COIN:", empty)
}

func denomLabel(d CoinDenom) string {
	switch d {
	case Coin1:
		return "1"
	case Coin5:
		return "5"
	case Coin10:
		return "10"
	case Coin20:
		return "20"
	default:
		return ""
	}
}
