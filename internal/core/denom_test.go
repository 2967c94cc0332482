package core

import "testing"

func TestSlotOfPartitionsByCurrency(t *testing.T) {
	cases := []struct {
		denom BillDenom
		slot  SortSlot
	}{
		{PHP20, Slot1}, {PHP50, Slot2}, {PHP100, Slot3},
		{PHP200, Slot4}, {PHP500, Slot5}, {PHP1000, Slot6},
		{USD10, Slot7}, {USD50, Slot7}, {USD100, Slot7},
		{EUR5, Slot8}, {EUR10, Slot8}, {EUR20, Slot8},
	}
	for _, c := range cases {
		slot, ok := SlotOf(c.denom)
		if !ok || slot != c.slot {
			t.Fatalf("SlotOf(%s) = %d,%v, want %d", c.denom, slot, ok, c.slot)
		}
	}
	if _, ok := SlotOf(BillDenom("PHP_9999")); ok {
		t.Fatal("expected unknown denomination to have no slot")
	}
}

func TestStepperPositionsEquidistant(t *testing.T) {
	prev, ok := StepperPosition(Slot1)
	if !ok {
		t.Fatal("expected a position for slot 1")
	}
	step := prev
	for s := Slot2; s <= Slot8; s++ {
		pos, ok := StepperPosition(s)
		if !ok {
			t.Fatalf("expected a position for slot %d", s)
		}
		if pos-prev != step {
			t.Fatalf("expected equidistant travel, slot %d jumped %d not %d", s, pos-prev, step)
		}
		prev = pos
	}
}

func TestStorageKeyAggregation(t *testing.T) {
	if got := StorageKey(PHP100); got != "PHP_100" {
		t.Fatalf("PHP denominations use per-denom keys, got %q", got)
	}
	if got := StorageKey(USD10); got != "USD" {
		t.Fatalf("USD denominations aggregate under USD, got %q", got)
	}
	if got := StorageKey(EUR20); got != "EUR" {
		t.Fatalf("EUR denominations aggregate under EUR, got %q", got)
	}
}

func TestDispenserUnitsCoverCatalog(t *testing.T) {
	seen := map[BillDenom]bool{}
	for idx := 1; ; idx++ {
		d, ok := DispenserUnit(idx)
		if !ok {
			break
		}
		if seen[d] {
			t.Fatalf("denomination %s loaded into more than one unit", d)
		}
		seen[d] = true
	}
	for _, d := range AllBillDenoms() {
		if !seen[d] {
			t.Fatalf("denomination %s has no dispenser unit", d)
		}
	}
}

func TestBillAndCoinValues(t *testing.T) {
	if BillValue(PHP1000) != 1000 || BillValue(USD100) != 100 || BillValue(EUR5) != 5 {
		t.Fatal("unexpected bill face values")
	}
	for _, c := range AllCoinDenoms() {
		if CoinValue(c) != int(c) {
			t.Fatalf("coin %d face value mismatch: %d", c, CoinValue(c))
		}
	}
}
