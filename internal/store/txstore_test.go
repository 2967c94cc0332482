package store

import (
	"path/filepath"
	"testing"
	"time"

	"moneychanger/internal/core"
)

func newTestTransaction(id string) *core.Transaction {
	return &core.Transaction{
		ID:           id,
		Type:         core.BillToCoin,
		State:        core.StateIdle,
		TargetAmount: 500,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestTransactionStorePutGetReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.jsonl")

	ts, err := OpenTransactionStore(path)
	if err != nil {
		t.Fatalf("open transaction store: %v", err)
	}

	tx := newTestTransaction("tx-1")
	if err := ts.Put(tx); err != nil {
		t.Fatalf("put: %v", err)
	}

	tx.State = core.StateWaitingForBill
	tx.InsertedAmount = 100
	if err := ts.Put(tx); err != nil {
		t.Fatalf("put updated snapshot: %v", err)
	}

	got, ok := ts.Get("tx-1")
	if !ok {
		t.Fatalf("expected tx-1 to be found")
	}
	if got.State != core.StateWaitingForBill || got.InsertedAmount != 100 {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
	if err := ts.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ts2, err := OpenTransactionStore(path)
	if err != nil {
		t.Fatalf("reopen transaction store: %v", err)
	}
	defer ts2.Close()

	replayed, ok := ts2.Get("tx-1")
	if !ok {
		t.Fatalf("expected replayed tx-1 to be found")
	}
	if replayed.State != core.StateWaitingForBill || replayed.InsertedAmount != 100 {
		t.Fatalf("replay lost latest snapshot: got %+v", replayed)
	}
}

func TestTransactionStoreGetReturnsIndependentCopies(t *testing.T) {
	ts, err := OpenTransactionStore(filepath.Join(t.TempDir(), "transactions.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ts.Close()

	tx := newTestTransaction("tx-1")
	if err := ts.Put(tx); err != nil {
		t.Fatalf("put: %v", err)
	}

	a, _ := ts.Get("tx-1")
	a.InsertedAmount = 999

	b, _ := ts.Get("tx-1")
	if b.InsertedAmount == 999 {
		t.Fatalf("Get leaked a mutable reference into the store's index")
	}
}

func TestTransactionStoreListAndMissing(t *testing.T) {
	ts, err := OpenTransactionStore(filepath.Join(t.TempDir(), "transactions.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ts.Close()

	if _, ok := ts.Get("missing"); ok {
		t.Fatalf("expected missing transaction to be absent")
	}

	if err := ts.Put(newTestTransaction("tx-1")); err != nil {
		t.Fatalf("put tx-1: %v", err)
	}
	if err := ts.Put(newTestTransaction("tx-2")); err != nil {
		t.Fatalf("put tx-2: %v", err)
	}

	all := ts.List()
	if len(all) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(all))
	}
}
