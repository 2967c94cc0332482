package store

import (
	"path/filepath"
	"testing"

	"moneychanger/internal/core"
)

func TestWALStoreAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.jsonl")

	ws, err := OpenWALStore(path)
	if err != nil {
		t.Fatalf("open wal store: %v", err)
	}

	e1, err := ws.Append("tx-1", "STATE_Idle_TO_WaitingForBill", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e1.Status != core.WALPending {
		t.Fatalf("expected fresh entry Pending, got %s", e1.Status)
	}

	e2, err := ws.Append("tx-2", "STATE_Idle_TO_WaitingForBill", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := ws.SetStatus(e1.ID, core.WALCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	pending := ws.Pending()
	if len(pending) != 1 || pending[0].ID != e2.ID {
		t.Fatalf("expected only entry %d pending, got %+v", e2.ID, pending)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ws2, err := OpenWALStore(path)
	if err != nil {
		t.Fatalf("reopen wal store: %v", err)
	}
	defer ws2.Close()

	pending2 := ws2.Pending()
	if len(pending2) != 1 || pending2[0].ID != e2.ID {
		t.Fatalf("replay lost pending status: got %+v", pending2)
	}

	e3, err := ws2.Append("tx-3", "STATE_Idle_TO_WaitingForBill", nil)
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if e3.ID <= e2.ID {
		t.Fatalf("expected monotonically increasing IDs across reopen, got %d after %d", e3.ID, e2.ID)
	}
}

func TestWALStoreSetStatusUnknownEntry(t *testing.T) {
	ws, err := OpenWALStore(filepath.Join(t.TempDir(), "wal.jsonl"))
	if err != nil {
		t.Fatalf("open wal store: %v", err)
	}
	defer ws.Close()

	if err := ws.SetStatus(999, core.WALRolledBack); err == nil {
		t.Fatalf("expected error setting status on unknown entry")
	}
}

func TestWALStoreLatestStatusWinsOnReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.jsonl")

	ws, err := OpenWALStore(path)
	if err != nil {
		t.Fatalf("open wal store: %v", err)
	}

	e, err := ws.Append("tx-1", "STATE_Idle_TO_WaitingForBill", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ws.SetStatus(e.ID, core.WALCompleted); err != nil {
		t.Fatalf("set status completed: %v", err)
	}
	if err := ws.SetStatus(e.ID, core.WALRolledBack); err != nil {
		t.Fatalf("set status rolled back: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ws2, err := OpenWALStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ws2.Close()

	if len(ws2.Pending()) != 0 {
		t.Fatalf("expected no pending entries after rollback replay")
	}
}
