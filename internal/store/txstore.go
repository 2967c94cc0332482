// Package store provides append-only, crash-safe persistence for
// transaction records and write-ahead log entries. Every mutation is
// appended as a JSON line, and the in-memory index is rebuilt by replaying
// the file from the start on open. There is no SQL engine underneath: the
// WAL file already is one, and a second storage engine would just add a
// dependency with nothing left for it to do.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"moneychanger/internal/core"
)

// TransactionStore persists Transaction records as an append-only log of
// full snapshots, keyed by ID. The most recent snapshot for a given ID wins
// on replay.
type TransactionStore struct {
	mu    sync.Mutex
	file  *os.File
	index map[string]*core.Transaction
}

// OpenTransactionStore opens (creating if necessary) the log file at path
// and replays it into memory.
func OpenTransactionStore(path string) (ts *TransactionStore, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open transaction store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	ts = &TransactionStore{file: f, index: make(map[string]*core.Transaction)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var tx core.Transaction
		if err = json.Unmarshal(scanner.Bytes(), &tx); err != nil {
			return nil, fmt.Errorf("transaction store replay: %w", err)
		}
		ts.index[tx.ID] = &tx
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("transaction store scan: %w", err)
	}
	return ts, nil
}

// Put appends tx as the new latest snapshot for its ID.
func (ts *TransactionStore) Put(tx *core.Transaction) error {
	blob, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, err := ts.file.Write(append(blob, '\n')); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	ts.index[tx.ID] = tx.Clone()
	return nil
}

// Get returns the latest known snapshot for id.
func (ts *TransactionStore) Get(id string) (*core.Transaction, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tx, ok := ts.index[id]
	if !ok {
		return nil, false
	}
	return tx.Clone(), true
}

// List returns every known transaction in unspecified order.
func (ts *TransactionStore) List() []*core.Transaction {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]*core.Transaction, 0, len(ts.index))
	for _, tx := range ts.index {
		out = append(out, tx.Clone())
	}
	return out
}

// Close closes the underlying file.
func (ts *TransactionStore) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.file.Close()
}
