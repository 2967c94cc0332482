package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"moneychanger/internal/core"
)

// WALStore persists WALEntry records as an append-only log keyed by
// autoincrement ID. Status updates are appended as new records for the same
// ID; the latest record for an ID wins on replay — this is the append-only
// analogue of an UPDATE, and keeps the file a pure write-ahead log.
type WALStore struct {
	mu     sync.Mutex
	file   *os.File
	index  map[int64]*core.WALEntry
	nextID int64
}

// OpenWALStore opens (creating if necessary) the log file at path and
// replays it into memory.
func OpenWALStore(path string) (ws *WALStore, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open wal store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	ws = &WALStore{file: f, index: make(map[int64]*core.WALEntry), nextID: 1}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e core.WALEntry
		if err = json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("wal store replay: %w", err)
		}
		ws.index[e.ID] = &e
		if e.ID >= ws.nextID {
			ws.nextID = e.ID + 1
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("wal store scan: %w", err)
	}
	return ws, nil
}

// Append writes a new Pending entry and returns it with its assigned ID.
func (ws *WALStore) Append(txID, action string, data []byte) (core.WALEntry, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	e := core.WALEntry{
		ID:            ws.nextID,
		TransactionID: txID,
		Action:        action,
		Data:          data,
		Status:        core.WALPending,
		CreatedAt:     time.Now(),
	}
	if err := ws.appendLocked(&e); err != nil {
		return core.WALEntry{}, err
	}
	ws.nextID++
	return e, nil
}

// SetStatus appends an updated copy of entry id with the given status.
func (ws *WALStore) SetStatus(id int64, status core.WALStatus) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	existing, ok := ws.index[id]
	if !ok {
		return fmt.Errorf("wal entry %d not found", id)
	}
	updated := *existing
	updated.Status = status
	return ws.appendLocked(&updated)
}

func (ws *WALStore) appendLocked(e *core.WALEntry) error {
	blob, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal wal entry: %w", err)
	}
	if _, err := ws.file.Write(append(blob, '\n')); err != nil {
		return fmt.Errorf("append wal entry: %w", err)
	}
	cp := *e
	ws.index[e.ID] = &cp
	return nil
}

// Pending returns every entry whose latest recorded status is Pending, in
// ascending ID order — crash evidence to be scanned on process start.
func (ws *WALStore) Pending() []core.WALEntry {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out []core.WALEntry
	for _, e := range ws.index {
		if e.Status == core.WALPending {
			out = append(out, *e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Close closes the underlying file.
func (ws *WALStore) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.file.Close()
}
