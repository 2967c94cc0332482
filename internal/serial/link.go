package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
)

// EventHandler receives an unsolicited frame pushed by firmware outside
// of any request/response exchange (COIN_IN, TAMPER, DOOR_STATE, ...).
type EventHandler func(evt Frame, data map[string]any)

type pendingCall struct {
	respCh chan Frame
	data   chan map[string]any
}

// Link owns one peripheral port: a dedicated reader goroutine turns its
// blocking reads into frames, a write mutex serializes outbound commands,
// and a single pending-call slot correlates the next response line with
// the in-flight Send call. At most one request may be outstanding on a
// link at a time, matching the firmware's own single-threaded command
// loop.
type Link struct {
	name    string
	port    Port
	onEvent EventHandler
	log     *logrus.Entry

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   *pendingCall

	closeOnce sync.Once
	closed    chan struct{}

	defaultTimeout time.Duration
}

// NewLink constructs a Link and starts its reader goroutine.
func NewLink(name string, port Port, onEvent EventHandler, defaultTimeout time.Duration, log *logrus.Logger) *Link {
	l := &Link{
		name:           name,
		port:           port,
		onEvent:        onEvent,
		log:            log.WithField("link", name),
		closed:         make(chan struct{}),
		defaultTimeout: defaultTimeout,
	}
	go l.readLoop()
	return l
}

// Send writes cmd and blocks until a response frame arrives, the link is
// closed, ctx is cancelled, or timeout elapses (0 uses the link default).
func (l *Link) Send(ctx context.Context, cmd Command, timeout time.Duration) (Frame, map[string]any, error) {
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}

	call := &pendingCall{respCh: make(chan Frame, 1), data: make(chan map[string]any, 1)}

	l.pendingMu.Lock()
	if l.pending != nil {
		l.pendingMu.Unlock()
		return Frame{}, nil, &core.SerialError{Port: l.name, Err: fmt.Errorf("a request is already in flight")}
	}
	l.pending = call
	l.pendingMu.Unlock()

	blob, err := cmd.marshal()
	if err != nil {
		l.clearPending(call)
		return Frame{}, nil, fmt.Errorf("marshal command: %w", err)
	}

	l.writeMu.Lock()
	_, err = l.port.Write(append(blob, '\n'))
	l.writeMu.Unlock()
	if err != nil {
		l.clearPending(call)
		return Frame{}, nil, &core.SerialError{Port: l.name, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-call.respCh:
		return resp, <-call.data, nil
	case <-timer.C:
		l.clearPending(call)
		return Frame{}, nil, &core.TimeoutError{Command: cmd.Cmd, Elapsed: timeout}
	case <-ctx.Done():
		l.clearPending(call)
		return Frame{}, nil, ctx.Err()
	case <-l.closed:
		l.clearPending(call)
		return Frame{}, nil, &core.SerialError{Port: l.name, Err: fmt.Errorf("link closed")}
	}
}

func (l *Link) clearPending(call *pendingCall) {
	l.pendingMu.Lock()
	if l.pending == call {
		l.pending = nil
	}
	l.pendingMu.Unlock()
}

// readLoop is the link's dedicated reader goroutine: it owns the only
// read of l.port and is the sole writer to response/event routing.
func (l *Link) readLoop() {
	scanner := newLineReader(l.port)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame, data, err := decodeFrame(line)
		if err != nil {
			l.log.WithError(err).Warn("discarding malformed frame")
			continue
		}
		switch {
		case frame.IsResponse():
			l.resolveResponse(frame, data)
		case frame.IsEvent():
			if l.onEvent != nil {
				l.onEvent(frame, data)
			}
		default:
			l.log.WithField("raw", string(line)).Warn("unclassified frame")
		}
	}
	close(l.closed)
}

func (l *Link) resolveResponse(frame Frame, data map[string]any) {
	l.pendingMu.Lock()
	call := l.pending
	l.pending = nil
	l.pendingMu.Unlock()
	if call == nil {
		l.log.WithField("status", frame.Status).Warn("response with no pending request")
		return
	}
	call.respCh <- frame
	call.data <- data
}

// Close closes the underlying port, which unblocks the reader goroutine.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.port.Close()
	})
	return err
}
