package serial

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"
)

// SimPort is an in-memory, scriptable stand-in for a real tty device,
// used when the kiosk runs in simulator mode and in tests. It decodes
// each written command line, dispatches it against a small firmware
// model, and writes back response lines through an io.Pipe so Read
// blocks exactly the way a real serial read would.
type SimPort struct {
	mu    sync.Mutex
	pr    *io.PipeReader
	pw    *io.PipeWriter
	delay time.Duration

	faultNext      string
	faultDispensed int
	faultHasCount  bool

	homed           bool
	currentPosition int
	currentSlot     int
	locked          bool
	coinTotal       int
	tamperActive    bool
}

// NewSimPort creates a SimPort. delay, when non-zero, is applied before
// every response to approximate real firmware latency.
func NewSimPort(delay time.Duration) *SimPort {
	pr, pw := io.Pipe()
	return &SimPort{pr: pr, pw: pw, delay: delay, locked: true}
}

func (s *SimPort) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *SimPort) Close() error {
	_ = s.pw.Close()
	return s.pr.Close()
}

// Write decodes one or more newline-delimited command objects and
// writes their responses back into the read side of the pipe.
func (s *SimPort) Write(data []byte) (int, error) {
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var cmd map[string]any
		if err := json.Unmarshal(line, &cmd); err != nil {
			s.respond(map[string]any{"status": "ERROR", "code": "PARSE_ERROR"})
			continue
		}
		for _, resp := range s.dispatch(cmd) {
			s.respond(resp)
		}
	}
	return len(data), nil
}

func (s *SimPort) respond(resp map[string]any) {
	blob, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = s.pw.Write(append(blob, '\n'))
}

// InjectFault makes the next dispatched command fail with code,
// regardless of which command it is.
func (s *SimPort) InjectFault(code string) {
	s.mu.Lock()
	s.faultNext = code
	s.faultHasCount = false
	s.mu.Unlock()
}

// InjectFaultWithCount makes the next dispatched command fail with code
// and a partial dispensed count, the way a jammed dispenser reports how
// many units it ejected before the fault.
func (s *SimPort) InjectFaultWithCount(code string, dispensed int) {
	s.mu.Lock()
	s.faultNext = code
	s.faultDispensed = dispensed
	s.faultHasCount = true
	s.mu.Unlock()
}

// InjectEvent pushes an unsolicited event frame directly onto the read
// side, bypassing command dispatch.
func (s *SimPort) InjectEvent(event map[string]any) {
	s.respond(event)
}

func (s *SimPort) dispatch(cmd map[string]any) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faultNext != "" {
		resp := map[string]any{"status": "ERROR", "code": s.faultNext}
		if s.faultHasCount {
			resp["dispensed"] = s.faultDispensed
		}
		s.faultNext = ""
		s.faultHasCount = false
		return []map[string]any{resp}
	}

	name, _ := cmd["cmd"].(string)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	switch name {
	case "SORT":
		return s.handleSort(cmd)
	case "HOME":
		s.homed = true
		s.currentPosition = 0
		s.currentSlot = 0
		return []map[string]any{{"status": "OK", "position": 0}}
	case "SORT_STATUS":
		return []map[string]any{{
			"status": "OK", "position": s.currentPosition, "slot": s.currentSlot, "homed": s.homed,
		}}
	case "DISPENSE":
		return s.handleDispense(cmd)
	case "DISPENSE_STATUS":
		return []map[string]any{{"status": "OK", "ready": true}}
	case "COIN_DISPENSE":
		return s.handleCoinDispense(cmd)
	case "COIN_CHANGE":
		return s.handleCoinChange(cmd)
	case "COIN_RESET":
		prev := s.coinTotal
		s.coinTotal = 0
		return []map[string]any{{"status": "OK", "previous_total": prev}}
	case "SECURITY_LOCK":
		s.locked = true
		return []map[string]any{{"status": "OK", "locked": true}}
	case "SECURITY_UNLOCK":
		s.locked = false
		return []map[string]any{{"status": "OK", "locked": false}}
	case "SECURITY_STATUS":
		return []map[string]any{{"status": "OK", "locked": s.locked, "tamper_active": s.tamperActive}}
	case "PING":
		return []map[string]any{{"status": "OK", "message": "PONG"}}
	case "VERSION":
		return []map[string]any{{"status": "OK", "version": "2.0.0"}}
	case "RESET":
		s.homed = false
		s.currentPosition = 0
		s.currentSlot = 0
		s.coinTotal = 0
		s.tamperActive = false
		return []map[string]any{{"status": "OK"}}
	default:
		return []map[string]any{{"status": "ERROR", "code": "UNKNOWN_CMD"}}
	}
}

func (s *SimPort) handleSort(cmd map[string]any) []map[string]any {
	if !s.homed {
		return []map[string]any{{"status": "ERROR", "code": "NOT_HOMED"}}
	}
	denomStr, _ := cmd["denom"].(string)
	slot, ok := slotPositions[denomStr]
	if !ok {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_DENOM"}}
	}
	s.currentSlot = slot
	s.currentPosition = stepperPositionBySlot[slot]
	return []map[string]any{{"status": "READY", "slot": slot}}
}

func (s *SimPort) handleDispense(cmd map[string]any) []map[string]any {
	denomStr, _ := cmd["denom"].(string)
	if _, ok := slotPositions[denomStr]; !ok {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_DENOM"}}
	}
	count := intField(cmd["count"])
	if count < 1 || count > 20 {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_COUNT"}}
	}
	return []map[string]any{{"status": "OK", "dispensed": count}}
}

func (s *SimPort) handleCoinDispense(cmd map[string]any) []map[string]any {
	denom := intField(cmd["denom"])
	if !validCoinDenoms[denom] {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_DENOM"}}
	}
	count := intField(cmd["count"])
	if count < 1 || count > 50 {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_COUNT"}}
	}
	s.coinTotal += denom * count
	return []map[string]any{{"status": "OK", "dispensed": count}}
}

func (s *SimPort) handleCoinChange(cmd map[string]any) []map[string]any {
	amount := intField(cmd["amount"])
	if amount < 1 {
		return []map[string]any{{"status": "ERROR", "code": "INVALID_COUNT"}}
	}
	remaining := amount
	breakdown := map[string]any{}
	for _, coin := range []int{20, 10, 5, 1} {
		if remaining >= coin {
			count := remaining / coin
			breakdown[strconv.Itoa(coin)] = count
			remaining -= coin * count
		}
	}
	return []map[string]any{{"status": "OK", "breakdown": breakdown}}
}

var slotPositions = map[string]int{
	"PHP_20": 1, "PHP_50": 2, "PHP_100": 3, "PHP_200": 4, "PHP_500": 5, "PHP_1000": 6,
	"USD_10": 7, "USD_50": 7, "USD_100": 7,
	"EUR_5": 8, "EUR_10": 8, "EUR_20": 8,
}

var stepperPositionBySlot = map[int]int{
	1: 2920, 2: 8760, 3: 14600, 4: 20440, 5: 26280, 6: 32120, 7: 37960, 8: 43800,
}

var validCoinDenoms = map[int]bool{1: true, 5: true, 10: true, 20: true}

func intField(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
