package capability

import (
	"context"
	"sync"

	"moneychanger/internal/core"
)

// SimAuthenticator is a configurable stand-in for the UV-genuineness and
// denomination-identification inference models. By default every bill
// authenticates as genuine PHP_100 at high confidence; tests reconfigure
// it per scenario.
type SimAuthenticator struct {
	mu sync.Mutex

	nextGenuine      bool
	nextDenomination core.BillDenom
	nextIdentified   bool
	authConfidence   float64
	denomConfidence  float64
	authCallCount    int
	denomCallCount   int
}

func NewSimAuthenticator() *SimAuthenticator {
	return &SimAuthenticator{
		nextGenuine:      true,
		nextDenomination: core.PHP100,
		nextIdentified:   true,
		authConfidence:   0.95,
		denomConfidence:  0.92,
	}
}

func (a *SimAuthenticator) Authenticate(ctx context.Context, uvFrame core.Frame) (core.AuthResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authCallCount++
	label := "fake"
	if a.nextGenuine {
		label = "genuine"
	}
	return core.AuthResult{IsGenuine: a.nextGenuine, Confidence: a.authConfidence, RawLabel: label}, nil
}

func (a *SimAuthenticator) IdentifyDenomination(ctx context.Context, visibleFrame core.Frame) (core.DenomResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.denomCallCount++
	if !a.nextIdentified {
		return core.DenomResult{Confidence: a.denomConfidence, Identified: false, RawLabel: "unknown"}, nil
	}
	return core.DenomResult{
		Confidence:   a.denomConfidence,
		Denomination: a.nextDenomination,
		Identified:   true,
		RawLabel:     string(a.nextDenomination),
	}, nil
}

// SetRejectNext makes every later Authenticate call report a counterfeit,
// until SetAcceptNext or Reset.
func (a *SimAuthenticator) SetRejectNext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextGenuine = false
}

// SetAcceptNext makes every later Authenticate call report a genuine bill,
// until SetRejectNext.
func (a *SimAuthenticator) SetAcceptNext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextGenuine = true
}

// SetNextDenomination sets the denomination every later
// IdentifyDenomination call reports, until changed or Reset.
func (a *SimAuthenticator) SetNextDenomination(denom core.BillDenom) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextDenomination = denom
	a.nextIdentified = true
}

// SetUnknownDenomination makes every later IdentifyDenomination call
// report no match, until SetNextDenomination or Reset.
func (a *SimAuthenticator) SetUnknownDenomination() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextIdentified = false
}

// Reset restores default behavior and call counters.
func (a *SimAuthenticator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextGenuine = true
	a.nextDenomination = core.PHP100
	a.nextIdentified = true
	a.authConfidence = 0.95
	a.denomConfidence = 0.92
	a.authCallCount = 0
	a.denomCallCount = 0
}

// CallCounts reports how many times each inference entry point has been
// called, for test assertions.
func (a *SimAuthenticator) CallCounts() (auth, denom int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authCallCount, a.denomCallCount
}

var _ core.Authenticator = (*SimAuthenticator)(nil)
