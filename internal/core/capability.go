package core

import "context"

// Frame is an RGB image captured by the camera. Implementations of
// Authenticator must not mutate the backing slice.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Gpio is the capability surface the bill-acceptance pipeline drives for
// motor control, entry/position sensing, and LED illumination. Two
// implementations exist: a hardware-backed one and a simulator, injected at
// construction — no reflection, no global singleton.
type Gpio interface {
	Setup(ctx context.Context) error
	Cleanup(ctx context.Context) error

	MotorForward(ctx context.Context, speed int) error
	MotorReverse(ctx context.Context, speed int) error
	MotorStop(ctx context.Context) error

	IsBillAtEntry(ctx context.Context) (bool, error)
	IsBillInPosition(ctx context.Context) (bool, error)

	UVLedOn(ctx context.Context) error
	UVLedOff(ctx context.Context) error
	WhiteLedOn(ctx context.Context) error
	WhiteLedOff(ctx context.Context) error
}

// Camera is the capability surface for frame capture under the sorter's
// inspection window. Initialize discards the first, unreliable frame off a
// freshly opened device itself; callers only ever see frames fit for
// authentication.
type Camera interface {
	Initialize(ctx context.Context) error
	CaptureFrame(ctx context.Context) (Frame, error)
	Release(ctx context.Context) error
}

// AuthResult is the outcome of a UV-light genuineness check.
type AuthResult struct {
	IsGenuine  bool
	Confidence float64
	RawLabel   string
}

// DenomResult is the outcome of a visible-light denomination identification.
// Denomination is the zero value when no match was found.
type DenomResult struct {
	Confidence   float64
	Denomination BillDenom
	Identified   bool
	RawLabel     string
}

// Authenticator is the ML inference capability the bill-acceptance pipeline
// calls after each LED-lit capture. Implementations must not mutate the
// input frame.
type Authenticator interface {
	Authenticate(ctx context.Context, uvFrame Frame) (AuthResult, error)
	IdentifyDenomination(ctx context.Context, visibleFrame Frame) (DenomResult, error)
}
