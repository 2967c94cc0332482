package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"moneychanger/internal/core"
	"moneychanger/internal/serial"
)

const pollInterval = 50 * time.Millisecond

// BillPipelineConfig holds the timing and speed parameters the pipeline
// needs from the kiosk's configuration.
type BillPipelineConfig struct {
	AcceptanceTimeout time.Duration
	PositionTimeout   time.Duration
	LEDStabilizeDelay time.Duration
	PullSpeed         int
	EjectSpeed        int
	StoreSpeed        int
	StoreDuration     time.Duration
	EjectDuration     time.Duration
}

// PipelineResult is the outcome of one bill-acceptance attempt.
type PipelineResult struct {
	Success    bool
	Denom      core.BillDenom
	Value      int
	Reason     string // set on failure: TIMEOUT_ENTRY, TIMEOUT_POSITION, NOT_GENUINE, UNKNOWN_DENOMINATION, STORAGE_FULL
	AuthConf   float64
	DenomConf  float64
}

// BillPipeline drives one bill through the conveyor, UV/visible
// authentication, sorting, and storage. Every exit path — success,
// rejection, or panic — stops the motor and turns both LEDs off before
// returning; that guarantee is implemented with a deferred safe-shutdown
// that runs concurrently over the three independent GPIO lines.
type BillPipeline struct {
	gpio          core.Gpio
	camera        core.Camera
	authenticator core.Authenticator
	bill          *serial.BillController
	state         *core.MachineStateStore
	broadcaster   Broadcaster
	cfg           BillPipelineConfig
	log           *logrus.Entry
}

func NewBillPipeline(gpio core.Gpio, camera core.Camera, authenticator core.Authenticator, bill *serial.BillController, state *core.MachineStateStore, broadcaster Broadcaster, cfg BillPipelineConfig, log *logrus.Logger) *BillPipeline {
	return &BillPipeline{
		gpio: gpio, camera: camera, authenticator: authenticator, bill: bill,
		state: state, broadcaster: broadcaster, cfg: cfg,
		log: log.WithField("component", "bill_pipeline"),
	}
}

// Run executes one full bill-acceptance attempt.
func (p *BillPipeline) Run(ctx context.Context) (result PipelineResult, err error) {
	defer p.safeShutdown(ctx)

	detected, err := p.waitFor(ctx, p.cfg.AcceptanceTimeout, p.gpio.IsBillAtEntry)
	if err != nil {
		return PipelineResult{}, err
	}
	if !detected {
		return PipelineResult{Success: false, Reason: "TIMEOUT_ENTRY"}, nil
	}

	if err := p.gpio.MotorForward(ctx, p.cfg.PullSpeed); err != nil {
		return PipelineResult{}, err
	}
	inPosition, err := p.waitFor(ctx, p.cfg.PositionTimeout, p.gpio.IsBillInPosition)
	_ = p.gpio.MotorStop(ctx)
	if err != nil {
		return PipelineResult{}, err
	}
	if !inPosition {
		p.eject(ctx)
		return PipelineResult{Success: false, Reason: "TIMEOUT_POSITION"}, nil
	}

	authResult, err := p.authenticate(ctx)
	if err != nil {
		return PipelineResult{}, err
	}
	if !authResult.IsGenuine {
		p.eject(ctx)
		if p.broadcaster != nil {
			p.broadcaster.Broadcast("BillRejected", map[string]any{"reason": "NOT_GENUINE", "confidence": authResult.Confidence})
		}
		return PipelineResult{Success: false, Reason: "NOT_GENUINE", AuthConf: authResult.Confidence}, nil
	}

	denomResult, err := p.identifyDenomination(ctx)
	if err != nil {
		return PipelineResult{}, err
	}
	if !denomResult.Identified {
		p.eject(ctx)
		return PipelineResult{Success: false, Reason: "UNKNOWN_DENOMINATION", AuthConf: authResult.Confidence}, nil
	}

	if p.state.IsStorageFull(denomResult.Denomination) {
		p.eject(ctx)
		if p.broadcaster != nil {
			p.broadcaster.Broadcast("BillRejected", map[string]any{"reason": "STORAGE_FULL", "denom": denomResult.Denomination})
		}
		return PipelineResult{Success: false, Reason: "STORAGE_FULL", Denom: denomResult.Denomination}, nil
	}

	if err := p.sortWithRetry(ctx, denomResult.Denomination); err != nil {
		return PipelineResult{}, err
	}

	if err := p.gpio.MotorForward(ctx, p.cfg.StoreSpeed); err != nil {
		return PipelineResult{}, err
	}
	p.sleep(ctx, p.cfg.StoreDuration)
	_ = p.gpio.MotorStop(ctx)

	p.state.IncrementBillStorage(denomResult.Denomination, 1)
	value := core.BillValue(denomResult.Denomination)
	if p.broadcaster != nil {
		p.broadcaster.Broadcast("BillStored", map[string]any{"denom": denomResult.Denomination, "value": value})
	}

	return PipelineResult{
		Success: true, Denom: denomResult.Denomination, Value: value,
		AuthConf: authResult.Confidence, DenomConf: denomResult.Confidence,
	}, nil
}

func (p *BillPipeline) waitFor(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := check(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *BillPipeline) authenticate(ctx context.Context) (core.AuthResult, error) {
	if err := p.gpio.UVLedOn(ctx); err != nil {
		return core.AuthResult{}, err
	}
	p.sleep(ctx, p.cfg.LEDStabilizeDelay)
	frame, err := p.camera.CaptureFrame(ctx)
	_ = p.gpio.UVLedOff(ctx)
	if err != nil {
		return core.AuthResult{}, err
	}
	return p.authenticator.Authenticate(ctx, frame)
}

func (p *BillPipeline) identifyDenomination(ctx context.Context) (core.DenomResult, error) {
	if err := p.gpio.WhiteLedOn(ctx); err != nil {
		return core.DenomResult{}, err
	}
	p.sleep(ctx, p.cfg.LEDStabilizeDelay)
	frame, err := p.camera.CaptureFrame(ctx)
	_ = p.gpio.WhiteLedOff(ctx)
	if err != nil {
		return core.DenomResult{}, err
	}
	return p.authenticator.IdentifyDenomination(ctx, frame)
}

func (p *BillPipeline) sortWithRetry(ctx context.Context, denom core.BillDenom) error {
	if p.broadcaster != nil {
		p.broadcaster.Broadcast("BillSorting", map[string]any{"denom": denom})
	}
	_, err := p.bill.Sort(ctx, denom)
	if err == nil {
		return nil
	}
	hwErr, ok := err.(*core.HardwareError)
	if !ok || hwErr.Code != "NOT_HOMED" {
		return err
	}
	if homeErr := p.bill.Home(ctx); homeErr != nil {
		return homeErr
	}
	_, err = p.bill.Sort(ctx, denom)
	return err
}

func (p *BillPipeline) eject(ctx context.Context) {
	if err := p.gpio.MotorReverse(ctx, p.cfg.EjectSpeed); err != nil {
		p.log.WithError(err).Warn("eject: motor reverse failed")
		return
	}
	p.sleep(ctx, p.cfg.EjectDuration)
	if err := p.gpio.MotorStop(ctx); err != nil {
		p.log.WithError(err).Warn("eject: motor stop failed")
	}
}

func (p *BillPipeline) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// safeShutdown guarantees the motor is stopped and both LEDs are off on
// every exit path, including a panic unwinding through Run. A fresh
// background context is used so a caller-cancelled ctx never skips
// shutdown.
func (p *BillPipeline) safeShutdown(ctx context.Context) {
	shutdownCtx := context.Background()
	var g errgroup.Group
	g.Go(func() error { return p.gpio.MotorStop(shutdownCtx) })
	g.Go(func() error { return p.gpio.UVLedOff(shutdownCtx) })
	g.Go(func() error { return p.gpio.WhiteLedOff(shutdownCtx) })
	if err := g.Wait(); err != nil {
		p.log.WithError(err).Error("safe shutdown encountered an error")
	}
	if r := recover(); r != nil {
		p.log.WithField("panic", fmt.Sprintf("%v", r)).Error("bill pipeline panicked")
		panic(r)
	}
}
