package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"moneychanger/internal/api"
	"moneychanger/internal/capability"
	"moneychanger/internal/core"
	"moneychanger/internal/engine"
	"moneychanger/internal/serial"
	"moneychanger/internal/store"
	"moneychanger/pkg/config"
)

// app is the kiosk's application lifecycle object: it owns every wired
// component and the order they start up and tear down in. Nothing here is
// a package global; config.Config and every collaborator are held as
// explicit fields, constructed once in newApp and threaded through by
// reference.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	billGpio core.Gpio
	camera   core.Camera
	auth     core.Authenticator

	billLink *serial.Link
	coinLink *serial.Link
	billCtl  *serial.BillController
	coinCtl  *serial.CoinSecurityController

	state *core.MachineStateStore
	hub   *engine.Hub

	dispatcher *engine.EventDispatcher
	pipeline   *engine.BillPipeline
	dispense   *engine.DispenseOrchestrator
	orch       *engine.TransactionOrchestrator

	txStore  *store.TransactionStore
	walStore *store.WALStore

	router http.Handler
}

func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	a.hub = engine.NewHub()

	a.state = core.NewMachineStateStore(core.Thresholds{
		StorageSlotCapacity: cfg.Consumables.StorageSlotCapacity,
		LowBillThreshold:    cfg.Consumables.LowBillThreshold,
		LowCoinThreshold:    cfg.Consumables.LowCoinThreshold,
	}, func(snap core.MachineStateSnapshot) {
		a.hub.Broadcast("StateChange", snap)
	})

	if err := a.openStores(); err != nil {
		return nil, err
	}
	if err := a.openCapabilities(); err != nil {
		return nil, err
	}
	if err := a.openLinks(); err != nil {
		return nil, err
	}
	a.buildEngine()
	a.buildRouter()

	return a, nil
}

func (a *app) openStores() error {
	var err error
	a.txStore, err = store.OpenTransactionStore(filepath.Join(a.cfg.Storage.DataDir, "transactions.jsonl"))
	if err != nil {
		return fmt.Errorf("open transaction store: %w", err)
	}
	a.walStore, err = store.OpenWALStore(filepath.Join(a.cfg.Storage.DataDir, "wal.jsonl"))
	if err != nil {
		return fmt.Errorf("open wal store: %w", err)
	}
	return nil
}

// openCapabilities selects the simulator or hardware implementation of
// each capability per the config's use_mock_hardware flag, the only place
// in the application that branches on that setting (openPort branches on
// use_mock for the serial ports).
func (a *app) openCapabilities() error {
	if a.cfg.Serial.UseMockHw {
		a.billGpio = capability.NewSimGpio()
		a.camera = capability.NewSimCamera(640, 480)
		a.auth = capability.NewSimAuthenticator()
	} else {
		a.billGpio = capability.NewSysfsGpio("/sys/class/gpio")
		a.camera = capability.NewV4L2Camera("/dev/video0", 640, 480)
		a.auth = capability.NewHTTPAuthenticator("http://localhost:9000", 0.8)
	}

	ctx := context.Background()
	if err := a.billGpio.Setup(ctx); err != nil {
		return fmt.Errorf("gpio setup: %w", err)
	}
	if err := a.camera.Initialize(ctx); err != nil {
		return fmt.Errorf("camera initialize: %w", err)
	}
	return nil
}

func (a *app) openLinks() error {
	billPort, err := a.openPort(a.cfg.Serial.PortBill)
	if err != nil {
		return fmt.Errorf("open bill port: %w", err)
	}
	coinPort, err := a.openPort(a.cfg.Serial.PortCoin)
	if err != nil {
		return fmt.Errorf("open coin port: %w", err)
	}

	a.dispatcher = engine.NewEventDispatcher(a.state, a.hub, a.handleCoinIn, a.log)
	a.billLink = serial.NewLink("bill", billPort, a.dispatcher.HandlerFor("bill"), a.cfg.Serial.Timeout, a.log)
	a.coinLink = serial.NewLink("coin", coinPort, a.dispatcher.HandlerFor("coin"), a.cfg.Serial.Timeout, a.log)
	a.billCtl = serial.NewBillController(a.billLink)
	a.coinCtl = serial.NewCoinSecurityController(a.coinLink)
	return nil
}

func (a *app) openPort(path string) (serial.Port, error) {
	if a.cfg.Serial.UseMock {
		return serial.NewSimPort(a.cfg.Serial.MockDelay), nil
	}
	return serial.OpenTTYPort(path)
}

// handleCoinIn is the bridge between an unsolicited COIN_IN serial event
// and the active transaction's inserted-amount accounting.
func (a *app) handleCoinIn(denom core.CoinDenom, total int) {
	if _, err := a.orch.HandleCoinInserted(context.Background(), denom, total); err != nil {
		a.log.WithError(err).Debug("coin insert ignored: no active transaction")
	}
}

func (a *app) buildEngine() {
	pipelineCfg := engine.BillPipelineConfig{
		AcceptanceTimeout: a.cfg.BillAcceptor.AcceptanceTimeout,
		PositionTimeout:   a.cfg.BillAcceptor.PositionTimeout,
		LEDStabilizeDelay: a.cfg.BillAcceptor.LEDStabilizeDelay,
		PullSpeed:         a.cfg.BillAcceptor.PullSpeed,
		EjectSpeed:        a.cfg.BillAcceptor.EjectSpeed,
		StoreSpeed:        a.cfg.BillAcceptor.StoreSpeed,
		StoreDuration:     a.cfg.BillAcceptor.StoreDuration,
		EjectDuration:     a.cfg.BillAcceptor.EjectDuration,
	}
	a.pipeline = engine.NewBillPipeline(a.billGpio, a.camera, a.auth, a.billCtl, a.state, a.hub, pipelineCfg, a.log)
	a.dispense = engine.NewDispenseOrchestrator(a.billCtl, a.coinCtl, a.state, a.walStore, a.hub, a.log)
	a.orch = engine.NewTransactionOrchestrator(a.txStore, a.walStore, a.state, a.pipeline, a.dispense, a.hub, a.log)
}

func (a *app) buildRouter() {
	txCtrl := api.NewTransactionController(a.orch, a.txStore, a.log)
	wsHub := api.NewWebSocketHub(a.hub, a.log)
	a.router = api.NewRouter(txCtrl, wsHub, a.log)
}

// recover runs the orchestrator's crash-recovery scan; called once at
// startup, after every component is wired but before the HTTP server
// starts accepting requests.
func (a *app) recover(ctx context.Context) {
	a.orch.RecoverCrashedTransactions(ctx)
}

// shutdown tears everything down in order: stop dispatcher, close links,
// release camera, cleanup GPIO, dispose DB. The dispatcher has no
// separate stop call; closing the links it reads from silences it.
func (a *app) shutdown(ctx context.Context) {
	_ = a.billLink.Close()
	_ = a.coinLink.Close()
	_ = a.camera.Release(ctx)
	_ = a.billGpio.Cleanup(ctx)
	_ = a.txStore.Close()
	_ = a.walStore.Close()
}
