// Command sahayakd is the desktop assistant coordination daemon. It
// listens for global keyboard shortcuts, captures on-screen context, and
// pushes overlay state changes to connected presentation clients.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/broadcast"
	"github.com/hirawatt/sahayak/internal/capture"
	"github.com/hirawatt/sahayak/internal/config"
	"github.com/hirawatt/sahayak/internal/extract"
	"github.com/hirawatt/sahayak/internal/input"
	"github.com/hirawatt/sahayak/internal/orchestrator"
	"github.com/hirawatt/sahayak/internal/overlay"
	"github.com/hirawatt/sahayak/internal/protocol"
	"github.com/hirawatt/sahayak/internal/shortcuts"
	"github.com/hirawatt/sahayak/internal/snapshot"
	"github.com/hirawatt/sahayak/internal/store"
)

const (
	keyShortcuts     = "shortcuts"
	keyOverlayStates = "overlay_states"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalw("daemon exited", "error", err)
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := loadRegistry(st, log)
	if err != nil {
		return err
	}

	machine := overlay.NewStateMachine(log, func(id protocol.OverlayID, visible bool) {
		persistOverlayStates(st, log, id, visible)
	})
	seedOverlayStates(st, machine)

	backend := capture.NewBackend(log, cfg.CaptureTimeout,
		capture.GNOMEShell{},
		capture.Display{},
		capture.GnomeScreenshotTool(),
		capture.GrimTool(),
	)

	var engine extract.Engine
	switch cfg.OCREngine {
	case "vision":
		engine = extract.NewVision(log, extract.VisionConfig{
			APIKey:    cfg.OpenRouterAPIKey,
			Model:     cfg.VisionModel,
			Providers: cfg.VisionProviders,
		})
	default:
		engine = extract.NewTesseract(log, cfg.TesseractBinary, nil)
	}
	log.Infow("OCR engine selected", "engine", engine.Name())

	selection := extract.NewSelectionReader(log, cfg.SelectionTimeout, nil)
	title := snapshot.NewXDoTitleReader(log, cfg.SelectionTimeout, nil)
	aggregator := snapshot.NewAggregator(log, backend, engine, selection, title, snapshot.Options{
		Lang:       cfg.Lang,
		OCRTimeout: cfg.OCRTimeout,
	})

	var hub *broadcast.Hub
	orch := orchestrator.New(log, machine, aggregator, publisherFunc(func(env protocol.Envelope) {
		hub.Publish(env)
	}), orchestrator.Options{
		Workers:         cfg.SnapshotWorkers,
		SnapshotTimeout: cfg.SnapshotTimeout,
	})
	hub = broadcast.NewHub(log, orch.Submit)

	listener := input.NewListener(log, registry, cfg.HotkeyDebounce, input.NewHookSource())
	listener.OnShortcut = orch.HandleShortcut
	listener.OnDegraded = func(err *input.DeviceError) {
		log.Warnw("running with degraded input capability", "error", err)
	}

	server := broadcast.NewServer(log, cfg.ListenAddr, hub, machine, registry, orch.Submit)

	go hub.Run(ctx)
	go func() {
		if err := server.Run(ctx); err != nil {
			log.Errorw("HTTP server failed", "error", err)
			stop()
		}
	}()
	go func() {
		// The listener's source goroutine is the only place allowed to
		// block indefinitely on hardware.
		_ = listener.Run(ctx)
	}()

	log.Infow("sahayakd started", "listen_addr", cfg.ListenAddr)
	return orch.Run(ctx)
}

type publisherFunc func(protocol.Envelope)

func (f publisherFunc) Publish(env protocol.Envelope) { f(env) }

func loadRegistry(st *store.Store, log *zap.SugaredLogger) (*shortcuts.Registry, error) {
	persist := func(list []shortcuts.Shortcut) error {
		return st.Put(keyShortcuts, list)
	}

	var saved []shortcuts.Shortcut
	err := st.Get(keyShortcuts, &saved)
	switch {
	case err == nil && len(saved) > 0:
		if reg, cerr := shortcuts.NewRegistry(saved, persist); cerr == nil {
			return reg, nil
		}
		log.Warnw("persisted shortcuts invalid, falling back to defaults")
	case err != nil && !errors.Is(err, store.ErrNotFound):
		log.Warnw("could not read persisted shortcuts", "error", err)
	}
	return shortcuts.NewRegistry(shortcuts.Defaults(), persist)
}

func seedOverlayStates(st *store.Store, machine *overlay.StateMachine) {
	var states map[protocol.OverlayID]bool
	if err := st.Get(keyOverlayStates, &states); err != nil {
		return
	}
	for id, visible := range states {
		machine.Seed(id, visible)
	}
}

func persistOverlayStates(st *store.Store, log *zap.SugaredLogger, id protocol.OverlayID, visible bool) {
	states := make(map[protocol.OverlayID]bool)
	_ = st.Get(keyOverlayStates, &states)
	states[id] = visible
	if err := st.Put(keyOverlayStates, states); err != nil {
		log.Warnw("could not persist overlay states", "overlay", id, "error", err)
	}
}
