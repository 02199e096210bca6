// Package monitor runs the live service: it keeps the store fed from the pod
// and the message bus, and serves it over HTTP.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/penwyp/podscope/internal/config"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/data/csvingest"
	"github.com/penwyp/podscope/internal/data/normalizer"
	"github.com/penwyp/podscope/internal/data/parser"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/feed/bus"
	"github.com/penwyp/podscope/internal/metrics"
	"github.com/penwyp/podscope/internal/server"
	"github.com/penwyp/podscope/internal/stream"
	"github.com/penwyp/podscope/internal/util"
)

// Orchestrator coordinates all components for the serve command
type Orchestrator struct {
	config       *config.Config
	timeProvider *util.TimeProvider

	// Core components
	metrics  *metrics.Metrics
	store    *aggregator.Store
	ingestor *csvingest.Ingestor
	parser   *parser.Parser

	// Pod feed, nil without a pod
	boundary     Boundary
	refreshCtrl  *RefreshController
	stateManager *StateManager

	listener *bus.Listener
	sessions *stream.Manager
	server   *server.Server
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := util.InitializeTimeProvider(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("failed to initialize time provider: %w", err)
	}
	tp := util.GetTimeProvider()

	m := metrics.New()
	o := &Orchestrator{
		config:       cfg,
		timeProvider: tp,
		metrics:      m,
		store: aggregator.NewStore(aggregator.StoreOptions{
			Capacity:          cfg.Capacity,
			UpdateLogCapacity: cfg.UpdateLogSize,
			TimeProvider:      tp,
			Observer:          m,
		}),
		ingestor: csvingest.NewIngestor(tp.Location()),
		parser: parser.NewParser(parser.Options{
			TimeProvider: tp,
			DayAnchor:    cfg.Pod.Anchor(),
			Concurrency:  cfg.Concurrency,
		}),
		stateManager: NewStateManager(cfg.Pod.Resources, tp.Now()),
	}

	boundary, err := NewBoundary(cfg.Pod)
	if err != nil {
		return nil, err
	}
	o.boundary = boundary
	if boundary != nil {
		rp := NewResourceParser(o.parser, normalizer.ForPod(tp), cfg.Pod.Resources)
		adapter := feed.NewAdapter(boundary, boundary, rp.Parse, feed.WithObserver(m))
		o.refreshCtrl = NewRefreshController(adapter, o.store, o.stateManager, cfg.Pod.Resources, tp)
	}

	o.sessions = stream.NewManager(stream.Options{
		SampleInterval:   cfg.Stream.SampleInterval,
		SnapshotInterval: cfg.Stream.SnapshotInterval,
		WindowSeconds:    cfg.Stream.WindowSeconds,
		Renderer:         stream.PNGRenderer{Width: cfg.Stream.PlotWidth, Height: cfg.Stream.PlotHeight},
		Observer:         m,
	})

	var slider *server.SliderTarget
	if boundary != nil && cfg.Pod.SliderResource != "" {
		slider = &server.SliderTarget{Fetcher: boundary, Writer: boundary, Resource: cfg.Pod.SliderResource}
	}
	o.server = server.New(server.Options{
		Addr:     cfg.Listen,
		Store:    o.store,
		Ingestor: o.ingestor,
		CSVDir:   cfg.CSVDir,
		Sessions: o.sessions,
		Slider:   slider,
		EDF: server.EDFOptions{
			Path:        cfg.Stream.EDFPath,
			SessionsDir: cfg.Stream.SessionsDir,
			Channel:     cfg.Stream.Channel,
		},
		Metrics:      m.Handler(),
		Status:       func() interface{} { return o.Status() },
		TimeProvider: tp,
	})

	return o, nil
}

// Store exposes the point store.
func (o *Orchestrator) Store() *aggregator.Store {
	return o.store
}

// Handler exposes the HTTP routes without listening.
func (o *Orchestrator) Handler() http.Handler {
	return o.server.Handler()
}

// Status combines resource state with store and session counts.
func (o *Orchestrator) Status() Status {
	status := o.stateManager.Snapshot()
	status.Live = len(o.store.Live())
	status.CSV = len(o.store.CSV())
	status.Sessions = o.sessions.Sessions()
	return status
}

// LoadCSV replaces the CSV set with the file at path.
func (o *Orchestrator) LoadCSV(path string) (int, error) {
	points, err := o.ingestor.IngestFile(path)
	if err != nil {
		return 0, fmt.Errorf("load csv %s: %w", path, err)
	}
	loaded := o.store.LoadCSV(normalizer.ForCSV(o.timeProvider).Normalize(points))
	util.LogInfo("Loaded CSV data", util.F("path", path), util.F("points", loaded))
	return loaded, nil
}

// Run starts every source and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.Close()

	util.LogInfo("Starting podscope",
		util.F("listen", o.config.Listen),
		util.F("resources", len(o.config.Pod.Resources)),
		util.F("timezone", o.timeProvider.Location().String()))

	if o.config.CSVPath != "" {
		if _, err := o.LoadCSV(o.config.CSVPath); err != nil {
			util.LogWarn("Initial CSV load failed", util.F("error", err))
		}
	}

	o.refreshData(ctx)

	if o.config.BusEnabled() {
		if err := o.startBus(ctx); err != nil {
			o.stateManager.SetBus("error")
			util.LogWarn("Message bus unavailable", util.F("error", err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- o.server.Run(ctx)
	}()

	ticker := time.NewTicker(o.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-serverErr
		case err := <-serverErr:
			return err
		case <-ticker.C:
			o.refreshData(ctx)
		}
	}
}

// refreshData reloads every resource and re-subscribes dropped channels.
func (o *Orchestrator) refreshData(ctx context.Context) {
	if o.refreshCtrl == nil {
		return
	}
	if err := o.refreshCtrl.RefreshAll(ctx); err != nil {
		util.LogWarn("Refresh incomplete", util.F("error", err))
	}
	if err := o.refreshCtrl.EnsureSubscriptions(ctx); err != nil {
		util.LogWarn("Some subscriptions are down", util.F("error", err))
	}
}

func (o *Orchestrator) startBus(ctx context.Context) error {
	busNormalizer := normalizer.ForBus(o.timeProvider)
	parse := func(blob string) []model.Point {
		return o.parser.ParseBlob(parser.FormatAuto, blob)
	}
	sink := func(points []model.Point) {
		o.store.Merge(busNormalizer.Normalize(points))
	}

	cfg := o.config.Bus
	listener, err := bus.Connect(bus.Options{
		URL:           cfg.URL,
		Subject:       cfg.Subject,
		ClientName:    cfg.ClientName,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
	}, parse, sink)
	if err != nil {
		return err
	}
	listener.OnHandled(o.metrics.ObserveBusMessage)
	if err := listener.Start(ctx); err != nil {
		listener.Close()
		return err
	}
	o.listener = listener
	o.stateManager.SetBus("listening on " + listener.Subject())
	return nil
}

// Close releases subscriptions and the bus connection.
func (o *Orchestrator) Close() error {
	if o.refreshCtrl != nil {
		o.refreshCtrl.Close()
	}
	if o.listener != nil {
		o.listener.Close()
		o.listener = nil
	}
	return nil
}
