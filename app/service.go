// Package app wires the config-driven pieces (transport, metrics, audit
// log, storage) into the two runnable node types: the dispatcher service
// and a per-fleet service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcore/dispatchd/app/plugins"
	"github.com/fleetcore/dispatchd/config"
	"github.com/fleetcore/dispatchd/core/auditlog"
	"github.com/fleetcore/dispatchd/core/dispatcher"
	"github.com/fleetcore/dispatchd/core/events"
	"github.com/fleetcore/dispatchd/core/executor"
	coremetrics "github.com/fleetcore/dispatchd/core/metrics"
	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/infra/logger"
	"github.com/fleetcore/dispatchd/infra/mqtt"
	_ "github.com/fleetcore/dispatchd/infra/metrics"
	"github.com/fleetcore/dispatchd/internal/eventbus"
)

// Service hosts the dispatcher node: the Auctioneer/Dispatcher pair behind
// its executor, the MQTT transport that carries bid notices, dispatch
// requests and acknowledgements, and an audit log subscriber recording
// every terminal task transition.
type Service struct {
	Dispatcher *dispatcher.Dispatcher

	exec   *executor.Executor
	client *mqtt.Client
	bus    eventbus.EventBus
	audit  auditlog.Store
	log    logger.Logger
}

// New builds the dispatcher service from configuration. The MQTT client is
// constructed with no fleet name: the dispatcher never receives
// fleet-scoped dispatch requests, only the proposals/acks/statuses every
// fleet publishes.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("dispatcher-service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	store, err := auditlog.New(auditlog.Options{
		Path:       cfg.Logging.Path,
		Rotate:     cfg.Logging.Rotate,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	exec := executor.New()
	bus := eventbus.New()

	var d *dispatcher.Dispatcher
	client, err := mqtt.NewClient(cfg.MQTT, "", mqtt.Handlers{
		OnProposal: func(p model.BidProposal) { exec.Schedule(func() { d.ReceiveProposal(p) }) },
		OnAck:      func(a model.DispatchAck) { exec.Schedule(func() { d.ReceiveDispatchAck(a) }) },
		OnStatus:   func(s model.TaskStatus) { exec.Schedule(func() { d.ReceiveStatus(s) }) },
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	d = dispatcher.New(exec, client, client, client, logg, sink, cfg.Dispatcher)
	d.SetEventBus(bus)

	if cfg.Evaluator.Type != "" {
		eval, err := plugins.Evaluators.Create(cfg.Evaluator)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("evaluator: %w", err)
		}
		d.SetEvaluator(eval)
	}

	return &Service{
		Dispatcher: d,
		exec:       exec,
		client:     client,
		bus:        bus,
		audit:      store,
		log:        logg,
	}, nil
}

// Run starts the periodic active-tasks publisher and the audit log
// subscriber, then blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.exec.Schedule(s.Dispatcher.Start)

	sub := s.bus.Subscribe()
	go s.consumeAuditEvents(ctx, sub)

	<-ctx.Done()
	return nil
}

func (s *Service) consumeAuditEvents(ctx context.Context, sub <-chan eventbus.Event) {
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			sc, ok := e.(events.StateChangeEvent)
			if !ok || !sc.Status.State.Terminal() {
				continue
			}
			if err := s.audit.Append(ctx, auditlog.FromStatus(sc.Status, time.Now())); err != nil {
				s.log.Warnf("audit log append failed: %v", err)
			}
		}
	}
}

// Executor returns the executor the Dispatcher runs on, for callers (the
// HTTP API) that need to schedule work onto it safely.
func (s *Service) Executor() *executor.Executor { return s.exec }

// Audit returns the audit log store backing this service, for callers that
// need to query it directly (the HTTP API's log endpoint).
func (s *Service) Audit() auditlog.Store { return s.audit }

// Close releases every resource the service holds.
func (s *Service) Close() error {
	s.exec.Close()
	s.client.Disconnect()
	s.bus.Close()
	return s.audit.Close()
}
