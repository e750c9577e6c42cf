package metrics

import (
	"strconv"

	coremetrics "github.com/fleetcore/dispatchd/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records dispatch-core events as Prometheus metrics. The HTTP
// exposition endpoint is wired by the caller; PromSink only registers
// collectors on the given registerer.
type PromSink struct {
	taskEvents       *prometheus.CounterVec
	auctions         *prometheus.CounterVec
	auctionDuration  *prometheus.HistogramVec
	proposals        *prometheus.CounterVec
	dispatchAcks     *prometheus.CounterVec
	planningFailures *prometheus.CounterVec
	activeTasks      prometheus.Gauge
	terminalTasks    prometheus.Gauge
}

// NewPromSink registers dispatch-core metrics on the default Prometheus
// registerer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A
// nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	taskEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_task_events_total",
		Help: "Total number of task lifecycle transitions recorded by the dispatcher.",
	}, []string{"task_type", "state", "fleet_name"})
	auctions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_auctions_total",
		Help: "Total number of completed auctions, labeled by whether a winner was found.",
	}, []string{"won"})
	auctionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_auction_duration_seconds",
		Help:    "Wall-clock duration of completed bidding windows.",
		Buckets: prometheus.DefBuckets,
	}, []string{"won"})
	proposals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_proposals_total",
		Help: "Total number of bid proposals published by fleets.",
	}, []string{"fleet_name"})
	dispatchAcks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_acks_total",
		Help: "Total number of dispatch-request acknowledgements received, labeled by success.",
	}, []string{"fleet_name", "success"})
	planningFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_planning_failures_total",
		Help: "Total number of planner errors encountered while allocating requests.",
	}, []string{"fleet_name", "kind"})
	activeTasks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_tasks",
		Help: "Current size of the dispatcher's active task table.",
	})
	terminalTasks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_terminal_tasks",
		Help: "Current size of the dispatcher's terminal task table.",
	})

	collectors := []prometheus.Collector{taskEvents, auctions, auctionDuration, proposals, dispatchAcks, planningFailures, activeTasks, terminalTasks}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				c = are.ExistingCollector
			} else {
				return nil, err
			}
		}
	}

	return &PromSink{
		taskEvents:       taskEvents,
		auctions:         auctions,
		auctionDuration:  auctionDuration,
		proposals:        proposals,
		dispatchAcks:     dispatchAcks,
		planningFailures: planningFailures,
		activeTasks:      activeTasks,
		terminalTasks:    terminalTasks,
	}, nil
}

func (s *PromSink) RecordTaskEvent(ev coremetrics.TaskEvent) error {
	s.taskEvents.WithLabelValues(ev.TaskType.String(), ev.State.String(), ev.FleetName).Inc()
	return nil
}

func (s *PromSink) RecordAuction(ev coremetrics.AuctionEvent) error {
	won := strconv.FormatBool(ev.Won)
	s.auctions.WithLabelValues(won).Inc()
	s.auctionDuration.WithLabelValues(won).Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordProposal(ev coremetrics.ProposalEvent) error {
	s.proposals.WithLabelValues(ev.Proposal.FleetName).Inc()
	return nil
}

func (s *PromSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	s.dispatchAcks.WithLabelValues(ev.Ack.FleetName, strconv.FormatBool(ev.Ack.Success)).Inc()
	return nil
}

func (s *PromSink) RecordQueueDepth(active, terminal int) error {
	s.activeTasks.Set(float64(active))
	s.terminalTasks.Set(float64(terminal))
	return nil
}

func (s *PromSink) RecordPlanningFailure(ev coremetrics.PlanningFailureEvent) error {
	s.planningFailures.WithLabelValues(ev.FleetName, ev.Kind).Inc()
	return nil
}
