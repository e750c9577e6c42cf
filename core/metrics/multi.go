package metrics

// MultiSink fans dispatch events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink wrapping the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordTaskEvent(ev TaskEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTaskEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordAuction(ev AuctionEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(AuctionRecorder); ok {
			if err := r.RecordAuction(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordProposal(ev ProposalEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(ProposalRecorder); ok {
			if err := r.RecordProposal(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordDispatchAck(ev DispatchAckEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(DispatchAckRecorder); ok {
			if err := r.RecordDispatchAck(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordQueueDepth(active, terminal int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(QueueDepthRecorder); ok {
			if err := r.RecordQueueDepth(active, terminal); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordPlanningFailure(ev PlanningFailureEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(PlanningFailureRecorder); ok {
			if err := r.RecordPlanningFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ensure NopSink satisfies the optional recorder interfaces too, so it can
// stand in anywhere a fully-featured sink is expected.
var (
	_ AuctionRecorder          = NopSink{}
	_ ProposalRecorder         = NopSink{}
	_ DispatchAckRecorder      = NopSink{}
	_ QueueDepthRecorder       = NopSink{}
	_ PlanningFailureRecorder  = NopSink{}
)
