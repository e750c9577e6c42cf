package mqtt

import (
	"sync"

	"github.com/fleetcore/dispatchd/core/model"
)

// MemoryTransport is an in-process double implementing every transport
// interface the dispatch core depends on, for tests and the bundled
// scenario runner that don't need a live broker.
type MemoryTransport struct {
	mu sync.Mutex

	notices      []model.BidNotice
	requests     []model.DispatchRequest
	proposals    []model.BidProposal
	acks         []model.DispatchAck
	statuses     []model.TaskStatus
	activeTasks  [][]model.TaskSummary

	OnBidNotice       func(model.BidNotice)
	OnDispatchRequest func(model.DispatchRequest)
	OnProposal        func(model.BidProposal)
	OnAck             func(model.DispatchAck)
	OnStatus          func(model.TaskStatus)
}

// NewMemoryTransport returns an empty MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

func (m *MemoryTransport) BroadcastBidNotice(n model.BidNotice) error {
	m.mu.Lock()
	m.notices = append(m.notices, n)
	cb := m.OnBidNotice
	m.mu.Unlock()
	if cb != nil {
		cb(n)
	}
	return nil
}

func (m *MemoryTransport) SendDispatchRequest(r model.DispatchRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, r)
	cb := m.OnDispatchRequest
	m.mu.Unlock()
	if cb != nil {
		cb(r)
	}
	return nil
}

func (m *MemoryTransport) PublishProposal(p model.BidProposal) error {
	m.mu.Lock()
	m.proposals = append(m.proposals, p)
	cb := m.OnProposal
	m.mu.Unlock()
	if cb != nil {
		cb(p)
	}
	return nil
}

func (m *MemoryTransport) PublishAck(a model.DispatchAck) error {
	m.mu.Lock()
	m.acks = append(m.acks, a)
	cb := m.OnAck
	m.mu.Unlock()
	if cb != nil {
		cb(a)
	}
	return nil
}

func (m *MemoryTransport) PublishStatus(s model.TaskStatus) error {
	m.mu.Lock()
	m.statuses = append(m.statuses, s)
	cb := m.OnStatus
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	return nil
}

func (m *MemoryTransport) PublishActiveTasks(tasks []model.TaskSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTasks = append(m.activeTasks, tasks)
	return nil
}

// Requests returns every dispatch request sent so far, for assertions.
func (m *MemoryTransport) Requests() []model.DispatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DispatchRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastActiveTasks returns the most recent active-tasks snapshot, if any.
func (m *MemoryTransport) LastActiveTasks() ([]model.TaskSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.activeTasks) == 0 {
		return nil, false
	}
	return m.activeTasks[len(m.activeTasks)-1], true
}
