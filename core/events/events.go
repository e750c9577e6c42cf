package events

import (
	"time"

	"github.com/fleetcore/dispatchd/core/model"
)

// SubmittedEvent is published when a new task is accepted and enqueued.
type SubmittedEvent struct {
	Profile model.TaskProfile
}

// StateChangeEvent is published on every TaskStatus transition.
type StateChangeEvent struct {
	Status model.TaskStatus
}

// ProposalEvent is published when a fleet submits a bid proposal.
type ProposalEvent struct {
	Proposal model.BidProposal
}

// AckEvent is published when a fleet answers a dispatch request.
type AckEvent struct {
	Ack model.DispatchAck
}

// AuctionEvent is emitted when the auctioneer opens or closes a bidding
// window. Action is either "opened" or "closed".
type AuctionEvent struct {
	TaskId model.TaskId
	Action string
	Time   time.Time
}
