package mqtt

import "fmt"

// Wire topics for the dispatch core, mirrored on both the dispatcher and
// fleet sides of the broker.
const (
	// TopicBidNotice carries BidNotice messages broadcast to every fleet.
	TopicBidNotice = "dispatch/bidding/notice"
	// TopicProposal carries BidProposal messages published by fleets.
	TopicProposal = "dispatch/bidding/proposal"
	// TopicStatus carries TaskStatus reports published by fleets.
	TopicStatus = "dispatch/status"
	// TopicActiveTasks carries the periodic active-task snapshot, retained
	// so late subscribers see the current state.
	TopicActiveTasks = "dispatch/tasks/active"
	// topicDispatchRequestWildcard subscribes to every fleet's request topic.
	topicDispatchRequestWildcard = "dispatch/fleet/+/request"
	// topicAckWildcard subscribes to every fleet's ack topic.
	topicAckWildcard = "dispatch/fleet/+/ack"
)

// TopicDispatchRequest is the per-fleet topic the dispatcher sends ADD and
// CANCEL dispatch requests on.
func TopicDispatchRequest(fleetName string) string {
	return fmt.Sprintf("dispatch/fleet/%s/request", fleetName)
}

// TopicAck is the per-fleet topic a fleet acknowledges dispatch requests on.
func TopicAck(fleetName string) string {
	return fmt.Sprintf("dispatch/fleet/%s/ack", fleetName)
}
