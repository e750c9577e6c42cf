// Package events defines the dispatch-related events emitted on the
// internal event bus.
//
// Available event types:
//   - SubmittedEvent: a task was accepted and enqueued for auction
//   - StateChangeEvent: a task's status transitioned
//   - ProposalEvent: a fleet published a bid proposal
//   - AckEvent: a fleet acknowledged a dispatch request
//   - AuctionEvent: the auctioneer opened or closed a bidding window
package events
