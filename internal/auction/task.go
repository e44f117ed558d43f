// Package auction drives the task lifecycle: posting, the bounded
// bid-collection window, reputation-weighted selection, delegation, proof
// acceptance, and settlement handoff. Each task runs its own event-driven
// state machine; unrelated tasks share nothing but the Trust Ledger.
package auction

import (
	"fmt"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// State is a position in the task lifecycle.
type State int

const (
	StatePosted State = iota
	StateBiddingOpen
	StateBiddingClosed
	StateDelegated
	StateInProgress
	StateProofSubmitted
	StateVerified
	StatePaymentPending
	StateCompleted
	StateRejected
	StateExpired
	StateFailed
)

var stateNames = map[State]string{
	StatePosted:         "Posted",
	StateBiddingOpen:    "BiddingOpen",
	StateBiddingClosed:  "BiddingClosed",
	StateDelegated:      "Delegated",
	StateInProgress:     "InProgress",
	StateProofSubmitted: "ProofSubmitted",
	StateVerified:       "Verified",
	StatePaymentPending: "PaymentPending",
	StateCompleted:      "Completed",
	StateRejected:       "Rejected",
	StateExpired:        "Expired",
	StateFailed:         "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateExpired, StateFailed:
		return true
	}
	return false
}

// Well-known skill tags. Any string skill tag is accepted; these just name
// the common ones.
const (
	SkillImageGeneration = "image_generation"
	SkillDataProcessing  = "data_processing"
	SkillWebResearch     = "web_research"
)

// TaskSpec is what an initiator supplies when posting a task.
type TaskSpec struct {
	Skill    string
	Budget   float64
	Deadline time.Time
}

// InvalidTaskError rejects a malformed task at creation. Never retried.
type InvalidTaskError struct {
	Reason string
}

func (e *InvalidTaskError) Error() string {
	return "invalid task: " + e.Reason
}

// Bid is one peer's offer for a task. Immutable once recorded; a later bid
// from the same peer before window close supersedes it wholesale.
type Bid struct {
	TaskID    string          `json:"task_id"`
	Bidder    identity.PeerID `json:"bidder"`
	Price     float64         `json:"price"`
	ETA       int64           `json:"eta,omitempty"`
	Submitted time.Time       `json:"submitted"`
}

// TaskSnapshot is the queryable view of a task. The initiator observes every
// state; the worker holds a read-only view from delegation onward.
type TaskSnapshot struct {
	ID       string          `json:"id"`
	Skill    string          `json:"skill"`
	Budget   float64         `json:"budget"`
	Deadline time.Time       `json:"deadline"`
	Creator  identity.PeerID `json:"creator"`
	State    string          `json:"state"`

	// Worker is set once delegated; at most one worker ever.
	Worker identity.PeerID `json:"worker,omitempty"`

	// Reason explains terminal states like Expired ("no eligible bids") and
	// Failed (settlement exhaustion, unreachable worker).
	Reason string `json:"reason,omitempty"`

	// Candidates is the eligible peer count discovery resolved at post time.
	Candidates int `json:"candidates"`

	BidsReceived  int        `json:"bids_received"`
	WinningBid    *Bid       `json:"winning_bid,omitempty"`
	SettlementRef string     `json:"settlement_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	TerminalAt    *time.Time `json:"terminal_at,omitempty"`
}
