package trust

import (
	"context"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Outcome is a settlement result attributed to a worker.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

// Record is one peer's standing for one skill. Scores stay inside [0,1] and
// are only ever moved by the settlement-outcome update rule.
type Record struct {
	Peer       identity.PeerID `json:"peer"`
	Skill      string          `json:"skill"`
	Score      float64         `json:"score"`
	LastWorked time.Time       `json:"last_worked"`
	Completed  int64           `json:"completed"`
	Failed     int64           `json:"failed"`
}

// Store is the persistence contract for trust records. The ledger itself is
// authoritative in memory; a store replays records at startup and absorbs
// updates after every outcome.
type Store interface {
	LoadAll(ctx context.Context) ([]Record, error)
	Upsert(ctx context.Context, rec Record) error
	Close() error
}
