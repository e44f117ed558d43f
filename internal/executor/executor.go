// Package executor holds the contracts handed to the external task-execution
// tooling. The protocol core never performs work or verifies proofs itself;
// it only defines the slots those collaborators plug into.
package executor

import (
	"context"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// TaskView is the read-only description a delegated worker receives.
type TaskView struct {
	TaskID   string
	Skill    string
	Creator  identity.PeerID
	MaxBid   float64
	Deadline time.Time
}

// Executor performs delegated work and returns an opaque proof-of-completion
// artifact. An error means the work failed; the worker reports nothing and
// the task expires at its deadline on the initiator side.
type Executor interface {
	Execute(ctx context.Context, task TaskView) (proof []byte, err error)
}

// ProofVerifier is the initiator-side acceptance contract for a submitted
// proof. Accept or reject; how verification happens is not this protocol's
// business.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, task TaskView, proof []byte) (bool, error)
}

// ExecutorFunc adapts a function to the Executor contract.
type ExecutorFunc func(ctx context.Context, task TaskView) ([]byte, error)

func (f ExecutorFunc) Execute(ctx context.Context, task TaskView) ([]byte, error) {
	return f(ctx, task)
}

// VerifierFunc adapts a function to the ProofVerifier contract.
type VerifierFunc func(ctx context.Context, task TaskView, proof []byte) (bool, error)

func (f VerifierFunc) VerifyProof(ctx context.Context, task TaskView, proof []byte) (bool, error) {
	return f(ctx, task, proof)
}
