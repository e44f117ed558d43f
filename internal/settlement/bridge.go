// Package settlement defines the contract the external wallet/blockchain
// layer implements (escrow, release-on-proof, confirmation, balance) and a
// bounded-backoff retrier that translates transient settlement failures into
// either success or a terminal, operator-visible failure.
package settlement

import (
	"context"
	"errors"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Classification sentinels. Bridge implementations wrap their own errors with
// one of these so the retrier can tell a flaky RPC from a doomed payment.
var (
	// ErrTransient marks a failure worth retrying with backoff.
	ErrTransient = errors.New("settlement: transient failure")

	// ErrPermanent marks a failure no retry can fix.
	ErrPermanent = errors.New("settlement: permanent failure")
)

// Bridge is the on-chain settlement contract. Any conforming implementation
// can be substituted; the protocol core never depends on a specific chain.
type Bridge interface {
	// Escrow locks funds for a task and returns an opaque settlement ref.
	Escrow(ctx context.Context, taskID string, payer identity.PeerID, amount float64) (ref string, err error)

	// Release pays the worker from escrow after proof acceptance.
	Release(ctx context.Context, ref string, worker identity.PeerID) error

	// Confirm reports whether a release has settled on chain.
	Confirm(ctx context.Context, ref string) (bool, error)

	// Refund returns escrowed funds to the payer. Refunding a released
	// escrow is rejected with ErrPermanent.
	Refund(ctx context.Context, ref string) error

	// Balance queries the spendable balance of a wallet reference.
	Balance(ctx context.Context, wallet string) (float64, error)
}
