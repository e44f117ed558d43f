package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// MemoryBridge is an in-process settlement ledger for development and
// single-operator deployments. Escrowed funds move between named wallets;
// every release settles immediately.
type MemoryBridge struct {
	mu       sync.Mutex
	balances map[string]float64
	escrows  map[string]*memEscrow
}

type memEscrow struct {
	taskID   string
	payer    identity.PeerID
	amount   float64
	released bool
}

func NewMemoryBridge(initialBalance float64) *MemoryBridge {
	b := &MemoryBridge{
		balances: make(map[string]float64),
		escrows:  make(map[string]*memEscrow),
	}
	b.balances["*"] = initialBalance
	return b
}

// balance returns the wallet balance, creating the wallet at the default
// initial balance on first touch.
func (b *MemoryBridge) balance(wallet string) float64 {
	if _, ok := b.balances[wallet]; !ok {
		b.balances[wallet] = b.balances["*"]
	}
	return b.balances[wallet]
}

func (b *MemoryBridge) Escrow(ctx context.Context, taskID string, payer identity.PeerID, amount float64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("non-positive escrow amount %v: %w", amount, ErrPermanent)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	wallet := string(payer)
	if b.balance(wallet) < amount {
		return "", fmt.Errorf("insufficient funds for task %s: %w", taskID, ErrPermanent)
	}
	b.balances[wallet] -= amount
	ref := "mem-" + uuid.NewString()
	b.escrows[ref] = &memEscrow{taskID: taskID, payer: payer, amount: amount}
	return ref, nil
}

func (b *MemoryBridge) Release(ctx context.Context, ref string, worker identity.PeerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	esc, ok := b.escrows[ref]
	if !ok {
		return fmt.Errorf("unknown escrow %s: %w", ref, ErrPermanent)
	}
	if esc.released {
		return nil
	}
	wallet := string(worker)
	b.balances[wallet] = b.balance(wallet) + esc.amount
	esc.released = true
	return nil
}

func (b *MemoryBridge) Confirm(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	esc, ok := b.escrows[ref]
	if !ok {
		return false, fmt.Errorf("unknown escrow %s: %w", ref, ErrPermanent)
	}
	return esc.released, nil
}

func (b *MemoryBridge) Balance(ctx context.Context, wallet string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(wallet), nil
}

// Refund returns escrowed funds to the payer for tasks that never paid out.
func (b *MemoryBridge) Refund(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	esc, ok := b.escrows[ref]
	if !ok {
		return fmt.Errorf("unknown escrow %s: %w", ref, ErrPermanent)
	}
	if esc.released {
		return fmt.Errorf("escrow %s already released: %w", ref, ErrPermanent)
	}
	wallet := string(esc.payer)
	b.balances[wallet] = b.balance(wallet) + esc.amount
	delete(b.escrows, ref)
	return nil
}
