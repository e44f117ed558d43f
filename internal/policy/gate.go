// Package policy filters counterpart peers before they may bid or be
// delegated to: explicit allow/deny entries first, then a reputation floor
// against the Trust Ledger. The gate is consulted both at bid acceptance and
// again at delegation, in case a peer's standing changed mid-auction.
package policy

import (
	"log"
	"sync"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Source records how an entry came to exist.
type Source string

const (
	SourceManual  Source = "manual"  // operator-provided (seed file, API)
	SourceLearned Source = "learned" // derived from repeated interactions
)

// Entry governs one peer's eligibility independent of its numeric score.
// An empty Skills set matches every skill.
type Entry struct {
	Peer   identity.PeerID `json:"peer"`
	Skills []string        `json:"skills,omitempty"`
	Deny   bool            `json:"deny,omitempty"`

	// FloorOverride replaces the gate's default trust floor for this peer.
	FloorOverride *float64 `json:"floor_override,omitempty"`

	Source Source `json:"source"`
}

func (e *Entry) matches(skill string) bool {
	if len(e.Skills) == 0 {
		return true
	}
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// ScoreFunc resolves a peer's reputation for a skill; the Trust Ledger's
// ScoreFor satisfies it.
type ScoreFunc func(peer identity.PeerID, skill string) float64

// Gate is the whitelist / policy gate.
type Gate struct {
	mu      sync.RWMutex
	entries map[identity.PeerID][]Entry

	floor  float64
	scores ScoreFunc
	logger *log.Logger
}

// NewGate builds a gate with the default trust floor and a score source.
func NewGate(floor float64, scores ScoreFunc) *Gate {
	return &Gate{
		entries: make(map[identity.PeerID][]Entry),
		floor:   floor,
		scores:  scores,
		logger:  log.New(log.Writer(), "[POLICY] ", log.LstdFlags),
	}
}

// Add installs an entry. Later entries do not replace earlier ones; deny
// always wins at evaluation time.
func (g *Gate) Add(e Entry) {
	if e.Peer == "" {
		return
	}
	if e.Source == "" {
		e.Source = SourceManual
	}
	g.mu.Lock()
	g.entries[e.Peer] = append(g.entries[e.Peer], e)
	g.mu.Unlock()
}

// Remove drops every entry for a peer.
func (g *Gate) Remove(peer identity.PeerID) {
	g.mu.Lock()
	delete(g.entries, peer)
	g.mu.Unlock()
}

// IsEligible reports whether a peer may bid on, or be delegated, a task with
// the given skill: no deny entry matches, and either an allow entry matches
// or the peer's reputation meets the floor.
func (g *Gate) IsEligible(peer identity.PeerID, skill string) bool {
	g.mu.RLock()
	entries := g.entries[peer]

	allowed := false
	var override *float64
	for i := range entries {
		e := &entries[i]
		if !e.matches(skill) {
			continue
		}
		if e.Deny {
			g.mu.RUnlock()
			return false
		}
		allowed = true
		if e.FloorOverride != nil {
			override = e.FloorOverride
		}
	}
	g.mu.RUnlock()

	if allowed {
		// An allow entry with its own floor still checks the score
		// against that floor.
		if override != nil {
			return g.scores(peer, skill) >= *override
		}
		return true
	}
	return g.scores(peer, skill) >= g.floor
}

// Entries returns a copy of all entries, for the query API.
func (g *Gate) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Entry
	for _, es := range g.entries {
		out = append(out, es...)
	}
	return out
}
