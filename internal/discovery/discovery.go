// Package discovery resolves candidate worker peers for a skill by merging
// DHT provider lookups with fresh gossip advertisements, filtered through the
// policy gate. The auction coordinator consumes the result when scoping a
// task proposal.
package discovery

import (
	"context"
	"log"
	"sort"

	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/registry"
	"github.com/binary-souls/agentic-network/internal/transport"
)

// Client wraps the skill-keyed DHT lookup.
type Client struct {
	local  identity.PeerID
	dht    transport.DHT
	reg    *registry.Registry
	gate   *policy.Gate
	logger *log.Logger
}

// NewClient builds a discovery client. reg and gate may be nil; each just
// removes one source or filter.
func NewClient(local identity.PeerID, dht transport.DHT, reg *registry.Registry, gate *policy.Gate) *Client {
	return &Client{
		local:  local,
		dht:    dht,
		reg:    reg,
		gate:   gate,
		logger: log.New(log.Writer(), "[DISCOVERY] ", log.LstdFlags),
	}
}

// CandidatePeers returns the eligible peers currently advertising skill,
// deduplicated and sorted for deterministic iteration. The local peer is
// never a candidate for its own tasks.
func (c *Client) CandidatePeers(ctx context.Context, skill string) ([]identity.PeerID, error) {
	seen := make(map[identity.PeerID]bool)

	providers, err := c.dht.Providers(ctx, skill)
	if err != nil {
		// DHT misses are survivable while gossip still feeds the registry.
		c.logger.Printf("dht lookup %q: %v", skill, err)
	}
	for _, p := range providers {
		seen[p] = true
	}
	if c.reg != nil {
		for _, p := range c.reg.PeersForSkill(skill) {
			seen[p] = true
		}
	}

	out := make([]identity.PeerID, 0, len(seen))
	for p := range seen {
		if p == c.local {
			continue
		}
		if c.gate != nil && !c.gate.IsEligible(p, skill) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
