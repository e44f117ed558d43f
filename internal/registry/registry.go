// Package registry tracks capability advertisements: the local agent's own
// skills and the latest skills seen from peers via gossip. Gossip is
// best-effort, so everything here is tolerant: malformed or stale input is
// dropped silently and entries age out past a freshness horizon.
package registry

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/transport"
)

// Advertisement is one (peer, skill, timestamp) capability claim. The latest
// advertisement per (peer, skill) supersedes earlier ones.
type Advertisement struct {
	Peer      identity.PeerID `json:"peer"`
	Skill     string          `json:"skill"`
	Timestamp time.Time       `json:"timestamp"`
}

// Registry is the local capability table.
type Registry struct {
	mu sync.RWMutex

	// skill -> peer -> last advertisement time
	bySkill map[string]map[identity.PeerID]time.Time

	local     *identity.Identity
	gossip    transport.Gossip
	dht       transport.DHT
	namespace string
	horizon   time.Duration
	logger    *log.Logger
}

// New creates a registry for the local identity.
func New(local *identity.Identity, gossip transport.Gossip, dht transport.DHT, namespace string, freshnessHorizon time.Duration) *Registry {
	return &Registry{
		bySkill:   make(map[string]map[identity.PeerID]time.Time),
		local:     local,
		gossip:    gossip,
		dht:       dht,
		namespace: namespace,
		horizon:   freshnessHorizon,
		logger:    log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags),
	}
}

// AdvertiseLocalSkills announces the local skill set on each skill topic and
// refreshes the DHT provider records. Idempotent; safe to call on a timer.
func (r *Registry) AdvertiseLocalSkills(ctx context.Context) error {
	now := time.Now()
	for _, skill := range r.local.Skills {
		ad := Advertisement{Peer: r.local.PeerID, Skill: skill, Timestamp: now}
		payload, err := json.Marshal(ad)
		if err != nil {
			return err
		}
		topic := transport.SkillTopic(r.namespace, skill)
		if err := r.gossip.Publish(ctx, topic, payload); err != nil {
			// Best effort: log and keep advertising the rest.
			r.logger.Printf("advertise %s on %s: %v", skill, topic, err)
		}
		if r.dht != nil {
			if err := r.dht.Provide(ctx, skill, r.local.PeerID); err != nil {
				r.logger.Printf("dht provide %s: %v", skill, err)
			}
		}
	}
	return nil
}

// RecordAdvertisement ingests a peer advertisement, rejecting out-of-order
// timestamps for the same (peer, skill).
func (r *Registry) RecordAdvertisement(peer identity.PeerID, skill string, ts time.Time) {
	if peer == "" || skill == "" || ts.IsZero() {
		return // malformed gossip, drop
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	peers, ok := r.bySkill[skill]
	if !ok {
		peers = make(map[identity.PeerID]time.Time)
		r.bySkill[skill] = peers
	}
	if prev, seen := peers[peer]; seen && !ts.After(prev) {
		return // stale or duplicate delivery
	}
	peers[peer] = ts
}

// IngestGossip parses an advertisement payload from a skill topic. Anything
// that doesn't parse is dropped.
func (r *Registry) IngestGossip(payload []byte) {
	var ad Advertisement
	if err := json.Unmarshal(payload, &ad); err != nil {
		return
	}
	r.RecordAdvertisement(ad.Peer, ad.Skill, ad.Timestamp)
}

// PeersForSkill returns known advertisers of skill within the freshness
// horizon, most recent first.
func (r *Registry) PeersForSkill(skill string) []identity.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-r.horizon)
	type entry struct {
		peer identity.PeerID
		ts   time.Time
	}
	fresh := make([]entry, 0, len(r.bySkill[skill]))
	for peer, ts := range r.bySkill[skill] {
		if ts.After(cutoff) {
			fresh = append(fresh, entry{peer, ts})
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].ts.Equal(fresh[j].ts) {
			return fresh[i].ts.After(fresh[j].ts)
		}
		return fresh[i].peer < fresh[j].peer
	})

	out := make([]identity.PeerID, len(fresh))
	for i, e := range fresh {
		out[i] = e.peer
	}
	return out
}

// Evict drops every advertisement older than the freshness horizon. Reads
// already filter; this just bounds memory on long-running nodes.
func (r *Registry) Evict() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.horizon)
	for skill, peers := range r.bySkill {
		for peer, ts := range peers {
			if !ts.After(cutoff) {
				delete(peers, peer)
			}
		}
		if len(peers) == 0 {
			delete(r.bySkill, skill)
		}
	}
}

// LocalSkills returns the local agent's advertised skill set.
func (r *Registry) LocalSkills() []string {
	return r.local.Skills
}
