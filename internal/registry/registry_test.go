package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/transport"
)

func newTestRegistry(t *testing.T, skills ...string) (*Registry, *transport.Loopback, *identity.Identity) {
	t.Helper()
	id, err := identity.New(skills, "wallet-test")
	require.NoError(t, err)
	hub := transport.NewLoopback("test-ns")
	ep := hub.Endpoint(id.PeerID)
	return New(id, ep, ep, "test-ns", 10*time.Minute), hub, id
}

func TestRecordAdvertisementRejectsOutOfOrder(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	now := time.Now()
	r.RecordAdvertisement("peer-a", "image_generation", now)
	r.RecordAdvertisement("peer-a", "image_generation", now.Add(-time.Minute)) // stale, dropped

	peers := r.PeersForSkill("image_generation")
	require.Len(t, peers, 1)
	assert.Equal(t, identity.PeerID("peer-a"), peers[0])

	// A newer ad refreshes.
	r.RecordAdvertisement("peer-a", "image_generation", now.Add(time.Minute))
	assert.Len(t, r.PeersForSkill("image_generation"), 1)
}

func TestPeersForSkillFreshnessHorizon(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	r.RecordAdvertisement("fresh", "data_processing", time.Now())
	r.RecordAdvertisement("stale", "data_processing", time.Now().Add(-time.Hour))

	peers := r.PeersForSkill("data_processing")
	require.Len(t, peers, 1)
	assert.Equal(t, identity.PeerID("fresh"), peers[0])

	r.Evict()
	assert.Len(t, r.PeersForSkill("data_processing"), 1)
}

func TestPeersForSkillRecencyOrder(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	base := time.Now()
	r.RecordAdvertisement("older", "web_research", base.Add(-time.Minute))
	r.RecordAdvertisement("newer", "web_research", base)

	peers := r.PeersForSkill("web_research")
	require.Len(t, peers, 2)
	assert.Equal(t, identity.PeerID("newer"), peers[0])
	assert.Equal(t, identity.PeerID("older"), peers[1])
}

func TestMalformedInputDropped(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	r.RecordAdvertisement("", "skill", time.Now())
	r.RecordAdvertisement("peer", "", time.Now())
	r.IngestGossip([]byte("{not json"))

	assert.Empty(t, r.PeersForSkill("skill"))
}

func TestAdvertiseLocalSkillsReachesSubscribers(t *testing.T) {
	r, hub, id := newTestRegistry(t, "image_generation")

	observer := hub.Endpoint("observer")
	ch, cancel, err := observer.Subscribe(context.Background(), transport.SkillTopic("test-ns", "image_generation"))
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, r.AdvertiseLocalSkills(context.Background()))

	select {
	case msg := <-ch:
		other := New(id, observer, nil, "test-ns", time.Minute)
		other.IngestGossip(msg.Payload)
		peers := other.PeersForSkill("image_generation")
		require.Len(t, peers, 1)
		assert.Equal(t, id.PeerID, peers[0])
	case <-time.After(time.Second):
		t.Fatal("no advertisement received")
	}

	// DHT providers refreshed too.
	providers, err := observer.Providers(context.Background(), "image_generation")
	require.NoError(t, err)
	assert.Contains(t, providers, id.PeerID)
}
