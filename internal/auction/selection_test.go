package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binary-souls/agentic-network/internal/identity"
)

func trustTable(scores map[identity.PeerID]float64) func(identity.PeerID) float64 {
	return func(peer identity.PeerID) float64 {
		if s, ok := scores[peer]; ok {
			return s
		}
		return 0.5
	}
}

func TestWeightedPolicyScore(t *testing.T) {
	p := DefaultPolicy()

	// trust 0.9 at price 8 of 10: 0.6*0.9 + 0.4*0.2
	assert.InDelta(t, 0.62, p.Score(0.9, 8, 10), 1e-9)
	// trust 0.2 at price 6 of 10: 0.6*0.2 + 0.4*0.4
	assert.InDelta(t, 0.28, p.Score(0.2, 6, 10), 1e-9)
	// trust 0.5 at price 7 of 10: 0.6*0.5 + 0.4*0.3
	assert.InDelta(t, 0.42, p.Score(0.5, 7, 10), 1e-9)
}

func TestWeightedPolicyClampsPriceAxis(t *testing.T) {
	p := DefaultPolicy()

	// Price above budget contributes zero, not negative.
	assert.InDelta(t, 0.6, p.Score(1.0, 20, 10), 1e-9)
	// Zero budget contributes zero rather than dividing by it.
	assert.InDelta(t, 0.3, p.Score(0.5, 5, 0), 1e-9)
}

func TestSelectWinnerFavorsReputationWithinPriceMargin(t *testing.T) {
	now := time.Now()
	bids := []Bid{
		{Bidder: "peer-a", Price: 8, Submitted: now},
		{Bidder: "peer-b", Price: 6, Submitted: now},
		{Bidder: "peer-c", Price: 7, Submitted: now},
	}
	trust := trustTable(map[identity.PeerID]float64{
		"peer-a": 0.9,
		"peer-b": 0.2,
		"peer-c": 0.5,
	})

	winner, score, ok := selectWinner(bids, 10, trust, DefaultPolicy())

	require.True(t, ok)
	assert.Equal(t, identity.PeerID("peer-a"), winner.Bidder)
	assert.InDelta(t, 0.62, score, 1e-9)
}

func TestSelectWinnerTieBreaksOnPrice(t *testing.T) {
	// Dyadic weights and trusts keep both scores exactly 0.5.
	policy := WeightedPolicy{TrustWeight: 0.5, PriceWeight: 0.5}
	now := time.Now()
	bids := []Bid{
		{Bidder: "peer-a", Price: 6, Submitted: now},
		{Bidder: "peer-b", Price: 2, Submitted: now},
	}
	trust := trustTable(map[identity.PeerID]float64{
		"peer-a": 0.75,
		"peer-b": 0.25,
	})

	winner, _, ok := selectWinner(bids, 8, trust, policy)

	require.True(t, ok)
	assert.Equal(t, identity.PeerID("peer-b"), winner.Bidder)
}

func TestSelectWinnerTieBreaksOnSubmissionThenID(t *testing.T) {
	now := time.Now()
	trust := trustTable(nil)

	winner, _, ok := selectWinner([]Bid{
		{Bidder: "peer-z", Price: 4, Submitted: now},
		{Bidder: "peer-a", Price: 4, Submitted: now.Add(time.Millisecond)},
	}, 8, trust, DefaultPolicy())
	require.True(t, ok)
	assert.Equal(t, identity.PeerID("peer-z"), winner.Bidder, "earlier submission wins")

	winner, _, ok = selectWinner([]Bid{
		{Bidder: "peer-z", Price: 4, Submitted: now},
		{Bidder: "peer-a", Price: 4, Submitted: now},
	}, 8, trust, DefaultPolicy())
	require.True(t, ok)
	assert.Equal(t, identity.PeerID("peer-a"), winner.Bidder, "lexical bidder ID is the final tie-break")
}

func TestSelectWinnerDeterministicAcrossInputOrder(t *testing.T) {
	now := time.Now()
	bids := []Bid{
		{Bidder: "peer-a", Price: 8, Submitted: now},
		{Bidder: "peer-b", Price: 6, Submitted: now.Add(time.Millisecond)},
		{Bidder: "peer-c", Price: 7, Submitted: now.Add(2 * time.Millisecond)},
		{Bidder: "peer-d", Price: 5, Submitted: now.Add(3 * time.Millisecond)},
	}
	trust := trustTable(map[identity.PeerID]float64{
		"peer-a": 0.9, "peer-b": 0.2, "peer-c": 0.5, "peer-d": 0.4,
	})

	first, _, ok := selectWinner(bids, 10, trust, DefaultPolicy())
	require.True(t, ok)
	for i := 0; i < len(bids); i++ {
		rotated := append(append([]Bid{}, bids[i:]...), bids[:i]...)
		winner, _, ok := selectWinner(rotated, 10, trust, DefaultPolicy())
		require.True(t, ok)
		assert.Equal(t, first.Bidder, winner.Bidder)
	}
}

func TestSelectWinnerEmpty(t *testing.T) {
	_, _, ok := selectWinner(nil, 10, trustTable(nil), DefaultPolicy())
	assert.False(t, ok)
}

func TestRateStrategyQuote(t *testing.T) {
	s := RateStrategy{
		Rates:    map[string]float64{SkillWebResearch: 4},
		LeadTime: time.Minute,
	}

	price, _, ok := s.Quote(rpcProposal(SkillWebResearch, 10))
	require.True(t, ok)
	assert.Equal(t, 4.0, price)

	_, _, ok = s.Quote(rpcProposal(SkillDataProcessing, 10))
	assert.False(t, ok, "no rate and no default declines")

	_, _, ok = s.Quote(rpcProposal(SkillWebResearch, 3))
	assert.False(t, ok, "quote above budget declines")

	s.Default = 2
	price, _, ok = s.Quote(rpcProposal(SkillDataProcessing, 10))
	require.True(t, ok)
	assert.Equal(t, 2.0, price)
}
