package auction

import (
	"sort"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// ScorePolicy ranks a bid. Higher is better. Implementations must be pure
// functions of their inputs so that selection stays deterministic.
type ScorePolicy interface {
	Score(trust, price, budget float64) float64
}

// WeightedPolicy blends trust and price. Price is normalized against the
// task budget so a free bid scores 1 and a budget-ceiling bid scores 0 on
// the price axis.
type WeightedPolicy struct {
	TrustWeight float64
	PriceWeight float64
}

// DefaultPolicy is the stock 60/40 trust-versus-price blend.
func DefaultPolicy() WeightedPolicy {
	return WeightedPolicy{TrustWeight: 0.6, PriceWeight: 0.4}
}

func (p WeightedPolicy) Score(trust, price, budget float64) float64 {
	priceScore := 0.0
	if budget > 0 {
		priceScore = 1 - price/budget
		if priceScore < 0 {
			priceScore = 0
		} else if priceScore > 1 {
			priceScore = 1
		}
	}
	return p.TrustWeight*trust + p.PriceWeight*priceScore
}

// scoredBid pairs a bid with its computed rank inputs.
type scoredBid struct {
	bid   Bid
	trust float64
	score float64
}

// selectWinner ranks bids by score descending, breaking ties by lower price,
// then earlier submission, then lexical bidder ID. The same bid set always
// yields the same winner regardless of input order.
func selectWinner(bids []Bid, budget float64, trustOf func(identity.PeerID) float64, policy ScorePolicy) (Bid, float64, bool) {
	if len(bids) == 0 {
		return Bid{}, 0, false
	}
	scored := make([]scoredBid, 0, len(bids))
	for _, b := range bids {
		t := trustOf(b.Bidder)
		scored = append(scored, scoredBid{bid: b, trust: t, score: policy.Score(t, b.Price, budget)})
	}
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bid.Price != b.bid.Price {
			return a.bid.Price < b.bid.Price
		}
		if !a.bid.Submitted.Equal(b.bid.Submitted) {
			return a.bid.Submitted.Before(b.bid.Submitted)
		}
		return a.bid.Bidder < b.bid.Bidder
	})
	top := scored[0]
	return top.bid, top.score, true
}
