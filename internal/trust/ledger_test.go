package trust

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(DefaultParams(), nil)
	require.NoError(t, err)
	return l
}

func TestScoreForUnknownPeerIsBaseline(t *testing.T) {
	l := newTestLedger(t)
	assert.Equal(t, 0.5, l.ScoreFor("stranger", "image_generation"))

	_, ok := l.Lookup("stranger", "image_generation")
	assert.False(t, ok, "reads must not create records")
}

func TestUpdateOnOutcomeAdjustsAndCounts(t *testing.T) {
	l := newTestLedger(t)

	rec := l.UpdateOnOutcome("peer-a", "image_generation", Success)
	assert.InDelta(t, 0.55, rec.Score, 1e-9)
	assert.Equal(t, int64(1), rec.Completed)
	assert.Equal(t, int64(0), rec.Failed)

	rec = l.UpdateOnOutcome("peer-a", "image_generation", Failure)
	assert.InDelta(t, 0.45, rec.Score, 1e-9)
	assert.Equal(t, int64(1), rec.Failed)

	// Per-skill isolation.
	assert.Equal(t, 0.5, l.ScoreFor("peer-a", "web_research"))
}

func TestScoreNeverLeavesBounds(t *testing.T) {
	l := newTestLedger(t)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10_000; i++ {
		outcome := Success
		if rng.Intn(2) == 0 {
			outcome = Failure
		}
		rec := l.UpdateOnOutcome("peer-b", "data_processing", outcome)
		require.GreaterOrEqual(t, rec.Score, 0.0)
		require.LessOrEqual(t, rec.Score, 1.0)
	}

	for i := 0; i < 100; i++ {
		l.UpdateOnOutcome("peer-c", "x", Failure)
	}
	assert.Equal(t, 0.0, l.ScoreFor("peer-c", "x"))

	for i := 0; i < 100; i++ {
		l.UpdateOnOutcome("peer-d", "x", Success)
	}
	assert.Equal(t, 1.0, l.ScoreFor("peer-d", "x"))
}

func TestLazyDecayDriftsTowardBaseline(t *testing.T) {
	l := newTestLedger(t)

	// A strong record that last worked two horizons ago.
	l.Seed(Record{
		Peer:       "veteran",
		Skill:      "image_generation",
		Score:      0.9,
		LastWorked: time.Now().Add(-2 * DefaultParams().InactivityHorizon),
	})

	// 0.5 + (0.9-0.5) * 0.9^2 = 0.824
	assert.InDelta(t, 0.824, l.ScoreFor("veteran", "image_generation"), 1e-9)

	// A fresh record does not decay.
	l.Seed(Record{Peer: "active", Skill: "image_generation", Score: 0.9, LastWorked: time.Now()})
	assert.InDelta(t, 0.9, l.ScoreFor("active", "image_generation"), 1e-9)

	// Decay works upward too.
	l.Seed(Record{
		Peer:       "redeemed",
		Skill:      "image_generation",
		Score:      0.1,
		LastWorked: time.Now().Add(-2 * DefaultParams().InactivityHorizon),
	})
	assert.InDelta(t, 0.176, l.ScoreFor("redeemed", "image_generation"), 1e-9)
}

func TestUpdateMaterializesDecayFirst(t *testing.T) {
	l := newTestLedger(t)
	l.Seed(Record{
		Peer:       "veteran",
		Skill:      "x",
		Score:      0.9,
		LastWorked: time.Now().Add(-DefaultParams().InactivityHorizon - time.Hour),
	})

	// decayed 0.5 + 0.4*0.9 = 0.86, then +0.05
	rec := l.UpdateOnOutcome("veteran", "x", Success)
	assert.InDelta(t, 0.91, rec.Score, 1e-9)
}

func TestApplySeed(t *testing.T) {
	l := newTestLedger(t)

	n := l.ApplySeed([]SeedEntry{
		{Peer: "seeded", Skills: []string{"image_generation", "web_research"}, Score: 0.8, LastWorked: time.Now()},
		{Peer: "", Skills: []string{"x"}},          // malformed, skipped
		{Peer: "no-skills", Skills: nil},           // malformed, skipped
		{Peer: "hot", Skills: []string{"x"}, Score: 7.5, LastWorked: time.Now()}, // clamped
	})
	assert.Equal(t, 3, n)
	assert.InDelta(t, 0.8, l.ScoreFor("seeded", "web_research"), 1e-9)
	assert.Equal(t, 1.0, l.ScoreFor("hot", "x"))
}

func TestConcurrentUpdatesStayConsistent(t *testing.T) {
	l := newTestLedger(t)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				l.UpdateOnOutcome("busy", "x", Success)
				l.ScoreFor("busy", "x")
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	rec, ok := l.Lookup("busy", "x")
	require.True(t, ok)
	assert.Equal(t, int64(8*500), rec.Completed)
	assert.Equal(t, 1.0, rec.Score)
}
