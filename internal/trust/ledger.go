// Package trust maintains the local reputation ledger: one record per
// (peer, skill), updated after every settlement outcome, decaying toward a
// neutral baseline with inactivity. Every agent keeps its own view; nothing
// here assumes global consensus.
package trust

import (
	"context"
	"hash/fnv"
	"log"
	"math"
	"sync"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Params are the policy constants for the ledger. All values are bounded at
// construction so scores cannot escape [0,1].
type Params struct {
	// Baseline is the neutral score returned for unknown peers and the point
	// inactive records decay toward.
	Baseline float64

	// SuccessIncrement and FailureDecrement are the fixed per-outcome deltas.
	SuccessIncrement float64
	FailureDecrement float64

	// InactivityHorizon and DecayRate: for every full horizon since the last
	// outcome, the deviation from Baseline is multiplied by DecayRate. Decay
	// is lazy, computed on read, with no background sweep.
	InactivityHorizon time.Duration
	DecayRate         float64
}

// DefaultParams mirror the config defaults.
func DefaultParams() Params {
	return Params{
		Baseline:          0.5,
		SuccessIncrement:  0.05,
		FailureDecrement:  0.10,
		InactivityHorizon: 30 * 24 * time.Hour,
		DecayRate:         0.9,
	}
}

const ledgerShards = 32

type shard struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// Ledger is the concurrent trust table. Reads during selection run under
// shard read locks; updates serialize per (peer, skill) key via its shard.
type Ledger struct {
	params Params
	shards [ledgerShards]*shard
	store  Store // optional
	logger *log.Logger
}

// NewLedger builds an empty ledger. store may be nil for a purely in-memory
// ledger; when present its records are replayed into memory.
func NewLedger(params Params, store Store) (*Ledger, error) {
	l := &Ledger{
		params: params,
		store:  store,
		logger: log.New(log.Writer(), "[TRUST] ", log.LstdFlags),
	}
	for i := range l.shards {
		l.shards[i] = &shard{records: make(map[string]*Record)}
	}

	if store != nil {
		recs, err := store.LoadAll(context.Background())
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			l.seedRecord(rec)
		}
		l.logger.Printf("replayed %d trust records from store", len(recs))
	}
	return l, nil
}

func key(peer identity.PeerID, skill string) string {
	return string(peer) + ":" + skill
}

func (l *Ledger) shardFor(k string) *shard {
	h := fnv.New32a()
	h.Write([]byte(k))
	return l.shards[h.Sum32()%ledgerShards]
}

// ScoreFor returns the peer's effective reputation for a skill: the neutral
// baseline when no record exists, otherwise the stored score with lazy decay
// applied. New peers are neither penalized nor rewarded by absent history.
func (l *Ledger) ScoreFor(peer identity.PeerID, skill string) float64 {
	k := key(peer, skill)
	s := l.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[k]
	if !ok {
		return l.params.Baseline
	}
	return l.decayed(rec.Score, rec.LastWorked, time.Now())
}

// Lookup returns a copy of the record with decay applied, or false if the
// peer has no history for the skill.
func (l *Ledger) Lookup(peer identity.PeerID, skill string) (Record, bool) {
	k := key(peer, skill)
	s := l.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[k]
	if !ok {
		return Record{}, false
	}
	out := *rec
	out.Score = l.decayed(rec.Score, rec.LastWorked, time.Now())
	return out, true
}

// UpdateOnOutcome applies the settlement-outcome rule: materialize any pending
// decay, apply the fixed increment or decrement, clamp to [0,1], bump the
// matching counter. This is the only mutation path for scores.
func (l *Ledger) UpdateOnOutcome(peer identity.PeerID, skill string, outcome Outcome) Record {
	now := time.Now()
	k := key(peer, skill)
	s := l.shardFor(k)

	s.mu.Lock()
	rec, ok := s.records[k]
	if !ok {
		rec = &Record{Peer: peer, Skill: skill, Score: l.params.Baseline, LastWorked: now}
		s.records[k] = rec
	} else {
		rec.Score = l.decayed(rec.Score, rec.LastWorked, now)
	}

	switch outcome {
	case Success:
		rec.Score = clamp(rec.Score + l.params.SuccessIncrement)
		rec.Completed++
	case Failure:
		rec.Score = clamp(rec.Score - l.params.FailureDecrement)
		rec.Failed++
	}
	rec.LastWorked = now
	out := *rec
	s.mu.Unlock()

	if l.store != nil {
		if err := l.store.Upsert(context.Background(), out); err != nil {
			l.logger.Printf("persist %s: %v", k, err)
		}
	}
	return out
}

// Seed inserts a snapshot record, typically from the whitelist/trust-seed
// file. The score is clamped on the way in; existing records are replaced.
func (l *Ledger) Seed(rec Record) {
	rec.Score = clamp(rec.Score)
	l.seedRecord(rec)
}

func (l *Ledger) seedRecord(rec Record) {
	k := key(rec.Peer, rec.Skill)
	s := l.shardFor(k)
	s.mu.Lock()
	cp := rec
	s.records[k] = &cp
	s.mu.Unlock()
}

// Records returns a decay-adjusted copy of every record, for the query API.
func (l *Ledger) Records() []Record {
	now := time.Now()
	var out []Record
	for _, s := range l.shards {
		s.mu.RLock()
		for _, rec := range s.records {
			cp := *rec
			cp.Score = l.decayed(rec.Score, rec.LastWorked, now)
			out = append(out, cp)
		}
		s.mu.RUnlock()
	}
	return out
}

// decayed pulls score toward the baseline by DecayRate for each full
// inactivity horizon since last.
func (l *Ledger) decayed(score float64, last time.Time, now time.Time) float64 {
	if l.params.InactivityHorizon <= 0 || last.IsZero() {
		return score
	}
	periods := math.Floor(float64(now.Sub(last)) / float64(l.params.InactivityHorizon))
	if periods < 1 {
		return score
	}
	deviation := score - l.params.Baseline
	return clamp(l.params.Baseline + deviation*math.Pow(l.params.DecayRate, periods))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
