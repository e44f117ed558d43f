package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// SeedEntry is one line of the whitelist/trust-seed snapshot loaded at
// startup: a peer, the skills it is trusted for, a seed reputation, and when
// it last worked. The file is owned by the operator; the core only consumes
// the tuple contract.
type SeedEntry struct {
	Peer       identity.PeerID `json:"peer"`
	Skills     []string        `json:"skills"`
	Score      float64         `json:"score"`
	LastWorked time.Time       `json:"last_worked"`
}

// LoadSeedFile parses a JSON array of seed entries.
func LoadSeedFile(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []SeedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return entries, nil
}

// ApplySeed pre-populates the ledger from seed entries. Entries without a
// peer or skills are skipped; gossip-grade tolerance applies here too.
func (l *Ledger) ApplySeed(entries []SeedEntry) int {
	applied := 0
	for _, e := range entries {
		if e.Peer == "" || len(e.Skills) == 0 {
			continue
		}
		for _, skill := range e.Skills {
			if skill == "" {
				continue
			}
			l.Seed(Record{
				Peer:       e.Peer,
				Skill:      skill,
				Score:      e.Score,
				LastWorked: e.LastWorked,
			})
			applied++
		}
	}
	return applied
}
