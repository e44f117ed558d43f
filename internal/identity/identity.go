// Package identity defines the agent's session identity: a peer ID derived
// from an Ed25519 public key, the set of skills the agent advertises, and an
// opaque settlement wallet reference. An identity is immutable once
// established; re-keying produces a new identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// PeerID is an opaque, globally unique peer identifier derived from a public key.
type PeerID string

func (p PeerID) String() string { return string(p) }

// PeerIDFromPublicKey computes SHA-256 of an Ed25519 public key and encodes it
// as lowercase hex. Hashing keeps the ID space uniformly distributed
// regardless of key generation patterns.
func PeerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	sum := sha256.Sum256(pub)
	return PeerID(hex.EncodeToString(sum[:]))
}

// Identity is this agent's session identity.
type Identity struct {
	PeerID     PeerID
	PublicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey

	// Skills this agent performs, sorted and deduplicated.
	Skills []string

	// WalletRef is the opaque settlement address handed to the Settlement
	// Bridge. The protocol never interprets it.
	WalletRef string
}

// New generates a fresh Ed25519 keypair and builds an identity around it.
func New(skills []string, walletRef string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity keypair: %w", err)
	}
	return FromKey(pub, priv, skills, walletRef), nil
}

// FromKey builds an identity from an existing keypair.
func FromKey(pub ed25519.PublicKey, priv ed25519.PrivateKey, skills []string, walletRef string) *Identity {
	return &Identity{
		PeerID:     PeerIDFromPublicKey(pub),
		PublicKey:  pub,
		privateKey: priv,
		Skills:     normalizeSkills(skills),
		WalletRef:  walletRef,
	}
}

// Sign signs msg with the identity's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.privateKey, msg)
}

// HasSkill reports whether the identity advertises the given skill tag.
func (id *Identity) HasSkill(skill string) bool {
	for _, s := range id.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

func normalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
