// Package transport defines the contracts the protocol core expects from the
// peer-to-peer substrate (best-effort gossip fan-out, a DHT keyed by skill
// tag, and direct peer messaging) together with three interchangeable
// implementations: an in-process loopback, a Redis-backed adapter, and a
// Cloud Pub/Sub gossip adapter.
//
// Delivery semantics are at-least-once for direct sends and best-effort for
// gossip. The core never assumes more than that.
package transport

import (
	"context"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// ProtocolVersion identifies the wire protocol on every transport.
const ProtocolVersion = "agentic-network/1.0.0"

// Message is an inbound payload with its origin topic or sender.
type Message struct {
	Topic   string
	From    identity.PeerID
	Payload []byte
}

// Gossip is best-effort publish/subscribe fan-out. No delivery guarantee.
type Gossip interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe returns a receive channel for the topic and a cancel func.
	// Slow consumers lose messages rather than block the publisher.
	Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error)
}

// DHT resolves skill tags to the peers currently providing them.
type DHT interface {
	// Provide announces peer as a provider of skill.
	Provide(ctx context.Context, skill string, peer identity.PeerID) error

	// Providers returns the peers currently advertising skill.
	Providers(ctx context.Context, skill string) ([]identity.PeerID, error)
}

// Direct delivers a payload to one peer, request/response style. A nil error
// means the peer accepted delivery; at-least-once, so receivers dedupe by
// envelope correlation ID if they care.
type Direct interface {
	Send(ctx context.Context, peer identity.PeerID, payload []byte) error

	// Inbound is the stream of payloads addressed to the local peer.
	Inbound() <-chan Message
}

// Network bundles the three substrate contracts plus lifecycle.
type Network interface {
	Gossip
	DHT
	Direct
	Close() error
}

// SkillTopic names the gossip topic for one skill tag under a namespace:
// capability advertisements and task proposals scoped to that skill.
func SkillTopic(namespace, skill string) string {
	return namespace + "/skill/" + skill
}

// peerTopic names the direct-delivery channel for a peer.
func peerTopic(namespace string, peer identity.PeerID) string {
	return namespace + "/peer/" + string(peer)
}
