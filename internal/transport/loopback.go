package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Loopback is an in-process substrate connecting multiple peers in one
// process. It backs tests and single-process simulations; delivery is
// immediate and best-effort, matching the contract of the real substrate.
type Loopback struct {
	mu        sync.RWMutex
	namespace string
	subs      map[string][]chan Message        // topic -> subscriber channels
	providers map[string]map[identity.PeerID]bool // skill -> providers
	inboxes   map[identity.PeerID]chan Message
}

// NewLoopback creates an empty in-process substrate.
func NewLoopback(namespace string) *Loopback {
	return &Loopback{
		namespace: namespace,
		subs:      make(map[string][]chan Message),
		providers: make(map[string]map[identity.PeerID]bool),
		inboxes:   make(map[identity.PeerID]chan Message),
	}
}

// Endpoint returns the Network view for one attached peer.
func (l *Loopback) Endpoint(peer identity.PeerID) Network {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.inboxes[peer]; !ok {
		l.inboxes[peer] = make(chan Message, 256)
	}
	return &loopbackEndpoint{hub: l, peer: peer}
}

type loopbackEndpoint struct {
	hub  *Loopback
	peer identity.PeerID
}

func (e *loopbackEndpoint) Publish(ctx context.Context, topic string, payload []byte) error {
	e.hub.mu.RLock()
	chans := append([]chan Message(nil), e.hub.subs[topic]...)
	e.hub.mu.RUnlock()

	msg := Message{Topic: topic, From: e.peer, Payload: payload}
	for _, ch := range chans {
		select {
		case ch <- msg:
		default:
			// Subscriber full; gossip is lossy.
		}
	}
	return nil
}

func (e *loopbackEndpoint) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 256)
	e.hub.mu.Lock()
	e.hub.subs[topic] = append(e.hub.subs[topic], ch)
	e.hub.mu.Unlock()

	cancel := func() {
		e.hub.mu.Lock()
		defer e.hub.mu.Unlock()
		filtered := e.hub.subs[topic][:0]
		for _, c := range e.hub.subs[topic] {
			if c != ch {
				filtered = append(filtered, c)
			}
		}
		e.hub.subs[topic] = filtered
	}
	return ch, cancel, nil
}

func (e *loopbackEndpoint) Provide(ctx context.Context, skill string, peer identity.PeerID) error {
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	if e.hub.providers[skill] == nil {
		e.hub.providers[skill] = make(map[identity.PeerID]bool)
	}
	e.hub.providers[skill][peer] = true
	return nil
}

func (e *loopbackEndpoint) Providers(ctx context.Context, skill string) ([]identity.PeerID, error) {
	e.hub.mu.RLock()
	defer e.hub.mu.RUnlock()
	out := make([]identity.PeerID, 0, len(e.hub.providers[skill]))
	for p := range e.hub.providers[skill] {
		out = append(out, p)
	}
	return out, nil
}

func (e *loopbackEndpoint) Send(ctx context.Context, peer identity.PeerID, payload []byte) error {
	e.hub.mu.RLock()
	inbox, ok := e.hub.inboxes[peer]
	e.hub.mu.RUnlock()
	if !ok {
		return fmt.Errorf("loopback: unknown peer %s", peer)
	}
	select {
	case inbox <- Message{From: e.peer, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *loopbackEndpoint) Inbound() <-chan Message {
	e.hub.mu.RLock()
	defer e.hub.mu.RUnlock()
	return e.hub.inboxes[e.peer]
}

func (e *loopbackEndpoint) Close() error { return nil }
