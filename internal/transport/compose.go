package transport

import "context"

// composite overlays a separate Gossip implementation on top of a base
// Network, keeping the base's DHT and direct delivery. Used to pair the
// Cloud Pub/Sub gossip adapter with Redis-backed discovery and messaging.
type composite struct {
	Network
	gossip Gossip
}

// WithGossip returns base with its gossip plane replaced by g.
func WithGossip(base Network, g Gossip) Network {
	return &composite{Network: base, gossip: g}
}

func (c *composite) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.gossip.Publish(ctx, topic, payload)
}

func (c *composite) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	return c.gossip.Subscribe(ctx, topic)
}

func (c *composite) Close() error {
	if closer, ok := c.gossip.(interface{ Close() error }); ok {
		closer.Close()
	}
	return c.Network.Close()
}
