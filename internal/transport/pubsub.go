package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// PubSubGossip carries gossip over a single Google Cloud Pub/Sub topic for
// deployments where peers cannot share a Redis. Every message carries its
// logical gossip topic as an attribute; each node owns one subscription and
// demuxes locally. Delivery is at-least-once, stronger than the gossip
// contract requires.
//
// PubSubGossip implements only Gossip; pair it with another adapter for DHT
// and direct delivery.
type PubSubGossip struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	local  identity.PeerID
	logger *log.Logger

	mu   sync.RWMutex
	subs map[string][]chan Message // logical topic -> subscriber channels

	cancelRecv context.CancelFunc
}

const (
	topicAttr  = "gossip_topic"
	senderAttr = "from_peer"
)

// NewPubSubGossip connects to Cloud Pub/Sub, creating the topic and the
// node-scoped subscription if they do not exist, and starts receiving.
func NewPubSubGossip(projectID, topicID, subscriptionID string, local identity.PeerID) (*PubSubGossip, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
	}

	sub := client.Subscription(subscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscription.Exists: %w", err)
	}
	if !exists {
		sub, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
			Topic: topic,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateSubscription: %w", err)
		}
	}

	g := &PubSubGossip{
		client: client,
		topic:  topic,
		local:  local,
		logger: log.New(log.Writer(), "[PUBSUB-NET] ", log.LstdFlags),
		subs:   make(map[string][]chan Message),
	}

	recvCtx, cancelRecv := context.WithCancel(context.Background())
	g.cancelRecv = cancelRecv
	go func() {
		err := sub.Receive(recvCtx, func(ctx context.Context, m *pubsub.Message) {
			g.dispatch(m.Attributes[topicAttr], identity.PeerID(m.Attributes[senderAttr]), m.Data)
			m.Ack()
		})
		if err != nil && recvCtx.Err() == nil {
			g.logger.Printf("receive loop ended: %v", err)
		}
	}()

	return g, nil
}

func (g *PubSubGossip) dispatch(topic string, from identity.PeerID, payload []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ch := range g.subs[topic] {
		select {
		case ch <- Message{Topic: topic, From: from, Payload: payload}:
		default:
		}
	}
}

func (g *PubSubGossip) Publish(ctx context.Context, topic string, payload []byte) error {
	res := g.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			topicAttr:  topic,
			senderAttr: string(g.local),
		},
	})
	_, err := res.Get(ctx)
	return err
}

func (g *PubSubGossip) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 256)
	g.mu.Lock()
	g.subs[topic] = append(g.subs[topic], ch)
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		filtered := g.subs[topic][:0]
		for _, c := range g.subs[topic] {
			if c != ch {
				filtered = append(filtered, c)
			}
		}
		g.subs[topic] = filtered
	}
	return ch, cancel, nil
}

// Close stops the receive loop and flushes pending publishes.
func (g *PubSubGossip) Close() error {
	g.cancelRecv()
	g.topic.Stop()
	return g.client.Close()
}
