package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// RedisNetwork implements the full substrate contract on a shared Redis:
// gossip over Redis pub/sub channels, the skill DHT as timestamp-scored
// sorted sets, and direct delivery over a per-peer channel. Good for
// clusters that already share a Redis; peers on the same instance see each
// other, which is all the protocol asks of the substrate.
type RedisNetwork struct {
	rdb       *redis.Client
	namespace string
	local     identity.PeerID
	inbox     chan Message
	inboxSub  *redis.PubSub
	logger    *log.Logger

	// Providers older than providerTTL are evicted on read.
	providerTTL time.Duration
}

// NewRedisNetwork connects to Redis and registers the local peer's inbox.
func NewRedisNetwork(addr, password string, db int, namespace string, local identity.PeerID, providerTTL time.Duration) (*RedisNetwork, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	if providerTTL <= 0 {
		providerTTL = 10 * time.Minute
	}

	n := &RedisNetwork{
		rdb:         rdb,
		namespace:   namespace,
		local:       local,
		inbox:       make(chan Message, 256),
		logger:      log.New(log.Writer(), "[REDIS-NET] ", log.LstdFlags),
		providerTTL: providerTTL,
	}

	n.inboxSub = rdb.Subscribe(context.Background(), peerTopic(namespace, local))
	go n.pumpInbox()

	n.logger.Printf("connected to %s as %s", addr, local)
	return n, nil
}

// redisFrame carries the sender across Redis pub/sub, which has no message
// metadata of its own.
type redisFrame struct {
	From    identity.PeerID `json:"from"`
	Payload []byte          `json:"payload"`
}

func (n *RedisNetwork) wrap(payload []byte) []byte {
	framed, err := json.Marshal(redisFrame{From: n.local, Payload: payload})
	if err != nil {
		return payload
	}
	return framed
}

func unwrapFrame(raw []byte) (identity.PeerID, []byte) {
	var f redisFrame
	if err := json.Unmarshal(raw, &f); err != nil || len(f.Payload) == 0 {
		return "", raw
	}
	return f.From, f.Payload
}

func (n *RedisNetwork) pumpInbox() {
	for m := range n.inboxSub.Channel() {
		from, payload := unwrapFrame([]byte(m.Payload))
		select {
		case n.inbox <- Message{From: from, Payload: payload}:
		default:
			n.logger.Printf("inbox full, dropping direct message")
		}
	}
}

func (n *RedisNetwork) Publish(ctx context.Context, topic string, payload []byte) error {
	return n.rdb.Publish(ctx, topic, n.wrap(payload)).Err()
}

func (n *RedisNetwork) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	sub := n.rdb.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Message, 256)
	go func() {
		defer close(out)
		for m := range sub.Channel() {
			from, payload := unwrapFrame([]byte(m.Payload))
			select {
			case out <- Message{Topic: m.Channel, From: from, Payload: payload}:
			default:
			}
		}
	}()
	return out, func() { sub.Close() }, nil
}

func (n *RedisNetwork) providerKey(skill string) string {
	return n.namespace + ":providers:" + skill
}

func (n *RedisNetwork) Provide(ctx context.Context, skill string, peer identity.PeerID) error {
	return n.rdb.ZAdd(ctx, n.providerKey(skill), redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: string(peer),
	}).Err()
}

func (n *RedisNetwork) Providers(ctx context.Context, skill string) ([]identity.PeerID, error) {
	key := n.providerKey(skill)
	cutoff := time.Now().Add(-n.providerTTL).Unix()

	// Evict stale providers, then read the survivors.
	if err := n.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, err
	}
	members, err := n.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]identity.PeerID, 0, len(members))
	for _, m := range members {
		out = append(out, identity.PeerID(m))
	}
	return out, nil
}

func (n *RedisNetwork) Send(ctx context.Context, peer identity.PeerID, payload []byte) error {
	// Publish returns the receiver count; zero means the peer's inbox
	// subscription is gone and the message cannot be delivered.
	received, err := n.rdb.Publish(ctx, peerTopic(n.namespace, peer), n.wrap(payload)).Result()
	if err != nil {
		return err
	}
	if received == 0 {
		return fmt.Errorf("peer %s unreachable", peer)
	}
	return nil
}

func (n *RedisNetwork) Inbound() <-chan Message { return n.inbox }

func (n *RedisNetwork) Close() error {
	n.inboxSub.Close()
	return n.rdb.Close()
}
