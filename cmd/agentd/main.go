package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/binary-souls/agentic-network/internal/api"
	"github.com/binary-souls/agentic-network/internal/auction"
	"github.com/binary-souls/agentic-network/internal/config"
	"github.com/binary-souls/agentic-network/internal/discovery"
	"github.com/binary-souls/agentic-network/internal/events"
	"github.com/binary-souls/agentic-network/internal/executor"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/registry"
	"github.com/binary-souls/agentic-network/internal/settlement"
	"github.com/binary-souls/agentic-network/internal/transport"
	"github.com/binary-souls/agentic-network/internal/trust"
)

func main() {
	log.Println("🔥 Starting agentic-network node...")

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. Identity: fresh Ed25519 keypair, peer ID derived from it.
	self, err := identity.New(cfg.Node.Skills, cfg.Node.WalletRef)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	log.Printf("peer %s skills=%v", self.PeerID, self.Skills)

	// 2. Transport substrate.
	net, err := buildNetwork(cfg, self.PeerID)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	defer net.Close()

	// 3. Trust ledger, optionally persisted.
	var store trust.Store
	if dsn := cfg.Trust.PostgresDSN; dsn != "" {
		pg, err := trust.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("trust store: %v", err)
		}
		store = pg
	}
	ledger, err := trust.NewLedger(trust.Params{
		Baseline:          cfg.Trust.Baseline,
		SuccessIncrement:  cfg.Trust.SuccessIncrement,
		FailureDecrement:  cfg.Trust.FailureDecrement,
		InactivityHorizon: cfg.Trust.InactivityHorizon,
		DecayRate:         cfg.Trust.DecayRate,
	}, store)
	if err != nil {
		log.Fatalf("trust ledger: %v", err)
	}
	// 4. Eligibility gate and discovery.
	gate := policy.NewGate(cfg.Trust.Floor, ledger.ScoreFor)
	if cfg.Node.SeedFile != "" {
		entries, err := trust.LoadSeedFile(cfg.Node.SeedFile)
		if err != nil {
			log.Fatalf("seed file: %v", err)
		}
		applied := ledger.ApplySeed(entries)
		// Seeded peers are the operator's whitelist.
		for _, e := range entries {
			if e.Peer == "" {
				continue
			}
			gate.Add(policy.Entry{Peer: e.Peer, Skills: e.Skills, Source: policy.SourceManual})
		}
		log.Printf("seeded %d trust records from %s", applied, cfg.Node.SeedFile)
	}
	reg := registry.New(self, net, net, cfg.Transport.Namespace, cfg.Transport.FreshnessHorizon)
	disc := discovery.NewClient(self.PeerID, net, reg, gate)

	// 5. Event bus and settlement.
	bus := events.NewBus()
	bridge := settlement.NewMemoryBridge(1000)
	retrier := settlement.NewRetrier(settlement.RetryConfig{
		MaxAttempts: cfg.Settlement.MaxAttempts,
		BackoffBase: cfg.Settlement.BackoffBase,
		BackoffMax:  cfg.Settlement.BackoffMax,
	})

	// 6. Auction coordinator (initiator side).
	coord, err := auction.NewCoordinator(auction.Options{
		Identity:  self,
		Network:   net,
		Discovery: disc,
		Gate:      gate,
		Ledger:    ledger,
		Bridge:    bridge,
		Retrier:   retrier,
		Verifier:  nonEmptyProofVerifier(),
		Bus:       bus,
		Policy: auction.WeightedPolicy{
			TrustWeight: cfg.Auction.Selection.TrustWeight,
			PriceWeight: cfg.Auction.Selection.PriceWeight,
		},
		Namespace:       cfg.Transport.Namespace,
		BidWindow:       cfg.Auction.BidWindow,
		DelegationGrace: cfg.Auction.DelegationGrace,
		Retention:       cfg.Auction.Retention,
	})
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}
	defer coord.Close()

	// 7. Worker (bidder/executor side).
	worker := auction.NewWorker(self, net, reg, echoExecutor(), auction.RateStrategy{
		Rates:    cfg.Node.BidRates,
		Default:  cfg.Node.DefaultBidRate,
		LeadTime: time.Minute,
	}, bus, cfg.Transport.Namespace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go coord.Run(ctx, worker)
	go func() {
		if err := worker.Start(ctx); err != nil {
			log.Printf("worker: %v", err)
		}
	}()
	go advertiseLoop(ctx, reg, cfg.Transport.AdvertiseInterval)

	// 8. Operator surface: REST, WebSocket/SSE streams, metrics.
	streamer := api.NewEventStreamer(bus)
	go streamer.Run()
	server := api.NewServer(self, coord, worker, ledger, gate, disc, streamer)
	go func() {
		if err := server.Start(cfg.Node.APIPort); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// applyEnv lets the environment override the knobs that differ between
// deployments of the same config file.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Transport.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Trust.PostgresDSN = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Node.APIPort = port
		}
	}
}

// buildNetwork picks the substrate: Redis when configured, otherwise an
// in-process loopback for single-node development. A configured Pub/Sub
// project replaces the gossip plane.
func buildNetwork(cfg *config.Config, local identity.PeerID) (transport.Network, error) {
	var net transport.Network
	if cfg.Transport.Redis.Addr != "" {
		r, err := transport.NewRedisNetwork(
			cfg.Transport.Redis.Addr,
			cfg.Transport.Redis.Password,
			cfg.Transport.Redis.DB,
			cfg.Transport.Namespace,
			local,
			cfg.Transport.FreshnessHorizon,
		)
		if err != nil {
			return nil, err
		}
		net = r
	} else {
		log.Println("no redis configured, using in-process loopback transport")
		net = transport.NewLoopback(cfg.Transport.Namespace).Endpoint(local)
	}

	if cfg.Transport.PubSub.ProjectID != "" {
		short := string(local)
		if len(short) > 12 {
			short = short[:12]
		}
		g, err := transport.NewPubSubGossip(
			cfg.Transport.PubSub.ProjectID,
			cfg.Transport.PubSub.Topic,
			"agentd-"+short,
			local,
		)
		if err != nil {
			return nil, err
		}
		net = transport.WithGossip(net, g)
	}
	return net, nil
}

func advertiseLoop(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := reg.AdvertiseLocalSkills(ctx); err != nil {
			log.Printf("advertise: %v", err)
		}
		reg.Evict()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// echoExecutor acknowledges delegated work with a structured receipt. Real
// deployments swap in an executor that performs the skill.
func echoExecutor() executor.Executor {
	return executor.ExecutorFunc(func(ctx context.Context, task executor.TaskView) ([]byte, error) {
		return json.Marshal(map[string]interface{}{
			"task_id":      task.TaskID,
			"skill":        task.Skill,
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func nonEmptyProofVerifier() executor.ProofVerifier {
	return executor.VerifierFunc(func(ctx context.Context, task executor.TaskView, proof []byte) (bool, error) {
		return len(proof) > 0, nil
	})
}
