package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Auction    AuctionConfig    `yaml:"auction"`
	Trust      TrustConfig      `yaml:"trust"`
	Transport  TransportConfig  `yaml:"transport"`
	Settlement SettlementConfig `yaml:"settlement"`
}

type NodeConfig struct {
	// APIPort is the REST/websocket query interface port.
	APIPort int `yaml:"api_port"`

	// Skills this node advertises and accepts delegations for.
	Skills []string `yaml:"skills"`

	// WalletRef is the opaque settlement address for this node.
	WalletRef string `yaml:"wallet_ref"`

	// SeedFile is the whitelist/trust-seed snapshot loaded at startup.
	SeedFile string `yaml:"seed_file"`

	// BidRates price this node's skills when bidding. Skills without an
	// explicit rate fall back to DefaultBidRate; a zero default declines
	// proposals for unlisted skills.
	BidRates       map[string]float64 `yaml:"bid_rates"`
	DefaultBidRate float64            `yaml:"default_bid_rate"`
}

type AuctionConfig struct {
	// BidWindow is how long the bid-collection window stays open.
	BidWindow time.Duration `yaml:"bid_window"`

	// DelegationGrace is how long delivery of the delegation notice may take
	// before the task is failed and can be re-posted.
	DelegationGrace time.Duration `yaml:"delegation_grace"`

	// Retention keeps terminal tasks queryable for audit before GC.
	Retention time.Duration `yaml:"retention"`

	Selection SelectionConfig `yaml:"selection"`
}

type SelectionConfig struct {
	// TrustWeight and PriceWeight blend reputation against normalized price.
	// A cheap bid can outrank a better-reputed one only within the bounded
	// margin PriceWeight allows.
	TrustWeight float64 `yaml:"trust_weight"`
	PriceWeight float64 `yaml:"price_weight"`
}

type TrustConfig struct {
	// Baseline is the neutral score for peers with no history.
	Baseline float64 `yaml:"baseline"`

	// SuccessIncrement / FailureDecrement adjust the score per settlement
	// outcome. Scores are always clamped to [0,1].
	SuccessIncrement float64 `yaml:"success_increment"`
	FailureDecrement float64 `yaml:"failure_decrement"`

	// InactivityHorizon and DecayRate drive lazy decay toward the baseline:
	// each full horizon elapsed since the last outcome multiplies the
	// deviation from baseline by DecayRate.
	InactivityHorizon time.Duration `yaml:"inactivity_horizon"`
	DecayRate         float64       `yaml:"decay_rate"`

	// Floor is the minimum score a peer needs to bid or be delegated to,
	// absent an explicit allow entry.
	Floor float64 `yaml:"floor"`

	// PostgresDSN, when set, persists the ledger across restarts.
	PostgresDSN string `yaml:"postgres_dsn"`
}

type TransportConfig struct {
	// Namespace prefixes every gossip topic and DHT key.
	Namespace string `yaml:"namespace"`

	// FreshnessHorizon evicts capability advertisements older than this.
	FreshnessHorizon time.Duration `yaml:"freshness_horizon"`

	// AdvertiseInterval re-announces local skills this often.
	AdvertiseInterval time.Duration `yaml:"advertise_interval"`

	Redis  RedisConfig  `yaml:"redis"`
	PubSub PubSubConfig `yaml:"pubsub"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	Topic     string `yaml:"topic"`
}

type SettlementConfig struct {
	// Bounded exponential backoff for transient settlement failures.
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			APIPort:        8080,
			DefaultBidRate: 1,
		},
		Auction: AuctionConfig{
			BidWindow:       5 * time.Second,
			DelegationGrace: 10 * time.Second,
			Retention:       1 * time.Hour,
			Selection: SelectionConfig{
				TrustWeight: 0.6,
				PriceWeight: 0.4,
			},
		},
		Trust: TrustConfig{
			Baseline:          0.5,
			SuccessIncrement:  0.05,
			FailureDecrement:  0.10,
			InactivityHorizon: 30 * 24 * time.Hour,
			DecayRate:         0.9,
			Floor:             0.2,
		},
		Transport: TransportConfig{
			Namespace:         "binary-souls",
			FreshnessHorizon:  10 * time.Minute,
			AdvertiseInterval: 30 * time.Second,
		},
		Settlement: SettlementConfig{
			MaxAttempts: 5,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  30 * time.Second,
		},
	}
}

// LoadConfig reads a YAML config file, layered over Default.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the protocol cannot run under.
func (c *Config) Validate() error {
	if c.Auction.BidWindow <= 0 {
		return fmt.Errorf("auction.bid_window must be positive, got %s", c.Auction.BidWindow)
	}
	if c.Trust.Baseline < 0 || c.Trust.Baseline > 1 {
		return fmt.Errorf("trust.baseline must be in [0,1], got %f", c.Trust.Baseline)
	}
	if c.Trust.DecayRate <= 0 || c.Trust.DecayRate > 1 {
		return fmt.Errorf("trust.decay_rate must be in (0,1], got %f", c.Trust.DecayRate)
	}
	w := c.Auction.Selection
	if w.TrustWeight < 0 || w.PriceWeight < 0 || w.TrustWeight+w.PriceWeight == 0 {
		return fmt.Errorf("selection weights must be non-negative and not both zero")
	}
	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("settlement.max_attempts must be at least 1")
	}
	return nil
}
