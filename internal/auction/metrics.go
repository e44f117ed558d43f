package auction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes auction counters on a Prometheus registry. A nil
// registerer falls back to the default registry.
type Metrics struct {
	TasksPosted     prometheus.Counter
	TasksActive     prometheus.Gauge
	TasksTerminal   *prometheus.CounterVec
	BidsReceived    *prometheus.CounterVec
	BidWindowSize   prometheus.Histogram
	SelectionScore  prometheus.Histogram
	SettlementCalls *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		TasksPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_tasks_posted_total",
			Help: "Tasks posted by this node.",
		}),
		TasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auction_tasks_active",
			Help: "Tasks currently in a non-terminal state.",
		}),
		TasksTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_tasks_terminal_total",
			Help: "Tasks that reached a terminal state, by state.",
		}, []string{"state"}),
		BidsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_received_total",
			Help: "Bids received, by disposition.",
		}, []string{"disposition"}),
		BidWindowSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_bid_window_size",
			Help:    "Eligible bids counted at window close.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		SelectionScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auction_selection_score",
			Help:    "Composite score of winning bids.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		SettlementCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_settlement_calls_total",
			Help: "Settlement bridge invocations, by operation and result.",
		}, []string{"op", "result"}),
	}
}

// Bid dispositions.
const (
	bidAccepted   = "accepted"
	bidSuperseded = "superseded"
	bidLate       = "late"
	bidIneligible = "ineligible"
	bidOverBudget = "over_budget"
	bidSelfBid    = "self"
)
