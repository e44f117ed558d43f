package auction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binary-souls/agentic-network/internal/events"
	"github.com/binary-souls/agentic-network/internal/executor"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/rpc"
	"github.com/binary-souls/agentic-network/internal/settlement"
	"github.com/binary-souls/agentic-network/internal/transport"
	"github.com/binary-souls/agentic-network/internal/trust"
)

func newNodeCoordinator(t *testing.T, id *identity.Identity, net transport.Network, bridge settlement.Bridge) *Coordinator {
	t.Helper()
	ledger, err := trust.NewLedger(trust.DefaultParams(), nil)
	require.NoError(t, err)
	coord, err := NewCoordinator(Options{
		Identity: id,
		Network:  net,
		Gate:     policy.NewGate(0.2, ledger.ScoreFor),
		Ledger:   ledger,
		Bridge:   bridge,
		Retrier: settlement.NewRetrier(settlement.RetryConfig{
			MaxAttempts: 3,
			BackoffBase: time.Millisecond,
			BackoffMax:  4 * time.Millisecond,
		}),
		Metrics:         NewMetrics(prometheus.NewRegistry()),
		BidWindow:       80 * time.Millisecond,
		DelegationGrace: 300 * time.Millisecond,
		Retention:       time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord
}

// Two nodes on a loopback hub: one posts, the other bids, executes, and gets
// paid. Exercises the whole protocol through the wire codec rather than
// through direct method calls.
func TestFullRoundTripOverLoopback(t *testing.T) {
	initiatorID, err := identity.New(nil, "wallet-initiator")
	require.NoError(t, err)
	workerID, err := identity.New([]string{SkillWebResearch}, "wallet-worker")
	require.NoError(t, err)

	hub := transport.NewLoopback("binary-souls")
	initiatorNet := hub.Endpoint(initiatorID.PeerID)
	workerNet := hub.Endpoint(workerID.PeerID)

	bridge := &fakeBridge{}
	initiatorCoord := newNodeCoordinator(t, initiatorID, initiatorNet, bridge)
	workerCoord := newNodeCoordinator(t, workerID, workerNet, &fakeBridge{})

	worker := NewWorker(workerID, workerNet, nil,
		executor.ExecutorFunc(func(ctx context.Context, task executor.TaskView) ([]byte, error) {
			return []byte("research notes"), nil
		}),
		RateStrategy{Rates: map[string]float64{SkillWebResearch: 4}, LeadTime: time.Second},
		events.NewBus(), "binary-souls")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Start(ctx) }()
	go workerCoord.Run(ctx, worker)
	go initiatorCoord.Run(ctx, nil)

	// Let the worker's topic subscription land before the proposal goes out.
	time.Sleep(50 * time.Millisecond)

	snap, err := initiatorCoord.PostTask(ctx, TaskSpec{
		Skill:    SkillWebResearch,
		Budget:   10,
		Deadline: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	var final TaskSnapshot
	require.Eventually(t, func() bool {
		s, ok := initiatorCoord.Get(snap.ID)
		if ok && s.TerminalAt != nil {
			final = s
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateCompleted.String(), final.State)
	assert.Equal(t, workerID.PeerID, final.Worker)
	require.NotNil(t, final.WinningBid)
	assert.Equal(t, 4.0, final.WinningBid.Price)
	assert.Equal(t, 4.0, bridge.snapshot().escrowAmount)

	// The finalize notice reaches the worker's own task view.
	require.Eventually(t, func() bool {
		tasks := worker.Tasks()
		return len(tasks) == 1 &&
			tasks[0].State == StateCompleted.String() &&
			tasks[0].SettlementRef == "escrow-"+snap.ID
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDuplicateDelegationExecutesOnce(t *testing.T) {
	workerID, err := identity.New([]string{SkillWebResearch}, "wallet-worker")
	require.NoError(t, err)
	hub := transport.NewLoopback("binary-souls")
	workerNet := hub.Endpoint(workerID.PeerID)
	hub.Endpoint("peer-initiator")

	var executions int64
	worker := NewWorker(workerID, workerNet, nil,
		executor.ExecutorFunc(func(ctx context.Context, task executor.TaskView) ([]byte, error) {
			atomic.AddInt64(&executions, 1)
			return []byte("done"), nil
		}),
		nil, events.NewBus(), "binary-souls")

	p := rpcProposal(SkillWebResearch, 10)
	worker.HandleDelegation(context.Background(), "peer-initiator", p)
	worker.HandleDelegation(context.Background(), "peer-initiator", p)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&executions) == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&executions), "redelivered notice must not rerun the work")
	assert.Len(t, worker.Tasks(), 1)
}

func TestFinalizeFromWrongPeerIgnored(t *testing.T) {
	workerID, err := identity.New([]string{SkillWebResearch}, "wallet-worker")
	require.NoError(t, err)
	hub := transport.NewLoopback("binary-souls")
	workerNet := hub.Endpoint(workerID.PeerID)
	hub.Endpoint("peer-initiator")

	worker := NewWorker(workerID, workerNet, nil,
		executor.ExecutorFunc(func(ctx context.Context, task executor.TaskView) ([]byte, error) {
			return []byte("done"), nil
		}),
		nil, events.NewBus(), "binary-souls")

	worker.HandleDelegation(context.Background(), "peer-initiator", rpcProposal(SkillWebResearch, 10))
	require.Eventually(t, func() bool {
		tasks := worker.Tasks()
		return len(tasks) == 1 && tasks[0].State == StateProofSubmitted.String()
	}, 2*time.Second, 10*time.Millisecond)

	worker.HandleFinalize("peer-impostor", rpc.PaymentFinalize{
		TaskID:        "task-1",
		SettlementRef: "forged",
		Outcome:       "released",
	})
	assert.Equal(t, StateProofSubmitted.String(), worker.Tasks()[0].State)

	worker.HandleFinalize("peer-initiator", rpc.PaymentFinalize{
		TaskID:        "task-1",
		SettlementRef: "escrow-task-1",
		Outcome:       "released",
	})
	assert.Equal(t, StateCompleted.String(), worker.Tasks()[0].State)
	assert.Equal(t, "escrow-task-1", worker.Tasks()[0].SettlementRef)
}

func TestWorkerDeclinesWithoutExecutor(t *testing.T) {
	workerID, err := identity.New([]string{SkillWebResearch}, "wallet-worker")
	require.NoError(t, err)
	hub := transport.NewLoopback("binary-souls")
	worker := NewWorker(workerID, hub.Endpoint(workerID.PeerID), nil, nil, nil, events.NewBus(), "binary-souls")

	worker.HandleDelegation(context.Background(), "peer-initiator", rpcProposal(SkillWebResearch, 10))
	assert.Empty(t, worker.Tasks())
}
