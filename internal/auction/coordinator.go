package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/binary-souls/agentic-network/internal/discovery"
	"github.com/binary-souls/agentic-network/internal/events"
	"github.com/binary-souls/agentic-network/internal/executor"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/rpc"
	"github.com/binary-souls/agentic-network/internal/settlement"
	"github.com/binary-souls/agentic-network/internal/transport"
	"github.com/binary-souls/agentic-network/internal/trust"
)

// deliveryRetryInterval paces delegation-notice redelivery inside the grace
// window.
const deliveryRetryInterval = 500 * time.Millisecond

// Delegate receives the worker-side messages the coordinator routes off the
// shared inbound stream: delegation notices and settlement notifications.
type Delegate interface {
	HandleDelegation(ctx context.Context, from identity.PeerID, proposal rpc.TaskProposal)
	HandleFinalize(from identity.PeerID, fin rpc.PaymentFinalize)
}

// Options wires a Coordinator. Identity, Network, Ledger, Gate and Bridge
// are required; the rest default sensibly.
type Options struct {
	Identity  *identity.Identity
	Network   transport.Network
	Discovery *discovery.Client
	Gate      *policy.Gate
	Ledger    *trust.Ledger
	Bridge    settlement.Bridge
	Retrier   *settlement.Retrier
	Verifier  executor.ProofVerifier
	Bus       *events.Bus
	Metrics   *Metrics
	Policy    ScorePolicy

	Namespace       string
	BidWindow       time.Duration
	DelegationGrace time.Duration
	Retention       time.Duration
}

// Coordinator runs the initiator side of the protocol. Every posted task
// gets its own goroutine that owns the task's state exclusively; bids,
// proofs and timer expiry reach it as events on one channel, so no state
// transition ever races another.
type Coordinator struct {
	opts   Options
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	tasks map[string]*taskActor
}

type eventKind int

const (
	evBid eventKind = iota
	evProof
)

type taskEvent struct {
	kind  eventKind
	bid   Bid
	proof rpc.WorkProof
}

// taskActor owns one task. The run loop is the only writer of the task
// fields; mu guards them for snapshot readers.
type taskActor struct {
	mu   sync.Mutex
	task TaskSnapshot

	events chan taskEvent
	done   chan struct{}

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (a *taskActor) requestCancel() {
	a.cancelOnce.Do(func() { close(a.cancel) })
}

func (a *taskActor) cancelRequested() bool {
	select {
	case <-a.cancel:
		return true
	default:
		return false
	}
}

func (a *taskActor) snapshot() TaskSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Identity == nil || opts.Network == nil || opts.Ledger == nil || opts.Gate == nil || opts.Bridge == nil {
		return nil, errors.New("coordinator: identity, network, ledger, gate and bridge are required")
	}
	if opts.Retrier == nil {
		opts.Retrier = settlement.NewRetrier(settlement.DefaultRetryConfig())
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Namespace == "" {
		opts.Namespace = "binary-souls"
	}
	if opts.BidWindow <= 0 {
		opts.BidWindow = 5 * time.Second
	}
	if opts.DelegationGrace <= 0 {
		opts.DelegationGrace = 10 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:   opts,
		logger: log.New(log.Writer(), "[AUCTION] ", log.LstdFlags),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*taskActor),
	}, nil
}

// Close stops all task loops. In-flight tasks end without a terminal
// transition; a restarted node re-posts them.
func (c *Coordinator) Close() {
	c.cancel()
}

// ---------------------------------------------------------------------------
// Posting and queries
// ---------------------------------------------------------------------------

// PostTask validates the task, opens the bid window, and returns immediately.
// The returned snapshot is the task in its BiddingOpen state.
func (c *Coordinator) PostTask(ctx context.Context, spec TaskSpec) (TaskSnapshot, error) {
	if spec.Skill == "" {
		return TaskSnapshot{}, &InvalidTaskError{Reason: "empty skill tag"}
	}
	if spec.Budget <= 0 {
		return TaskSnapshot{}, &InvalidTaskError{Reason: fmt.Sprintf("non-positive budget %v", spec.Budget)}
	}
	now := time.Now()
	if !spec.Deadline.After(now) {
		return TaskSnapshot{}, &InvalidTaskError{Reason: "deadline already passed"}
	}
	if !spec.Deadline.After(now.Add(c.opts.BidWindow)) {
		return TaskSnapshot{}, &InvalidTaskError{Reason: "deadline precedes bid window close"}
	}

	candidates := 0
	if c.opts.Discovery != nil {
		peers, err := c.opts.Discovery.CandidatePeers(ctx, spec.Skill)
		if err != nil {
			c.logger.Printf("task discovery for skill %s degraded: %v", spec.Skill, err)
		}
		candidates = len(peers)
	}

	a := &taskActor{
		task: TaskSnapshot{
			ID:         uuid.NewString(),
			Skill:      spec.Skill,
			Budget:     spec.Budget,
			Deadline:   spec.Deadline,
			Creator:    c.opts.Identity.PeerID,
			State:      StatePosted.String(),
			Candidates: candidates,
			CreatedAt:  now,
		},
		events: make(chan taskEvent, 256),
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}

	c.mu.Lock()
	c.tasks[a.task.ID] = a
	c.mu.Unlock()

	c.opts.Metrics.TasksPosted.Inc()
	c.opts.Metrics.TasksActive.Inc()
	c.opts.Bus.Emit(events.TypeTaskPosted, "auction", a.task.ID, map[string]interface{}{
		"skill":      spec.Skill,
		"budget":     spec.Budget,
		"deadline":   spec.Deadline.Unix(),
		"candidates": candidates,
	})
	c.logger.Printf("task %s posted: skill=%s budget=%.2f candidates=%d", a.task.ID, spec.Skill, spec.Budget, candidates)

	c.setState(a, StateBiddingOpen)
	go c.run(a)
	return a.snapshot(), nil
}

// Get returns the current view of a task.
func (c *Coordinator) Get(taskID string) (TaskSnapshot, bool) {
	c.mu.RLock()
	a, ok := c.tasks[taskID]
	c.mu.RUnlock()
	if !ok {
		return TaskSnapshot{}, false
	}
	return a.snapshot(), true
}

// List returns snapshots of every retained task, newest first.
func (c *Coordinator) List() []TaskSnapshot {
	c.mu.RLock()
	out := make([]TaskSnapshot, 0, len(c.tasks))
	for _, a := range c.tasks {
		out = append(out, a.snapshot())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel withdraws a task before delegation. The task expires with no side
// effects beyond the local transition; once a worker is selected the task
// must run to a terminal state.
func (c *Coordinator) Cancel(taskID string) error {
	c.mu.RLock()
	a, ok := c.tasks[taskID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	snap := a.snapshot()
	switch snap.State {
	case StatePosted.String(), StateBiddingOpen.String(), StateBiddingClosed.String():
		a.requestCancel()
		return nil
	default:
		return fmt.Errorf("task %s is %s, past cancellation", taskID, snap.State)
	}
}

// ---------------------------------------------------------------------------
// Inbound routing
// ---------------------------------------------------------------------------

// Run consumes the node's direct inbound stream and routes each message:
// bids and proofs to their task loops, delegation notices and settlement
// notifications to the worker delegate. Malformed payloads are dropped.
// Blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context, delegate Delegate) {
	inbound := c.opts.Network.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			c.dispatch(ctx, msg, delegate)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, msg transport.Message, delegate Delegate) {
	_, params, err := rpc.Decode(msg.Payload)
	if err != nil {
		c.logger.Printf("dropping inbound from %s: %v", msg.From, err)
		return
	}
	switch p := params.(type) {
	case *rpc.BidSubmission:
		if msg.From != "" && msg.From != p.Bidder {
			c.logger.Printf("dropping bid for task %s: sender %s claims bidder %s", p.TaskID, msg.From, p.Bidder)
			return
		}
		c.SubmitBid(*p)
	case *rpc.WorkProof:
		if msg.From != "" && msg.From != p.Worker {
			c.logger.Printf("dropping proof for task %s: sender %s claims worker %s", p.TaskID, msg.From, p.Worker)
			return
		}
		c.SubmitProof(*p)
	case *rpc.TaskProposal:
		// A proposal addressed directly to this peer is a delegation notice.
		if delegate != nil {
			delegate.HandleDelegation(ctx, msg.From, *p)
		}
	case *rpc.PaymentFinalize:
		if delegate != nil {
			delegate.HandleFinalize(msg.From, *p)
		}
	}
}

// SubmitBid hands a bid to its task loop. Bids for unknown or terminal tasks
// are counted and dropped.
func (c *Coordinator) SubmitBid(sub rpc.BidSubmission) {
	c.mu.RLock()
	a, ok := c.tasks[sub.TaskID]
	c.mu.RUnlock()
	if !ok {
		c.opts.Metrics.BidsReceived.WithLabelValues(bidLate).Inc()
		return
	}
	ev := taskEvent{kind: evBid, bid: Bid{
		TaskID:    sub.TaskID,
		Bidder:    sub.Bidder,
		Price:     sub.Price,
		ETA:       sub.ETA,
		Submitted: time.Now(),
	}}
	// Never block the shared inbound loop on one task's buffer.
	select {
	case a.events <- ev:
	case <-a.done:
		c.opts.Metrics.BidsReceived.WithLabelValues(bidLate).Inc()
	default:
		c.opts.Metrics.BidsReceived.WithLabelValues(bidLate).Inc()
	}
}

// SubmitProof hands a work proof to its task loop.
func (c *Coordinator) SubmitProof(p rpc.WorkProof) {
	c.mu.RLock()
	a, ok := c.tasks[p.TaskID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case a.events <- taskEvent{kind: evProof, proof: p}:
	case <-a.done:
	default:
		c.logger.Printf("task %s: proof from %s dropped, event queue full", p.TaskID, p.Worker)
	}
}

// ---------------------------------------------------------------------------
// Task loop
// ---------------------------------------------------------------------------

func (c *Coordinator) run(a *taskActor) {
	task := a.snapshot()

	c.broadcastProposal(task)

	bids, cancelled := c.collectBids(a, task)
	if cancelled {
		c.finish(a, StateExpired, "cancelled by initiator", nil)
		return
	}

	c.setState(a, StateBiddingClosed)
	c.opts.Metrics.BidWindowSize.Observe(float64(len(bids)))
	a.mu.Lock()
	a.task.BidsReceived = len(bids)
	a.mu.Unlock()

	winner, score, ok := c.pickWinner(task, bids)
	if !ok {
		// Zero eligible bids never touches the ledger.
		c.finish(a, StateExpired, "no eligible bids", nil)
		return
	}
	c.opts.Metrics.SelectionScore.Observe(score)
	a.mu.Lock()
	a.task.Worker = winner.Bidder
	a.task.WinningBid = &winner
	a.mu.Unlock()
	c.logger.Printf("task %s winner: %s price=%.2f score=%.3f of %d bids", task.ID, winner.Bidder, winner.Price, score, len(bids))

	// Cancellation stays open through BiddingClosed, up to delegation.
	if a.cancelRequested() {
		c.finish(a, StateExpired, "cancelled by initiator", nil)
		return
	}

	ref, err := c.escrow(task, winner)
	if err != nil {
		c.finish(a, StateFailed, "escrow failed: "+err.Error(), nil)
		return
	}
	a.mu.Lock()
	a.task.SettlementRef = ref
	a.mu.Unlock()

	if a.cancelRequested() {
		c.finish(a, StateExpired, "cancelled by initiator", nil)
		return
	}
	c.setState(a, StateDelegated)
	if !c.deliverDelegation(task, winner.Bidder) {
		failure := trust.Failure
		c.finish(a, StateFailed, "worker did not begin within grace period", &failure)
		return
	}
	c.setState(a, StateInProgress)

	proof, expired := c.awaitProof(a, task, winner.Bidder)
	if expired {
		failure := trust.Failure
		c.finish(a, StateExpired, "deadline elapsed before proof", &failure)
		return
	}

	c.setState(a, StateProofSubmitted)
	if reason, ok := c.verify(task, proof); !ok {
		c.notifyWorker(task.ID, winner.Bidder, ref, "rejected")
		failure := trust.Failure
		c.finish(a, StateRejected, reason, &failure)
		return
	}
	c.setState(a, StateVerified)

	c.setState(a, StatePaymentPending)
	success := trust.Success
	if err := c.settle(task, winner.Bidder, ref); err != nil {
		// The work was verified; a payment-rail failure is not the worker's.
		c.finish(a, StateFailed, "settlement failed: "+err.Error(), &success)
		return
	}
	c.notifyWorker(task.ID, winner.Bidder, ref, "released")
	c.finish(a, StateCompleted, "", &success)
}

func (c *Coordinator) broadcastProposal(task TaskSnapshot) {
	payload, err := rpc.Encode(rpc.MethodTaskProposal, rpc.TaskProposal{
		TaskID:   task.ID,
		Skill:    task.Skill,
		MaxBid:   task.Budget,
		Deadline: task.Deadline.Unix(),
	})
	if err != nil {
		c.logger.Printf("task %s proposal encode: %v", task.ID, err)
		return
	}
	topic := transport.SkillTopic(c.opts.Namespace, task.Skill)
	if err := c.opts.Network.Publish(c.ctx, topic, payload); err != nil {
		// Gossip is best-effort; the window still runs, it may just expire.
		c.logger.Printf("task %s proposal publish: %v", task.ID, err)
	}
}

// collectBids runs the bid window. Only events consumed before the window
// timer fires count; a bid racing the close loses by serialization, never by
// luck.
func (c *Coordinator) collectBids(a *taskActor, task TaskSnapshot) (map[identity.PeerID]Bid, bool) {
	bids := make(map[identity.PeerID]Bid)
	window := time.NewTimer(c.opts.BidWindow)
	defer window.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return bids, true
		case <-a.cancel:
			return bids, true
		case <-window.C:
			return bids, false
		case ev := <-a.events:
			switch ev.kind {
			case evBid:
				c.recordBid(task, bids, ev.bid)
			case evProof:
				c.logger.Printf("task %s: proof before delegation ignored", task.ID)
			}
		}
	}
}

func (c *Coordinator) recordBid(task TaskSnapshot, bids map[identity.PeerID]Bid, bid Bid) {
	reject := func(disposition, detail string) {
		c.opts.Metrics.BidsReceived.WithLabelValues(disposition).Inc()
		c.opts.Bus.Emit(events.TypeBidRejected, "auction", task.ID, map[string]interface{}{
			"bidder": string(bid.Bidder),
			"reason": detail,
		})
		c.logger.Printf("task %s: bid from %s rejected: %s", task.ID, bid.Bidder, detail)
	}
	switch {
	case bid.Bidder == task.Creator:
		reject(bidSelfBid, "initiator cannot bid on its own task")
		return
	case bid.Price <= 0 || bid.Price > task.Budget:
		reject(bidOverBudget, fmt.Sprintf("price %.2f outside (0, %.2f]", bid.Price, task.Budget))
		return
	case !c.opts.Gate.IsEligible(bid.Bidder, task.Skill):
		reject(bidIneligible, "peer not eligible for skill "+task.Skill)
		return
	}
	if _, seen := bids[bid.Bidder]; seen {
		c.opts.Metrics.BidsReceived.WithLabelValues(bidSuperseded).Inc()
	}
	bids[bid.Bidder] = bid
	c.opts.Metrics.BidsReceived.WithLabelValues(bidAccepted).Inc()
	c.opts.Bus.Emit(events.TypeBidAccepted, "auction", task.ID, map[string]interface{}{
		"bidder": string(bid.Bidder),
		"price":  bid.Price,
	})
}

// pickWinner re-checks eligibility at close so a peer denied mid-window
// cannot win, then applies the scoring policy.
func (c *Coordinator) pickWinner(task TaskSnapshot, bids map[identity.PeerID]Bid) (Bid, float64, bool) {
	eligible := make([]Bid, 0, len(bids))
	for _, b := range bids {
		if c.opts.Gate.IsEligible(b.Bidder, task.Skill) {
			eligible = append(eligible, b)
		}
	}
	return selectWinner(eligible, task.Budget, func(peer identity.PeerID) float64 {
		return c.opts.Ledger.ScoreFor(peer, task.Skill)
	}, c.opts.Policy)
}

func (c *Coordinator) escrow(task TaskSnapshot, winner Bid) (string, error) {
	var ref string
	err := c.opts.Retrier.Do(c.ctx, "escrow", func(ctx context.Context) error {
		var opErr error
		ref, opErr = c.opts.Bridge.Escrow(ctx, task.ID, task.Creator, winner.Price)
		c.countSettlement("escrow", opErr)
		return opErr
	})
	return ref, err
}

// deliverDelegation re-sends the delegation notice to the winner until it is
// acknowledged or the grace window lapses.
func (c *Coordinator) deliverDelegation(task TaskSnapshot, worker identity.PeerID) bool {
	payload, err := rpc.Encode(rpc.MethodTaskProposal, rpc.TaskProposal{
		TaskID:   task.ID,
		Skill:    task.Skill,
		MaxBid:   task.Budget,
		Deadline: task.Deadline.Unix(),
	})
	if err != nil {
		c.logger.Printf("task %s delegation encode: %v", task.ID, err)
		return false
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.DelegationGrace)
	defer cancel()
	for {
		err := c.opts.Network.Send(ctx, worker, payload)
		if err == nil {
			return true
		}
		c.logger.Printf("task %s delegation to %s: %v", task.ID, worker, err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(deliveryRetryInterval):
		}
	}
}

// awaitProof blocks until the winner's proof arrives or the task deadline
// passes. Proofs from any other peer are ignored.
func (c *Coordinator) awaitProof(a *taskActor, task TaskSnapshot, worker identity.PeerID) ([]byte, bool) {
	deadline := time.NewTimer(time.Until(task.Deadline))
	defer deadline.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return nil, true
		case <-deadline.C:
			return nil, true
		case ev := <-a.events:
			switch ev.kind {
			case evBid:
				c.opts.Metrics.BidsReceived.WithLabelValues(bidLate).Inc()
			case evProof:
				if ev.proof.Worker != worker {
					c.logger.Printf("task %s: proof from non-worker %s ignored", task.ID, ev.proof.Worker)
					continue
				}
				return ev.proof.Proof, false
			}
		}
	}
}

func (c *Coordinator) verify(task TaskSnapshot, proof []byte) (string, bool) {
	if c.opts.Verifier == nil {
		return "", true
	}
	view := executor.TaskView{
		TaskID:   task.ID,
		Skill:    task.Skill,
		Creator:  task.Creator,
		MaxBid:   task.Budget,
		Deadline: task.Deadline,
	}
	accepted, err := c.opts.Verifier.VerifyProof(c.ctx, view, proof)
	if err != nil {
		return "proof verification error: " + err.Error(), false
	}
	if !accepted {
		return "proof rejected by verifier", false
	}
	return "", true
}

// settle releases escrow and polls for on-chain confirmation, both under the
// transient-retry policy.
func (c *Coordinator) settle(task TaskSnapshot, worker identity.PeerID, ref string) error {
	err := c.opts.Retrier.Do(c.ctx, "release", func(ctx context.Context) error {
		opErr := c.opts.Bridge.Release(ctx, ref, worker)
		c.countSettlement("release", opErr)
		return opErr
	})
	if err != nil {
		return err
	}
	return c.opts.Retrier.Do(c.ctx, "confirm", func(ctx context.Context) error {
		settled, opErr := c.opts.Bridge.Confirm(ctx, ref)
		c.countSettlement("confirm", opErr)
		if opErr != nil {
			return opErr
		}
		if !settled {
			return fmt.Errorf("release %s not yet settled: %w", ref, settlement.ErrTransient)
		}
		return nil
	})
}

func (c *Coordinator) countSettlement(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.opts.Metrics.SettlementCalls.WithLabelValues(op, result).Inc()
}

// notifyWorker sends the PaymentFinalize notification. Best effort; the
// worker's own view catches up whenever delivery succeeds.
func (c *Coordinator) notifyWorker(taskID string, worker identity.PeerID, ref, outcome string) {
	payload, err := rpc.Encode(rpc.MethodPaymentFinalize, rpc.PaymentFinalize{
		TaskID:        taskID,
		SettlementRef: ref,
		Outcome:       outcome,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.opts.Network.Send(ctx, worker, payload); err != nil {
		c.logger.Printf("task %s finalize notice to %s: %v", taskID, worker, err)
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func (c *Coordinator) setState(a *taskActor, next State) {
	a.mu.Lock()
	prev := a.task.State
	a.task.State = next.String()
	id := a.task.ID
	a.mu.Unlock()
	c.opts.Bus.EmitTaskState(id, prev, next.String())
}

// finish performs the single terminal transition for a task. At most one
// trust update ever happens per task, here and nowhere else.
func (c *Coordinator) finish(a *taskActor, state State, reason string, outcome *trust.Outcome) {
	now := time.Now()
	a.mu.Lock()
	prev := a.task.State
	a.task.State = state.String()
	a.task.Reason = reason
	a.task.TerminalAt = &now
	id := a.task.ID
	worker := a.task.Worker
	skill := a.task.Skill
	ref := a.task.SettlementRef
	a.mu.Unlock()

	close(a.done)
	c.opts.Metrics.TasksActive.Dec()
	c.opts.Metrics.TasksTerminal.WithLabelValues(state.String()).Inc()
	c.opts.Bus.EmitTaskState(id, prev, state.String())

	// Escrowed funds go back to the payer on every terminal except a paid
	// completion. Bridges reject refunds of released escrows, so a task
	// failed after a partial settlement cannot double-pay.
	if ref != "" && state != StateCompleted {
		err := c.opts.Retrier.Do(c.ctx, "refund", func(ctx context.Context) error {
			opErr := c.opts.Bridge.Refund(ctx, ref)
			c.countSettlement("refund", opErr)
			return opErr
		})
		if err != nil {
			c.logger.Printf("task %s refund of %s: %v", id, ref, err)
		}
	}

	if outcome != nil && worker != "" {
		rec := c.opts.Ledger.UpdateOnOutcome(worker, skill, *outcome)
		c.opts.Bus.Emit(events.TypeTrustUpdated, "auction", string(worker), map[string]interface{}{
			"task_id": id,
			"skill":   skill,
			"outcome": outcome.String(),
			"score":   rec.Score,
		})
	}
	if state == StateCompleted || state == StateFailed {
		c.opts.Bus.Emit(events.TypeSettlementDone, "auction", id, map[string]interface{}{
			"settlement_ref": ref,
			"state":          state.String(),
			"reason":         reason,
		})
	}
	if reason != "" {
		c.logger.Printf("task %s terminal: %s (%s)", id, state, reason)
	} else {
		c.logger.Printf("task %s terminal: %s", id, state)
	}

	time.AfterFunc(c.opts.Retention, func() {
		c.mu.Lock()
		delete(c.tasks, id)
		c.mu.Unlock()
	})
}
