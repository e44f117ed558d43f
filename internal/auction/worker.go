package auction

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/binary-souls/agentic-network/internal/events"
	"github.com/binary-souls/agentic-network/internal/executor"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/registry"
	"github.com/binary-souls/agentic-network/internal/rpc"
	"github.com/binary-souls/agentic-network/internal/transport"
)

// proofSendAttempts bounds WorkProof redelivery. The initiator's deadline
// timer is the real backstop.
const proofSendAttempts = 3

// BidStrategy decides whether and how to bid on a proposal.
type BidStrategy interface {
	// Quote returns a price and estimated completion time for the proposal,
	// or ok=false to sit the auction out.
	Quote(proposal rpc.TaskProposal) (price float64, eta int64, ok bool)
}

// RateStrategy bids a fixed per-skill rate. Skills without a configured rate
// fall back to Default when it is positive, otherwise the proposal is
// declined. Quotes above the proposal's budget ceiling are declined too.
type RateStrategy struct {
	Rates   map[string]float64
	Default float64

	// LeadTime is the completion estimate offered with each bid.
	LeadTime time.Duration
}

func (s RateStrategy) Quote(p rpc.TaskProposal) (float64, int64, bool) {
	rate, ok := s.Rates[p.Skill]
	if !ok {
		if s.Default <= 0 {
			return 0, 0, false
		}
		rate = s.Default
	}
	if rate > p.MaxBid {
		return 0, 0, false
	}
	eta := time.Now().Add(s.LeadTime).Unix()
	return rate, eta, true
}

// WorkerTask is the worker's read-only view of a task it bid on or won.
type WorkerTask struct {
	ID            string          `json:"id"`
	Skill         string          `json:"skill"`
	Initiator     identity.PeerID `json:"initiator"`
	Budget        float64         `json:"budget"`
	Deadline      time.Time       `json:"deadline"`
	State         string          `json:"state"`
	SettlementRef string          `json:"settlement_ref,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Worker is the bidder/executor side of the protocol. It watches the skill
// topics for proposals, bids through its strategy, and runs delegated work
// through the node's Executor.
type Worker struct {
	id       *identity.Identity
	net      transport.Network
	reg      *registry.Registry
	exec     executor.Executor
	strategy BidStrategy
	bus      *events.Bus
	logger   *log.Logger

	namespace string

	mu    sync.RWMutex
	tasks map[string]*WorkerTask
}

func NewWorker(id *identity.Identity, net transport.Network, reg *registry.Registry, exec executor.Executor, strategy BidStrategy, bus *events.Bus, namespace string) *Worker {
	if bus == nil {
		bus = events.NewBus()
	}
	if namespace == "" {
		namespace = "binary-souls"
	}
	return &Worker{
		id:        id,
		net:       net,
		reg:       reg,
		exec:      exec,
		strategy:  strategy,
		bus:       bus,
		logger:    log.New(log.Writer(), "[WORKER] ", log.LstdFlags),
		namespace: namespace,
		tasks:     make(map[string]*WorkerTask),
	}
}

// Start subscribes to the gossip topic of every local skill and watches for
// proposals. Blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, skill := range w.id.Skills {
		topic := transport.SkillTopic(w.namespace, skill)
		ch, cancel, err := w.net.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(topic string, ch <-chan transport.Message, cancel func()) {
			defer wg.Done()
			defer cancel()
			w.watchTopic(ctx, topic, ch)
		}(topic, ch, cancel)
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

// watchTopic consumes one skill topic. Envelopes are proposals; anything
// else is fed to the capability registry, which drops what it cannot parse.
func (w *Worker) watchTopic(ctx context.Context, topic string, ch <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, params, err := rpc.Decode(msg.Payload)
			if err != nil {
				if w.reg != nil {
					w.reg.IngestGossip(msg.Payload)
				}
				continue
			}
			if p, isProposal := params.(*rpc.TaskProposal); isProposal {
				w.maybeBid(ctx, msg.From, *p)
			}
		}
	}
}

func (w *Worker) maybeBid(ctx context.Context, initiator identity.PeerID, p rpc.TaskProposal) {
	if w.strategy == nil || initiator == "" || initiator == w.id.PeerID {
		return
	}
	if time.Unix(p.Deadline, 0).Before(time.Now()) {
		return
	}
	price, eta, ok := w.strategy.Quote(p)
	if !ok {
		return
	}
	payload, err := rpc.Encode(rpc.MethodBidSubmission, rpc.BidSubmission{
		TaskID: p.TaskID,
		Bidder: w.id.PeerID,
		Price:  price,
		ETA:    eta,
	})
	if err != nil {
		w.logger.Printf("bid encode for task %s: %v", p.TaskID, err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.net.Send(sendCtx, initiator, payload); err != nil {
		w.logger.Printf("bid for task %s undeliverable to %s: %v", p.TaskID, initiator, err)
		return
	}
	w.logger.Printf("bid %.2f on task %s (skill %s)", price, p.TaskID, p.Skill)
}

// HandleDelegation accepts a delegation notice. Delivery is at-least-once,
// so a task already underway is acknowledged and otherwise ignored.
func (w *Worker) HandleDelegation(ctx context.Context, from identity.PeerID, p rpc.TaskProposal) {
	if w.exec == nil {
		w.logger.Printf("task %s delegated but node has no executor", p.TaskID)
		return
	}
	deadline := time.Unix(p.Deadline, 0)
	view := &WorkerTask{
		ID:        p.TaskID,
		Skill:     p.Skill,
		Initiator: from,
		Budget:    p.MaxBid,
		Deadline:  deadline,
		State:     StateInProgress.String(),
		UpdatedAt: time.Now(),
	}

	w.mu.Lock()
	if _, dup := w.tasks[p.TaskID]; dup {
		w.mu.Unlock()
		return
	}
	w.tasks[p.TaskID] = view
	w.mu.Unlock()

	w.bus.EmitTaskState(p.TaskID, StateDelegated.String(), StateInProgress.String())
	go w.execute(ctx, from, p, deadline)
}

func (w *Worker) execute(ctx context.Context, initiator identity.PeerID, p rpc.TaskProposal, deadline time.Time) {
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	proof, err := w.exec.Execute(execCtx, executor.TaskView{
		TaskID:   p.TaskID,
		Skill:    p.Skill,
		Creator:  initiator,
		MaxBid:   p.MaxBid,
		Deadline: deadline,
	})
	if err != nil {
		// The initiator's deadline timer will expire the task.
		w.logger.Printf("task %s execution failed: %v", p.TaskID, err)
		w.setState(p.TaskID, StateFailed.String())
		return
	}

	payload, err := rpc.Encode(rpc.MethodWorkProof, rpc.WorkProof{
		TaskID: p.TaskID,
		Worker: w.id.PeerID,
		Proof:  proof,
	})
	if err != nil {
		w.logger.Printf("task %s proof encode: %v", p.TaskID, err)
		return
	}
	for attempt := 0; attempt < proofSendAttempts; attempt++ {
		sendCtx, sendCancel := context.WithTimeout(ctx, 5*time.Second)
		err = w.net.Send(sendCtx, initiator, payload)
		sendCancel()
		if err == nil {
			w.setState(p.TaskID, StateProofSubmitted.String())
			return
		}
		w.logger.Printf("task %s proof delivery attempt %d: %v", p.TaskID, attempt+1, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(deliveryRetryInterval):
		}
	}
	w.setState(p.TaskID, StateFailed.String())
}

// HandleFinalize applies the initiator's settlement notification to the
// local task view.
func (w *Worker) HandleFinalize(from identity.PeerID, fin rpc.PaymentFinalize) {
	w.mu.Lock()
	view, ok := w.tasks[fin.TaskID]
	if ok && view.Initiator == from {
		view.SettlementRef = fin.SettlementRef
		if fin.Outcome == "released" {
			view.State = StateCompleted.String()
		} else {
			view.State = StateRejected.String()
		}
		view.UpdatedAt = time.Now()
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	w.bus.Emit(events.TypeSettlementDone, "worker", fin.TaskID, map[string]interface{}{
		"settlement_ref": fin.SettlementRef,
		"outcome":        fin.Outcome,
	})
}

func (w *Worker) setState(taskID, state string) {
	w.mu.Lock()
	view, ok := w.tasks[taskID]
	var prev string
	if ok {
		prev = view.State
		view.State = state
		view.UpdatedAt = time.Now()
	}
	w.mu.Unlock()
	if ok {
		w.bus.EmitTaskState(taskID, prev, state)
	}
}

// Tasks returns the worker's task views, most recently updated first.
func (w *Worker) Tasks() []WorkerTask {
	w.mu.RLock()
	out := make([]WorkerTask, 0, len(w.tasks))
	for _, v := range w.tasks {
		out = append(out, *v)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}
