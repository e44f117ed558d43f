// Package rpc implements the versioned JSON-RPC 2.0 envelope carrying the four
// protocol message kinds: TaskProposal, BidSubmission, WorkProof, and
// PaymentFinalize. A malformed or unknown envelope decodes to *DecodeError and
// is discarded by callers; it never propagates further.
package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/binary-souls/agentic-network/internal/identity"
)

// Version is the fixed protocol version string carried in every envelope.
const Version = "2.0"

// Method names for the four message kinds.
const (
	MethodTaskProposal    = "TaskProposal"
	MethodBidSubmission   = "BidSubmission"
	MethodWorkProof       = "WorkProof"
	MethodPaymentFinalize = "PaymentFinalize"
)

// Envelope is the wire form of every protocol message.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      string          `json:"id"`
}

// TaskProposal announces a task to the skill topic and opens bidding.
type TaskProposal struct {
	TaskID   string  `json:"task_id"`
	Skill    string  `json:"skill"`
	MaxBid   float64 `json:"max_bid"`
	Deadline int64   `json:"deadline"` // epoch seconds
}

// BidSubmission is a bid for an open task.
type BidSubmission struct {
	TaskID string          `json:"task_id"`
	Bidder identity.PeerID `json:"bidder"`
	Price  float64         `json:"price"`
	ETA    int64           `json:"eta,omitempty"` // estimated completion, epoch seconds
}

// WorkProof carries the worker's opaque proof of completion.
type WorkProof struct {
	TaskID string          `json:"task_id"`
	Worker identity.PeerID `json:"worker"`
	Proof  []byte          `json:"proof"`
}

// PaymentFinalize reports the settlement outcome for a task.
type PaymentFinalize struct {
	TaskID        string `json:"task_id"`
	SettlementRef string `json:"settlement_ref"`
	Outcome       string `json:"outcome"` // "released" or "rejected"
}

// DecodeError reports a malformed inbound message. Gossip is inherently
// lossy, so callers drop the message and move on.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol decode error: %s", e.Reason)
}

// Encode wraps params in a versioned envelope with a fresh correlation ID.
func Encode(method string, params interface{}) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	env := Envelope{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
		ID:      uuid.NewString(),
	}
	return json.Marshal(env)
}

// Decode parses an envelope and its method-specific params. It returns the
// envelope plus exactly one non-nil params struct, or *DecodeError.
func Decode(data []byte) (*Envelope, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, &DecodeError{Reason: "malformed envelope: " + err.Error()}
	}
	if env.JSONRPC != Version {
		return nil, nil, &DecodeError{Reason: "unsupported protocol version " + env.JSONRPC}
	}
	if len(env.Params) == 0 {
		return nil, nil, &DecodeError{Reason: "missing params"}
	}

	switch env.Method {
	case MethodTaskProposal:
		var p TaskProposal
		if err := strictUnmarshal(env.Params, &p); err != nil {
			return nil, nil, err
		}
		if p.TaskID == "" || p.Skill == "" {
			return nil, nil, &DecodeError{Reason: "TaskProposal missing task_id or skill"}
		}
		return &env, &p, nil
	case MethodBidSubmission:
		var p BidSubmission
		if err := strictUnmarshal(env.Params, &p); err != nil {
			return nil, nil, err
		}
		if p.TaskID == "" || p.Bidder == "" {
			return nil, nil, &DecodeError{Reason: "BidSubmission missing task_id or bidder"}
		}
		return &env, &p, nil
	case MethodWorkProof:
		var p WorkProof
		if err := strictUnmarshal(env.Params, &p); err != nil {
			return nil, nil, err
		}
		if p.TaskID == "" || p.Worker == "" {
			return nil, nil, &DecodeError{Reason: "WorkProof missing task_id or worker"}
		}
		return &env, &p, nil
	case MethodPaymentFinalize:
		var p PaymentFinalize
		if err := strictUnmarshal(env.Params, &p); err != nil {
			return nil, nil, err
		}
		if p.TaskID == "" {
			return nil, nil, &DecodeError{Reason: "PaymentFinalize missing task_id"}
		}
		return &env, &p, nil
	default:
		return nil, nil, &DecodeError{Reason: "unknown method " + env.Method}
	}
}

func strictUnmarshal(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Reason: "invalid params: " + err.Error()}
	}
	return nil
}
