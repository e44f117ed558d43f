package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binary-souls/agentic-network/internal/auction"
	"github.com/binary-souls/agentic-network/internal/discovery"
	"github.com/binary-souls/agentic-network/internal/events"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/registry"
	"github.com/binary-souls/agentic-network/internal/transport"
	"github.com/binary-souls/agentic-network/internal/trust"
)

type nopBridge struct{}

func (nopBridge) Escrow(ctx context.Context, taskID string, payer identity.PeerID, amount float64) (string, error) {
	return "escrow-" + taskID, nil
}
func (nopBridge) Release(ctx context.Context, ref string, worker identity.PeerID) error { return nil }
func (nopBridge) Confirm(ctx context.Context, ref string) (bool, error)                 { return true, nil }
func (nopBridge) Balance(ctx context.Context, wallet string) (float64, error)           { return 100, nil }
func (nopBridge) Refund(ctx context.Context, ref string) error                          { return nil }

type testServer struct {
	srv    *httptest.Server
	ledger *trust.Ledger
	gate   *policy.Gate
	self   *identity.Identity
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	self, err := identity.New([]string{"web_research"}, "wallet-self")
	require.NoError(t, err)

	hub := transport.NewLoopback("binary-souls")
	net := hub.Endpoint(self.PeerID)
	ledger, err := trust.NewLedger(trust.DefaultParams(), nil)
	require.NoError(t, err)
	gate := policy.NewGate(0.2, ledger.ScoreFor)
	reg := registry.New(self, net, net, "binary-souls", time.Hour)
	disc := discovery.NewClient(self.PeerID, net, reg, gate)
	bus := events.NewBus()

	coord, err := auction.NewCoordinator(auction.Options{
		Identity:  self,
		Network:   net,
		Discovery: disc,
		Gate:      gate,
		Ledger:    ledger,
		Bridge:    nopBridge{},
		Bus:       bus,
		Metrics:   auction.NewMetrics(prometheus.NewRegistry()),
		BidWindow: 50 * time.Millisecond,
		Retention: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(coord.Close)

	server := NewServer(self, coord, nil, ledger, gate, disc, NewEventStreamer(bus))
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, ledger: ledger, gate: gate, self: self}
}

func (ts *testServer) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func (ts *testServer) getJSON(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	resp.Body.Close()
	return resp
}

func TestPostAndFetchTask(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/tasks", map[string]interface{}{
		"skill":    "web_research",
		"budget":   10,
		"deadline": time.Now().Add(time.Minute).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap auction.TaskSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "BiddingOpen", snap.State)

	var fetched auction.TaskSnapshot
	resp = ts.getJSON(t, "/api/tasks/"+snap.ID, &fetched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, snap.ID, fetched.ID)

	var all []auction.TaskSnapshot
	ts.getJSON(t, "/api/tasks", &all)
	assert.Len(t, all, 1)
}

func TestPostTaskValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/tasks", map[string]interface{}{
		"skill": "web_research", "budget": 10, "deadline": "not-a-time",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = ts.postJSON(t, "/api/tasks", map[string]interface{}{
		"skill": "", "budget": 10,
		"deadline": time.Now().Add(time.Minute).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.getJSON(t, "/api/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPolicyEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/policy", map[string]interface{}{
		"peer": "peer-bad", "deny": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	var entries []policy.Entry
	ts.getJSON(t, "/api/policy", &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, identity.PeerID("peer-bad"), entries[0].Peer)
	assert.True(t, entries[0].Deny)
	assert.Equal(t, policy.SourceManual, entries[0].Source)

	req, err := http.NewRequest(http.MethodDelete, ts.srv.URL+"/api/policy/peer-bad", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	del.Body.Close()

	ts.getJSON(t, "/api/policy", &entries)
	assert.Empty(t, entries)
}

func TestTrustEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.Seed(trust.Record{Peer: "peer-a", Skill: "web_research", Score: 0.8, LastWorked: time.Now()})

	var records []trust.Record
	ts.getJSON(t, "/api/trust", &records)
	require.Len(t, records, 1)
	assert.Equal(t, identity.PeerID("peer-a"), records[0].Peer)

	var peerView struct {
		Score float64 `json:"score"`
		Known bool    `json:"known"`
	}
	resp := ts.getJSON(t, "/api/trust/peer-a?skill=web_research", &peerView)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.8, peerView.Score, 1e-9)
	assert.True(t, peerView.Known)

	resp = ts.getJSON(t, "/api/trust/peer-a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "skill parameter is required")
}

func TestNodeInfo(t *testing.T) {
	ts := newTestServer(t)
	var info struct {
		PeerID string   `json:"peer_id"`
		Skills []string `json:"skills"`
	}
	resp := ts.getJSON(t, "/api/node", &info)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(ts.self.PeerID), info.PeerID)
	assert.Equal(t, []string{"web_research"}, info.Skills)
}
