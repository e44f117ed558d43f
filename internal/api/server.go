// Package api exposes the node's local query surface: task posting and
// inspection over REST/JSON, live lifecycle events over WebSocket and SSE,
// and Prometheus metrics. The protocol itself never runs over this surface;
// it is operator tooling only.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/binary-souls/agentic-network/internal/auction"
	"github.com/binary-souls/agentic-network/internal/discovery"
	"github.com/binary-souls/agentic-network/internal/identity"
	"github.com/binary-souls/agentic-network/internal/policy"
	"github.com/binary-souls/agentic-network/internal/trust"
)

// Server wires the node's components behind HTTP handlers.
type Server struct {
	self     *identity.Identity
	coord    *auction.Coordinator
	worker   *auction.Worker
	ledger   *trust.Ledger
	gate     *policy.Gate
	disc     *discovery.Client
	streamer *EventStreamer

	httpSrv *http.Server
	logger  *log.Logger
}

func NewServer(self *identity.Identity, coord *auction.Coordinator, worker *auction.Worker, ledger *trust.Ledger, gate *policy.Gate, disc *discovery.Client, streamer *EventStreamer) *Server {
	return &Server{
		self:     self,
		coord:    coord,
		worker:   worker,
		ledger:   ledger,
		gate:     gate,
		disc:     disc,
		streamer: streamer,
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// --- Endpoints ---

	// 1. Tasks (initiator side)
	r.HandleFunc("/api/tasks", s.handlePostTask).Methods("POST")
	r.HandleFunc("/api/tasks", s.handleListTasks).Methods("GET")
	r.HandleFunc("/api/tasks/{id}", s.handleGetTask).Methods("GET")
	r.HandleFunc("/api/tasks/{id}/cancel", s.handleCancelTask).Methods("POST")

	// 2. Delegations (worker side)
	r.HandleFunc("/api/delegations", s.handleDelegations).Methods("GET")

	// 3. Trust ledger
	r.HandleFunc("/api/trust", s.handleTrustRecords).Methods("GET")
	r.HandleFunc("/api/trust/{peer}", s.handleTrustPeer).Methods("GET")

	// 4. Eligibility policy
	r.HandleFunc("/api/policy", s.handlePolicyList).Methods("GET")
	r.HandleFunc("/api/policy", s.handlePolicyAdd).Methods("POST")
	r.HandleFunc("/api/policy/{peer}", s.handlePolicyRemove).Methods("DELETE")

	// 5. Discovery
	r.HandleFunc("/api/peers/{skill}", s.handlePeersForSkill).Methods("GET")

	// 6. Node info and streams
	r.HandleFunc("/api/node", s.handleNodeInfo).Methods("GET")
	r.HandleFunc("/api/events", s.streamer.HandleSSE).Methods("GET")
	r.HandleFunc("/ws", s.streamer.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own lifetimes
	}
	s.logger.Printf("🚀 node API listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// --- Handlers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type postTaskRequest struct {
	Skill    string  `json:"skill"`
	Budget   float64 `json:"budget"`
	Deadline string  `json:"deadline"` // RFC 3339
}

func (s *Server) handlePostTask(w http.ResponseWriter, r *http.Request) {
	var req postTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("deadline must be RFC 3339: %w", err))
		return
	}
	snap, err := s.coord.PostTask(r.Context(), auction.TaskSpec{
		Skill:    req.Skill,
		Budget:   req.Budget,
		Deadline: deadline,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.List())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.coord.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("task %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.coord.Cancel(id); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleDelegations(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		writeJSON(w, http.StatusOK, []auction.WorkerTask{})
		return
	}
	writeJSON(w, http.StatusOK, s.worker.Tasks())
}

func (s *Server) handleTrustRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Records())
}

func (s *Server) handleTrustPeer(w http.ResponseWriter, r *http.Request) {
	peer := identity.PeerID(mux.Vars(r)["peer"])
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("skill query parameter required"))
		return
	}
	rec, known := s.ledger.Lookup(peer, skill)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer":   peer,
		"skill":  skill,
		"score":  s.ledger.ScoreFor(peer, skill),
		"known":  known,
		"record": rec,
	})
}

func (s *Server) handlePolicyList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Entries())
}

func (s *Server) handlePolicyAdd(w http.ResponseWriter, r *http.Request) {
	var entry policy.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if entry.Peer == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("peer required"))
		return
	}
	if entry.Source == "" {
		entry.Source = policy.SourceManual
	}
	s.gate.Add(entry)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handlePolicyRemove(w http.ResponseWriter, r *http.Request) {
	s.gate.Remove(identity.PeerID(mux.Vars(r)["peer"]))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePeersForSkill(w http.ResponseWriter, r *http.Request) {
	skill := mux.Vars(r)["skill"]
	peers, err := s.disc.CandidatePeers(r.Context(), skill)
	if err != nil {
		s.logger.Printf("discovery for %s degraded: %v", skill, err)
	}
	if peers == nil {
		peers = []identity.PeerID{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"skill": skill,
		"peers": peers,
	})
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_id": s.self.PeerID,
		"skills":  s.self.Skills,
		"wallet":  s.self.WalletRef,
	})
}
