package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/internal/runner"
	"github.com/quantcore/engine/pkg/observability"
)

// registry is the in-process set of runners this control surface can
// address. It is pure wiring glue — no persistence, no multi-machine
// coordination, no config-file business logic (all out of scope per
// the Non-goals); runners are registered once at startup and addressed
// by the ID NewRunner assigned them.
type registry struct {
	mu      sync.RWMutex
	runners map[string]*runner.Runner
}

func newRegistry() *registry {
	return &registry{runners: make(map[string]*runner.Runner)}
}

func (r *registry) register(run *runner.Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[run.ID()] = run
}

func (r *registry) get(id string) (*runner.Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runners[id]
	return run, ok
}

func (r *registry) all() []*runner.Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*runner.Runner, 0, len(r.runners))
	for _, run := range r.runners {
		out = append(out, run)
	}
	return out
}

// controlServer is the thin HTTP shim over the runner registry: a health
// check, a runner listing, and per-runner start, pause, stop, and stats. It is transport convenience,
// not a product API — no auth, no pagination, no request validation
// beyond "does this runner ID exist".
type controlServer struct {
	reg    *registry
	logger *observability.Logger
}

func newControlServer(reg *registry, logger *observability.Logger) *controlServer {
	return &controlServer{reg: reg, logger: logger}
}

func (s *controlServer) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/runners", s.handleListRunners).Methods(http.MethodGet)
	router.HandleFunc("/runners/{id}/start", s.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/runners/{id}/pause", s.handlePause).Methods(http.MethodPost)
	router.HandleFunc("/runners/{id}/stop", s.handleStop).Methods(http.MethodPost)
	router.HandleFunc("/runners/{id}/stats", s.handleStats).Methods(http.MethodGet)
	return router
}

func (s *controlServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *controlServer) handleListRunners(w http.ResponseWriter, r *http.Request) {
	runners := s.reg.all()
	snapshots := make([]runner.Snapshot, 0, len(runners))
	for _, run := range runners {
		snapshots = append(snapshots, run.Snapshot())
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *controlServer) handleStart(w http.ResponseWriter, r *http.Request) {
	s.withRunner(w, r, func(run *runner.Runner) {
		err := run.Start(r.Context())
		s.respondToLifecycleCall(w, r, run, err)
	})
}

func (s *controlServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.withRunner(w, r, func(run *runner.Runner) {
		run.Pause()
		writeJSON(w, http.StatusOK, run.Snapshot())
	})
}

func (s *controlServer) handleStop(w http.ResponseWriter, r *http.Request) {
	s.withRunner(w, r, func(run *runner.Runner) {
		err := run.Stop(r.Context())
		s.respondToLifecycleCall(w, r, run, err)
	})
}

func (s *controlServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.withRunner(w, r, func(run *runner.Runner) {
		writeJSON(w, http.StatusOK, run.Snapshot())
	})
}

func (s *controlServer) withRunner(w http.ResponseWriter, r *http.Request, fn func(*runner.Runner)) {
	id := mux.Vars(r)["id"]
	run, ok := s.reg.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "runner not found"})
		return
	}
	fn(run)
}

func (s *controlServer) respondToLifecycleCall(w http.ResponseWriter, r *http.Request, run *runner.Runner, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, run.Snapshot())
		return
	}
	status := http.StatusInternalServerError
	if isClientLifecycleError(err) {
		status = http.StatusConflict
	}
	if s.logger != nil {
		s.logger.Warn(r.Context(), "runner lifecycle call failed", map[string]interface{}{"runner_id": run.ID(), "error": err.Error()})
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isClientLifecycleError(err error) bool {
	return errors.Is(err, quanterrors.ErrRunnerAlreadyRunning) || errors.Is(err, quanterrors.ErrRunnerNotRunning)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
