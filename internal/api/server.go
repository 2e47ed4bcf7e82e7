// Package api is the HTTP control surface: population status, per-device
// inspection and fault injection, scenario management, and the Prometheus
// metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/awksedgreep/snmpherd/internal/device"
	"github.com/awksedgreep/snmpherd/internal/faults"
	"github.com/awksedgreep/snmpherd/internal/pool"
	"github.com/awksedgreep/snmpherd/internal/scenario"
	"github.com/awksedgreep/snmpherd/internal/traps"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the simulator's control endpoints over HTTP.
type Server struct {
	pool       *pool.Pool
	scenarios  *scenario.Store
	runner     *scenario.Runner
	notifier   *traps.Manager
	started    time.Time
	httpServer *http.Server
}

// NewServer wires the control surface onto addr. The scenario store,
// runner and trap notifier may be nil; their endpoints then answer 503.
func NewServer(addr string, p *pool.Pool, store *scenario.Store, runner *scenario.Runner, notifier *traps.Manager) *Server {
	s := &Server{
		pool:      p,
		scenarios: store,
		runner:    runner,
		notifier:  notifier,
		started:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/devices/", s.handleDevice)
	mux.HandleFunc("/api/scenarios", s.handleScenarios)
	mux.HandleFunc("/api/scenarios/", s.handleScenario)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Stop. The error from a graceful shutdown is
// http.ErrServerClosed, which callers should swallow.
func (s *Server) Start() error {
	log.Printf("api: control surface on http://%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Uptime    string      `json:"uptime"`
	Pool      pool.Stats  `json:"pool"`
	Traps     traps.Stats `json:"traps"`
	Scenarios int         `json:"scenarios"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := statusResponse{
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Pool:   s.pool.Stats(),
		Traps:  s.notifier.Statistics(),
	}
	if s.scenarios != nil {
		resp.Scenarios = len(s.scenarios.List())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	devs := s.pool.Devices()
	out := make([]device.Info, 0, len(devs))
	for _, d := range devs {
		info, err := d.Info()
		if err != nil {
			continue // stopping; it will be gone from the next listing
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDevice routes /api/devices/{port} and its subresources.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	head, sub, _ := strings.Cut(rest, "/")
	port, err := strconv.Atoi(head)
	if err != nil || port < 1 || port > 65535 {
		httpError(w, http.StatusBadRequest, "bad port %q", head)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.deviceInfo(w, port)
	case sub == "reboot" && r.Method == http.MethodPost:
		s.deviceReboot(w, port)
	case sub == "inject" && r.Method == http.MethodPost:
		s.deviceInject(w, r, port)
	case sub == "conditions" && r.Method == http.MethodGet:
		s.deviceConditions(w, port)
	case sub == "conditions" && r.Method == http.MethodDelete:
		s.deviceClearConditions(w, r, port)
	default:
		httpError(w, http.StatusMethodNotAllowed, "no %s on /api/devices/{port}/%s", r.Method, sub)
	}
}

func (s *Server) deviceInfo(w http.ResponseWriter, port int) {
	d, ok := s.pool.Get(port)
	if !ok {
		httpError(w, http.StatusNotFound, "no device on port %d", port)
		return
	}
	info, err := d.Info()
	if err != nil {
		httpError(w, http.StatusNotFound, "device %d: %v", port, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deviceReboot(w http.ResponseWriter, port int) {
	d, ok := s.pool.Get(port)
	if !ok {
		httpError(w, http.StatusNotFound, "no device on port %d", port)
		return
	}
	if err := d.Reboot(); err != nil {
		httpError(w, http.StatusConflict, "reboot %d: %v", port, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "rebooted", "port": port})
}

// deviceInject installs a fault condition. The body is a flat JSON
// object: "kind" picks the family and the remaining fields are that
// family's config, decoded by faults.ParseCondition. The device is
// created if it does not exist yet, so operators can stage faults on
// ports their pollers have not touched.
func (s *Server) deviceInject(w http.ResponseWriter, r *http.Request, port int) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	var head struct {
		Kind string `json:"kind"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &head); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request: %v", err)
			return
		}
	}
	kind, cfg, err := faults.ParseCondition(head.Kind, body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}

	d, err := s.pool.GetOrCreate(port)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrUnknownPortRange):
			httpError(w, http.StatusNotFound, "%v", err)
		case errors.Is(err, pool.ErrMaxDevices):
			httpError(w, http.StatusConflict, "%v", err)
		default:
			httpError(w, http.StatusInternalServerError, "%v", err)
		}
		return
	}
	id, err := d.InstallCondition(cfg)
	if err != nil {
		httpError(w, http.StatusConflict, "inject %d: %v", port, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "port": port, "kind": kind})
}

func (s *Server) deviceConditions(w http.ResponseWriter, port int) {
	d, ok := s.pool.Get(port)
	if !ok {
		httpError(w, http.StatusNotFound, "no device on port %d", port)
		return
	}
	conds, err := d.Conditions()
	if err != nil {
		httpError(w, http.StatusConflict, "device %d: %v", port, err)
		return
	}
	if conds == nil {
		conds = []faults.ConditionInfo{}
	}
	writeJSON(w, http.StatusOK, conds)
}

// deviceClearConditions removes one condition with ?id=, or all of them.
func (s *Server) deviceClearConditions(w http.ResponseWriter, r *http.Request, port int) {
	d, ok := s.pool.Get(port)
	if !ok {
		httpError(w, http.StatusNotFound, "no device on port %d", port)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		removed, err := d.RemoveCondition(id)
		if err != nil {
			httpError(w, http.StatusConflict, "device %d: %v", port, err)
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "device %d has no condition %q", port, id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"removed": 1})
		return
	}
	n, err := d.ClearConditions()
	if err != nil {
		httpError(w, http.StatusConflict, "device %d: %v", port, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": n})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		httpError(w, http.StatusServiceUnavailable, "scenario store disabled")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.scenarios.List())
	case http.MethodPost:
		def, err := decodeDefinition(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err := s.scenarios.Save(def); err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, def)
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleScenario routes /api/scenarios/{name} and /api/scenarios/run.
func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		httpError(w, http.StatusServiceUnavailable, "scenario store disabled")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/scenarios/")
	if name == "run" {
		s.scenarioRun(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		def, ok := s.scenarios.Get(name)
		if !ok {
			httpError(w, http.StatusNotFound, "no scenario %q", name)
			return
		}
		writeJSON(w, http.StatusOK, def)
	case http.MethodDelete:
		if err := s.scenarios.Delete(name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				httpError(w, http.StatusNotFound, "no scenario %q", name)
				return
			}
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// scenarioRun executes a stored scenario by name, or an inline definition
// when the body carries a type.
func (s *Server) scenarioRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.runner == nil {
		httpError(w, http.StatusServiceUnavailable, "scenario runner disabled")
		return
	}
	def, err := decodeDefinition(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if def.Type == "" {
		stored, ok := s.scenarios.Get(def.Name)
		if !ok {
			httpError(w, http.StatusNotFound, "no scenario %q", def.Name)
			return
		}
		def = stored
	}
	desc, err := s.runner.Run(def)
	if err != nil {
		if errors.Is(err, scenario.ErrNoTargets) {
			httpError(w, http.StatusConflict, "%v", err)
			return
		}
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// decodeDefinition reads a scenario from the request body, accepting
// YAML when the content type says so and JSON otherwise.
func decodeDefinition(r *http.Request) (*scenario.Definition, error) {
	var def scenario.Definition
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parse scenario yaml: %w", err)
		}
		return &def, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		return nil, fmt.Errorf("parse scenario json: %w", err)
	}
	return &def, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	http.Error(w, fmt.Sprintf(format, args...), status)
}
