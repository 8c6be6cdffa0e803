// Package server exposes the agent over HTTP (health checks, metrics and the remote
// control API) and over gRPC (the standard health service).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/flightpeer/internal/flightagent/confirm"
	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
	"github.com/autopeer-io/flightpeer/internal/flightagent/safety"
	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
	"github.com/autopeer-io/flightpeer/internal/pkg/metrics"
	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

// Controller is what the control API drives. The engine satisfies it.
type Controller interface {
	Execute(ctx context.Context, utterance string) (*session.Report, error)
	Stop() bool
	Busy() bool
	Policy() safety.Config
}

// LinkCheck reports the latest vehicle telemetry for readiness.
type LinkCheck func(ctx context.Context) (core.Telemetry, error)

type Server struct {
	server  *http.Server
	options *options.HttpOptions

	ctrl   Controller
	broker *confirm.Broker
	link   LinkCheck

	// ctx is the agent's lifetime; sessions started over HTTP run on it.
	ctx context.Context
}

func NewServer(opts *options.HttpOptions, ctrl Controller, broker *confirm.Broker, link LinkCheck) *Server {
	s := &Server{
		options: opts,
		ctrl:    ctrl,
		broker:  broker,
		link:    link,
		ctx:     context.Background(),
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Liveness
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/intents", s.intent).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.stop).Methods(http.MethodPost)
	api.HandleFunc("/confirmations", s.pending).Methods(http.MethodGet)
	api.HandleFunc("/confirmations/{id}/{decision:confirm|decline}", s.decide).Methods(http.MethodPost)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	t, err := s.link(r.Context())
	if err != nil || !t.Connected {
		http.Error(w, "vehicle not connected", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Busy    bool                  `json:"busy"`
	Policy  safety.Config         `json:"policy"`
	Pending []core.ConfirmRequest `json:"pendingConfirmations"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Busy:    s.ctrl.Busy(),
		Policy:  s.ctrl.Policy(),
		Pending: s.broker.Pending(),
	})
}

type intentRequest struct {
	Utterance string `json:"utterance"`
}

func (s *Server) intent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}
	if s.ctrl.Busy() {
		writeError(w, http.StatusConflict, "a session is already running")
		return
	}

	go func() {
		if _, err := s.ctrl.Execute(s.ctx, utterance); err != nil {
			log.Warn("Utterance from HTTP not accepted", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"utterance": utterance})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": s.ctrl.Stop()})
}

func (s *Server) pending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.Pending())
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	approved := vars["decision"] == "confirm"
	if err := s.broker.Resolve(vars["id"], approved); err != nil {
		if errors.Is(err, confirm.ErrUnknownRequest) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": vars["id"], "approved": approved})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
