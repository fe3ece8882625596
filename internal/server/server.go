// Package server exposes the connection state store over HTTP: a JSON API
// for reads and actions, a WebSocket feed of state snapshots, and the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/journal"
	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

const maxBodyBytes = 64 << 10

// Store is the part of the connection state store the server uses.
type Store interface {
	Snapshot() monitor.Snapshot
	Subscribe() (<-chan struct{}, func())
	ClientLog(clientID string) ([]monitor.LogEntry, error)
	CameraImage(clientID string) (img []byte, live bool, ok bool)
	Broadcast(msg string) bool
	SendTo(clientID, msg string) bool
	QueryAlive() bool
	Reconnect()
	Disconnect()
}

// Options configures optional server features.
type Options struct {
	Hub     *Hub
	Metrics http.Handler    // served at /metrics when set
	Archive journal.Archive // backs the history routes when set
	Logger  zerolog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	store      Store
	clock      clock.Clock
	router     *mux.Router
	hub        *Hub
	metrics    http.Handler
	archive    journal.Archive
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a dashboard server for store.
func New(addr string, store Store, clk clock.Clock, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:   store,
		clock:   clk,
		router:  mux.NewRouter(),
		hub:     opts.Hub,
		metrics: opts.Metrics,
		archive: opts.Archive,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	if s.hub == nil {
		s.hub = NewHub(s.log)
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(LoggingMiddleware(s.log))

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}/logs", s.handleClientLogs).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}/history", s.handleClientHistory).Methods(http.MethodGet)
	api.HandleFunc("/archive/clients", s.handleArchiveClients).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}/send", s.handleSendTo).Methods(http.MethodPost)
	api.HandleFunc("/camera/{id}", s.handleCamera).Methods(http.MethodGet)
	api.HandleFunc("/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	api.HandleFunc("/who-is-alive", s.handleWhoIsAlive).Methods(http.MethodPost)
	api.HandleFunc("/reconnect", s.handleReconnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
}

// handleRoot serves a welcome message.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "robomon",
		"status":  "running",
		"time":    s.clock.Now().Format(time.RFC3339),
		"state":   snap.State,
		"clients": len(snap.Connected),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// handleLogs serves the unified log.
// Query: client=a,b (repeatable) and direction=all|received|sent.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, err := monitor.ParseDirection(q.Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := journal.Filter{Direction: dir}
	for _, v := range q["client"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.Clients = append(f.Clients, id)
			}
		}
	}

	writeJSON(w, http.StatusOK, journal.Merge(s.store.Snapshot().AllLogs(), &f))
}

func (s *Server) handleClientLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log, err := s.store.ClientLog(id)
	if errors.Is(err, monitor.ErrUnknownClient) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// handleClientHistory serves a client's archived log in arrival order. The
// archive outlives reconnects. Query: direction=all|received|sent.
func (s *Server) handleClientHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "no journal archive configured")
		return
	}
	dir, err := monitor.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hist, err := s.archive.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.log.Warn().Err(err).Msg("archive read failed")
		writeError(w, http.StatusBadGateway, "archive unavailable")
		return
	}
	out := make([]monitor.LogEntry, 0, len(hist))
	for _, e := range hist {
		if dir.Match(e) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArchiveClients(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "no journal archive configured")
		return
	}
	ids, err := s.archive.Clients(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("archive read failed")
		writeError(w, http.StatusBadGateway, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleCamera serves the latest JPEG frame, or the placeholder when the
// client has no live stream. X-Camera-Live tells the two apart.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	img, live, _ := s.store.CameraImage(mux.Vars(r)["id"])
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Camera-Live", strconv.FormatBool(live))
	w.Write(img)
}

type messageRequest struct {
	Msg string `json:"msg"`
}

type actionResponse struct {
	Sent  bool          `json:"sent"`
	State monitor.State `json:"state"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	msg, ok := decodeMessage(w, r)
	if !ok {
		return
	}
	s.respondAction(w, s.store.Broadcast(msg))
}

func (s *Server) handleSendTo(w http.ResponseWriter, r *http.Request) {
	msg, ok := decodeMessage(w, r)
	if !ok {
		return
	}
	s.respondAction(w, s.store.SendTo(mux.Vars(r)["id"], msg))
}

func (s *Server) handleWhoIsAlive(w http.ResponseWriter, r *http.Request) {
	s.respondAction(w, s.store.QueryAlive())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.store.Reconnect()
	s.respondAction(w, false)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.store.Disconnect()
	s.respondAction(w, false)
}

func (s *Server) respondAction(w http.ResponseWriter, sent bool) {
	writeJSON(w, http.StatusOK, actionResponse{Sent: sent, State: s.store.Snapshot().State})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r, func() any { return s.store.Snapshot() })
}

// decodeMessage reads a {"msg": ...} body. Blank messages are rejected.
func decodeMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req messageRequest
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if strings.TrimSpace(req.Msg) == "" {
		writeError(w, http.StatusBadRequest, "msg is required")
		return "", false
	}
	return req.Msg, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
	go s.hub.Run(s.ctx, s.store)

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the snapshot feed, drops WebSocket clients and gracefully
// shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}
