// Package api provides the ambient HTTP/WebSocket status surface (§6's
// [ADD] "thin HTTP/WebSocket status surface") — liveness, per-component
// status/stats, alert CRUD, Prometheus metrics, and a WebSocket mirror of
// the event bus, built on a gorilla/mux router with a permissive dev CORS
// policy and a WebSocket hub, covering C1-C4 status and control.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/agent"
	"github.com/atlas-desktop/nova-trader/internal/alerts"
	"github.com/atlas-desktop/nova-trader/internal/engine"
	"github.com/atlas-desktop/nova-trader/internal/events"
	"github.com/atlas-desktop/nova-trader/internal/orchestrator"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Dependencies bundles the components the status surface reports on and
// controls. All fields are optional; a nil component's endpoints respond
// with 503 rather than panicking.
type Dependencies struct {
	Engine  *engine.Engine
	Agent   *agent.Agent
	Alerts  *alerts.Manager
	Chat    *orchestrator.Orchestrator
	Bus     *events.Bus
	JWTKey  string // empty disables mutation auth, matching a dev/paper deployment
}

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger *zap.Logger
	config types.ServerConfig
	router *mux.Router
	hub    *Hub
	deps   Dependencies

	httpServer *http.Server
}

// NewServer constructs the status server and wires its routes.
func NewServer(logger *zap.Logger, config types.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		logger: logger.Named("api"),
		config: config,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub, for wiring event-bus subscriptions after
// construction.
func (s *Server) Hub() *Hub { return s.hub }

// Handler exposes the underlying router for tests and for callers that want
// to front it with their own http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/engine/status", s.handleEngineStatus).Methods(http.MethodGet)
	api.HandleFunc("/engine/stats", s.handleEngineStats).Methods(http.MethodGet)

	api.HandleFunc("/agent/performance", s.handleAgentPerformance).Methods(http.MethodGet)
	api.HandleFunc("/agent/decisions", s.handleAgentDecisions).Methods(http.MethodGet)

	api.HandleFunc("/chat/stats", s.handleChatStats).Methods(http.MethodGet)

	api.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.withAuth(s.handleCreateAlert)).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}", s.withAuth(s.handleDeleteAlert)).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/stats", s.handleAlertStats).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// withAuth requires a valid JWT bearer token when JWTKey is configured;
// mutation endpoints are open in a keyless (e.g. paper/dev) deployment.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.JWTKey == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(header[len(prefix):], func(t *jwt.Token) (interface{}, error) {
			return []byte(s.deps.JWTKey), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, _ := cpu.Percent(0, false)
	vmem, _ := mem.VirtualMemory()

	var cpuUsage float64
	if len(cpuPct) > 0 {
		cpuUsage = cpuPct[0]
	}
	var memUsedPct float64
	if vmem != nil {
		memUsedPct = vmem.UsedPercent
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"time":        time.Now().UTC(),
		"cpuPercent":  cpuUsage,
		"memPercent":  memUsedPct,
	})
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		http.Error(w, "engine not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.GetStatus())
}

func (s *Server) handleEngineStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		http.Error(w, "engine not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.GetStats())
}

func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		http.Error(w, "agent not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Agent.GetPerformance())
}

func (s *Server) handleAgentDecisions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		http.Error(w, "agent not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Agent.GetDecisionHistory(100))
}

func (s *Server) handleChatStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		http.Error(w, "chat orchestrator not configured", http.StatusServiceUnavailable)
		return
	}
	stats, lastUsed := s.deps.Chat.Stats()
	writeJSON(w, http.StatusOK, map[string]any{"providers": stats, "lastUsed": lastUsed})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		http.Error(w, "alerts not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Alerts.GetAlerts())
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		http.Error(w, "alerts not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Alerts.GetAlertStats())
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		http.Error(w, "alerts not configured", http.StatusServiceUnavailable)
		return
	}
	var alert types.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := s.deps.Alerts.AddAlert(r.Context(), alert)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		http.Error(w, "alerts not configured", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.deps.Alerts.RemoveAlert(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(conn, s.hub)
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

// SubscribeEventBus mirrors every bus topic onto the WebSocket hub under a
// channel named after the topic (§6.7/§SPEC_FULL.md §6 [ADD]).
func (s *Server) SubscribeEventBus() {
	if s.deps.Bus == nil {
		return
	}
	topics := []events.Topic{
		events.TopicTokenDiscovered,
		events.TopicTradeExecuted,
		events.TopicPositionClosed,
		events.TopicDecisionLogged,
		events.TopicAlertTriggered,
		events.TopicError,
	}
	for _, topic := range topics {
		topic := topic
		s.deps.Bus.Subscribe(topic, func(ev events.Event) error {
			s.hub.PublishToChannel(string(topic), ev)
			return nil
		}, events.SubscribeOptions{Async: true})
	}
}

// Start serves HTTP on config.Host:config.Port behind a permissive dev CORS
// policy.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("starting api server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server and closes all WebSocket
// clients.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
