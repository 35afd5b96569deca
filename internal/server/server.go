// Package server exposes the fraud scoring service over HTTP. It provides
// the scoring endpoint, history and statistics queries, a live alert stream
// over WebSocket, and a monitoring dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trustnet/internal/alerts"
	"trustnet/internal/metrics"
	"trustnet/internal/ml"
	"trustnet/internal/storage"
	"trustnet/internal/transaction"
)

// Server wires the predictor, storage, and notification channels behind
// the HTTP API.
type Server struct {
	predictor *ml.Predictor
	store     *storage.Store
	recorder  *storage.Recorder
	notifier  *alerts.Notifier
	metrics   *metrics.Metrics

	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientsMu  sync.RWMutex
	broadcast  chan storage.AlertRecord
	stop       chan struct{}
	isRunning  bool
	mu         sync.RWMutex
}

// New creates a server listening on the given port.
func New(port int, predictor *ml.Predictor, store *storage.Store, recorder *storage.Recorder, notifier *alerts.Notifier, m *metrics.Metrics) *Server {
	s := &Server{
		predictor: predictor,
		store:     store,
		recorder:  recorder,
		notifier:  notifier,
		metrics:   m,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan storage.AlertRecord, 100),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleDashboard).Methods("GET")
	r.HandleFunc("/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/transactions", s.handleTransactions).Methods("GET")
	r.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/dashboard-data", s.handleDashboardData).Methods("GET")
	r.HandleFunc("/model/info", s.handleModelInfo).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start launches the HTTP server and the alert broadcaster.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server is already running")
	}

	go s.clientBroadcaster()

	go func() {
		log.Info().Str("address", s.httpServer.Addr).Msg("starting scoring server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("scoring server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop drains WebSocket clients and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	close(s.stop)

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown scoring server")
		return err
	}
	s.isRunning = false
	log.Info().Msg("scoring server stopped")
	return nil
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type errorResponse struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var tx transaction.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		if s.metrics != nil {
			s.metrics.ValidationRejects.Inc()
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Reason: err.Error()})
		return
	}

	result, err := s.predictor.Predict(tx)
	if err != nil {
		var verr *transaction.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Field: verr.Field, Reason: verr.Reason})
			return
		}
		log.Error().Err(err).Msg("scoring failed")
		if s.metrics != nil {
			s.metrics.ErrorsTotal.Inc()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "scoring failed"})
		return
	}

	if s.recorder != nil {
		s.recorder.Record(tx, result)
	}
	if result.IsFraud {
		s.dispatchAlert(tx, result)
	}
	writeJSON(w, http.StatusOK, result)
}

// dispatchAlert fans a flagged transaction out to the notifier and the
// WebSocket stream without blocking the response.
func (s *Server) dispatchAlert(tx transaction.Transaction, result *ml.Result) {
	alert := storage.AlertRecord{
		TransactionID:    result.TransactionID,
		Timestamp:        result.Timestamp,
		Type:             tx.Type,
		Amount:           tx.Amount,
		NameOrig:         tx.NameOrig,
		NameDest:         tx.NameDest,
		FraudProbability: result.FraudProbability,
		Explanation:      result.Explanation,
	}
	select {
	case s.broadcast <- alert:
	default:
		// stream is lossy under load
	}
	if s.notifier != nil && s.notifier.Enabled() {
		go s.notifier.Notify(tx, result)
	}
}

// requireStore rejects history queries when the service runs without
// persistence (no DATA_PATH configured, or storage init failed at start).
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "persistence disabled"})
		return false
	}
	return true
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	records, err := s.store.RecentPredictions(queryLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	if records == nil {
		records = []storage.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	records, err := s.store.RecentAlerts(queryLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	if records == nil {
		records = []storage.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	stats, err := s.store.GetStats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type modelInfo struct {
	Degraded     bool      `json:"degraded"`
	Threshold    float64   `json:"threshold"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	TrainingRows int       `json:"training_rows,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	Features     int       `json:"features,omitempty"`
	ROCAUC       float64   `json:"roc_auc,omitempty"`
	PRAUC        float64   `json:"pr_auc,omitempty"`
}

func (s *Server) currentModelInfo() modelInfo {
	manifest := s.predictor.Manifest()
	return modelInfo{
		Degraded:     s.predictor.Degraded(),
		Threshold:    s.predictor.Threshold(),
		CreatedAt:    manifest.CreatedAt,
		TrainingRows: manifest.TrainingRows,
		Tier:         manifest.Tier,
		Features:     len(manifest.FeatureNames),
		ROCAUC:       manifest.Metrics.ROCAUC,
		PRAUC:        manifest.Metrics.PRAUC,
	}
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentModelInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"degraded": s.predictor.Degraded(),
	})
}

// handleDashboardData feeds the dashboard. Without persistence it still
// serves the model section, with zeroed history.
func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	var stats storage.Stats
	recent := []storage.AlertRecord{}
	if s.store != nil {
		var err error
		stats, err = s.store.GetStats()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
			return
		}
		alerts, err := s.store.RecentAlerts(20)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
			return
		}
		if alerts != nil {
			recent = alerts
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  stats,
		"alerts": recent,
		"model":  s.currentModelInfo(),
	})
}

// handleWebSocket streams fraud alerts to the client as they happen.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.WSClientsAdd(1)
	}

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.WSClientsAdd(-1)
	}
}

func (s *Server) clientBroadcaster() {
	for {
		select {
		case alert := <-s.broadcast:
			s.broadcastToClients(alert)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastToClients(alert storage.AlertRecord) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	data, err := json.Marshal(alert)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal alert for broadcast")
		return
	}
	for client := range s.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(s.clients, client)
		}
	}
}

func queryLimit(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
