package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliasqueirogavieira/audio-assist/internal/config"
	"github.com/eliasqueirogavieira/audio-assist/internal/listener"
	"github.com/eliasqueirogavieira/audio-assist/internal/metrics"
	"github.com/eliasqueirogavieira/audio-assist/internal/session"
)

// HTTPServer exposes the WebSocket endpoint plus monitoring and
// control APIs.
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	sessions *session.Manager
	audio    *listener.Listener
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates the HTTP server and wires its routes.
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger,
	appConfig *config.Config, sessions *session.Manager, audio *listener.Listener, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sessions:  sessions,
		audio:     audio,
		metrics:   m,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from file:// and localhost origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// WebSocket endpoint is not wrapped: the upgrade hijacks the
	// connection, which the metrics response writer cannot forward.
	mux.HandleFunc("/ws", h.handleWebSocket)

	// Audio control endpoints
	mux.HandleFunc("/start-audio", h.withMetrics("/start-audio", h.handleStartAudio))
	mux.HandleFunc("/stop-audio", h.withMetrics("/stop-audio", h.handleStopAudio))

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleWebSocket upgrades the connection and hands it to the session
// manager.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := h.sessions.Register(conn); err != nil {
		h.logger.Error("Failed to register session",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

// handleStartAudio implements the /start-audio endpoint. Browser
// clients trigger it with a plain GET.
func (h *HTTPServer) handleStartAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := h.sessions.StartListening(); err != nil {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "started", "message": "Audio listening started"})
}

// handleStopAudio implements the /stop-audio endpoint
func (h *HTTPServer) handleStopAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := h.sessions.StopListening(); err != nil {
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "stopped", "message": "Audio listening stopped"})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	audioStats := h.audio.Stats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "audio-assist",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"sessions": map[string]interface{}{
				"status":       "running",
				"active_count": h.sessions.ActiveCount(),
			},
			"audio": map[string]interface{}{
				"available": audioStats.Available,
				"listening": audioStats.Listening,
			},
			"transcription": map[string]interface{}{
				"total_requests": audioStats.Transcription.TotalRequests,
				"total_retries":  audioStats.Transcription.TotalRetries,
				"success_rate":   audioStats.Transcription.SuccessRate,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	audioStats := h.audio.Stats()
	provider := strings.SplitN(h.config.LLM.DefaultModel, "/", 2)[0]

	status := map[string]interface{}{
		"status":             "running",
		"llm_provider":       provider,
		"active_connections": h.sessions.ActiveCount(),
		"audio_available":    audioStats.Available,
		"audio_listening":    audioStats.Listening,
		"language":           audioStats.Language,
		"uptime":             time.Since(h.startTime).String(),
		"timestamp":          time.Now().UTC(),
		"sessions":           h.sessions.Sessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized configuration; credentials never appear here because
	// they are not part of the YAML config to begin with.
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":    h.config.Server.Port,
			"address": h.config.Server.Address,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
			"frame_size":  h.config.Audio.FrameSize,
		},
		"segmenter": map[string]interface{}{
			"silence_threshold":    h.config.Segmenter.SilenceThreshold,
			"silence_duration":     h.config.Segmenter.SilenceDuration,
			"min_utterance_frames": h.config.Segmenter.MinUtteranceFrames,
			"max_buffer_frames":    h.config.Segmenter.MaxBufferFrames,
		},
		"transcription": map[string]interface{}{
			"provider":         h.config.Transcription.Provider,
			"default_language": h.config.Transcription.DefaultLanguage,
			"timeout":          h.config.Transcription.Timeout,
			"max_retries":      h.config.Transcription.MaxRetries,
			"max_concurrent":   h.config.Transcription.MaxConcurrent,
		},
		"llm": map[string]interface{}{
			"default_model":   h.config.LLM.DefaultModel,
			"max_tokens":      h.config.LLM.MaxTokens,
			"temperature":     h.config.LLM.Temperature,
			"switch_cooldown": h.config.LLM.SwitchCooldown,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voice Assistant Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":            "API documentation",
			"GET /ws":          "WebSocket chat endpoint",
			"GET /start-audio": "Start microphone listening",
			"GET /stop-audio":  "Stop microphone listening",
			"GET /health":      "Service health check",
			"GET /status":      "Service status and sessions",
			"GET /config":      "Get service configuration",
			"GET /metrics":     "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
