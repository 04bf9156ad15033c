package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eliasqueirogavieira/audio-assist/internal/config"
	"github.com/eliasqueirogavieira/audio-assist/internal/llm"
	"github.com/eliasqueirogavieira/audio-assist/internal/metrics"
	"github.com/eliasqueirogavieira/audio-assist/internal/protocol"
)

// errAudioUnavailable is returned for listening commands when the
// service started without a working capture device.
var errAudioUnavailable = errors.New("Audio handler not available")

// ClientFactory builds a language-model client for a catalog
// identifier. The manager calls it for the default model on connect
// and again on every model switch.
type ClientFactory func(id string) (llm.Client, llm.Profile, error)

// AudioControl is the microphone pipeline surface the manager drives
// in response to client commands. A nil AudioControl means the service
// runs without capture and listening commands are rejected.
type AudioControl interface {
	StartListening() error
	StopListening() error
	Listening() bool
	Available() bool
	SetLanguage(code string)
}

// Config contains session manager configuration.
type Config struct {
	DefaultModel   string
	SwitchCooldown time.Duration
	Language       string
}

// Manager owns all connected WebSocket sessions. It dispatches client
// commands, fans recognized utterances out to every session, and
// mediates model switches through the client factory.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	factory ClientFactory
	models  map[string]string
	config  Config

	audio    AudioControl
	language string
}

// NewManager creates a session manager. The models map (display name
// to identifier) is pushed to every client on connect.
func NewManager(logger *slog.Logger, m *metrics.Metrics, factory ClientFactory, models map[string]string, config Config) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
		factory:  factory,
		models:   models,
		config:   config,
		language: config.Language,
	}
}

// SetAudio attaches the audio pipeline. Called once during startup
// wiring, before the first connection is accepted.
func (m *Manager) SetAudio(audio AudioControl) {
	m.audio = audio
}

// Register accepts an upgraded connection, builds the default model
// client for it and starts the session goroutines. The catalog and
// current model are pushed to the client immediately.
func (m *Manager) Register(conn *websocket.Conn) (*Session, error) {
	client, profile, err := m.factory(m.config.DefaultModel)
	if err != nil {
		conn.Close()
		return nil, err
	}

	session := newSession(uuid.NewString(), conn, m.config.DefaultModel, client, profile)

	m.mu.Lock()
	m.sessions[session.ID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordWSConnect()

	m.logger.Info("Client connected",
		slog.String("session_id", session.ID),
		slog.String("model", session.modelID),
		slog.Int("active_sessions", count),
	)

	go m.writePump(session)
	go m.readPump(session)
	go m.promptLoop(session)

	m.sendTo(session, protocol.NewAvailableModels(m.models, session.modelID))

	return session, nil
}

// Unregister removes a session and releases its resources. Safe to
// call more than once for the same ID.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return
	}

	m.closeSession(session)

	m.logger.Info("Client disconnected",
		slog.String("session_id", session.ID),
		slog.Duration("duration", time.Since(session.StartTime)),
		slog.Int("active_sessions", count),
	)
}

// closeSession tears down the session exactly once: cancels its
// context, closes the outbound queue so the write pump exits, and
// releases the model client and connection. The closed flag and the
// channel close share one critical section with sendRaw's enqueue, so
// no send can land on the channel after it is closed.
func (m *Manager) closeSession(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	client := s.client
	s.cancel()
	close(s.send)
	s.mu.Unlock()

	if err := client.Close(); err != nil {
		m.logger.Warn("Error closing model client",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}

	s.conn.Close()
	m.metrics.RecordWSDisconnect()
}

// ActiveCount returns the number of connected sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions returns a monitoring snapshot of all sessions.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, session.Info())
	}
	return infos
}

// Language returns the current recognition language code.
func (m *Manager) Language() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.language
}

// HandleTranscript fans one recognized utterance out to every
// connected session. Each session echoes the transcript and generates
// its own reply against its own history and model.
func (m *Manager) HandleTranscript(text string) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		m.enqueuePrompt(session, text)
	}
}

// Broadcast sends one message to every connected session.
func (m *Manager) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("Failed to encode broadcast message", slog.String("error", err.Error()))
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		m.sendRaw(session, data)
	}
}

// Stop closes all sessions. Called during shutdown after the HTTP
// server has stopped accepting connections.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		m.closeSession(session)
	}

	m.logger.Info("Session manager stopped", slog.Int("closed_sessions", len(sessions)))
}

// sendTo marshals and enqueues one message for a single session.
func (m *Manager) sendTo(s *Session, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("Failed to encode message",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	m.sendRaw(s, data)
}

// sendRaw enqueues an encoded frame without blocking. A session whose
// queue is full loses the frame; a slow client must never stall the
// prompt loop or the transcript fan-out.
func (m *Manager) sendRaw(s *Session, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.send <- data:
		m.metrics.RecordWSMessage("out")
	default:
		m.metrics.RecordWSDrop()
		m.logger.Warn("Dropping message for slow client", slog.String("session_id", s.ID))
	}
}

// enqueuePrompt hands a prompt to the session's serialized prompt
// loop, dropping it if the session is already backed up.
func (m *Manager) enqueuePrompt(s *Session, text string) {
	select {
	case s.prompts <- text:
	default:
		s.mu.Lock()
		s.promptsDropped++
		s.mu.Unlock()
		m.logger.Warn("Dropping prompt for backed-up session",
			slog.String("session_id", s.ID),
			slog.String("text", text),
		)
	}
}

// readPump reads client frames until the connection drops, then
// unregisters the session.
func (m *Manager) readPump(s *Session) {
	defer m.Unregister(s.ID)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("Unexpected connection close",
					slog.String("session_id", s.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		m.metrics.RecordWSMessage("in")
		m.handleMessage(s, data)
	}
}

// writePump is the sole writer on the connection. It drains the send
// queue and keeps the connection alive with periodic pings.
func (m *Manager) writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// promptLoop serializes prompt handling for one session. Prompts run
// strictly one at a time, so the user/assistant history pairs can
// never interleave no matter how transcripts and text inputs race.
func (m *Manager) promptLoop(s *Session) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.prompts:
			m.handlePrompt(s, text)
		}
	}
}

// handlePrompt runs the full reply pipeline for one prompt: echo the
// transcript, stream the model reply as chunks, then record the
// exchange in the history. The model client is captured once at the
// start, so a switch arriving mid-stream only affects later prompts.
func (m *Manager) handlePrompt(s *Session, text string) {
	m.sendTo(s, protocol.NewTranscription(text))

	client, _, history := s.snapshotClient()
	s.appendHistory(llm.RoleUser, text)

	m.sendTo(s, protocol.NewThinkingStatus())

	start := time.Now()
	var full strings.Builder

	for fragment := range client.Stream(s.ctx, text, history) {
		full.WriteString(fragment.Text)
		m.sendTo(s, protocol.NewResponseChunk(fragment.Text, full.String()))
		m.metrics.RecordLLMFragment(client.Provider())
	}

	reply := full.String()
	s.appendHistory(llm.RoleAssistant, reply)
	m.sendTo(s, protocol.NewResponseComplete(reply))

	s.mu.Lock()
	s.promptsHandled++
	s.mu.Unlock()

	m.metrics.RecordLLMRequest(client.Provider(), time.Since(start).Seconds())

	m.logger.Info("Prompt handled",
		slog.String("session_id", s.ID),
		slog.String("provider", client.Provider()),
		slog.String("model", client.Model()),
		slog.Int("reply_length", len(reply)),
		slog.Duration("duration", time.Since(start)),
	)
}

// handleMessage dispatches one decoded client command.
func (m *Manager) handleMessage(s *Session, data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		m.logger.Warn("Invalid client message",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		m.sendTo(s, protocol.NewErrorMessage("Invalid message: "+err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeStartListening:
		m.handleStartListening(s)

	case protocol.TypeStopListening:
		m.handleStopListening(s)

	case protocol.TypeTextInput:
		if strings.TrimSpace(msg.Content) == "" {
			return
		}
		m.enqueuePrompt(s, msg.Content)

	case protocol.TypeClearHistory:
		s.clearHistory()
		m.sendTo(s, protocol.NewHistoryCleared())
		m.logger.Info("History cleared", slog.String("session_id", s.ID))

	case protocol.TypeSetLanguage:
		m.handleSetLanguage(s, msg.Language)

	case protocol.TypeSetModel:
		m.handleSetModel(s, msg.Model)
	}
}

// StartListening starts audio capture on behalf of a client or the
// control API and notifies every session.
func (m *Manager) StartListening() error {
	if m.audio == nil || !m.audio.Available() {
		return errAudioUnavailable
	}
	if err := m.audio.StartListening(); err != nil {
		return err
	}
	m.Broadcast(protocol.NewListeningStarted())
	return nil
}

// StopListening stops audio capture and notifies every session.
func (m *Manager) StopListening() error {
	if m.audio == nil || !m.audio.Available() {
		return errAudioUnavailable
	}
	if err := m.audio.StopListening(); err != nil {
		return err
	}
	m.Broadcast(protocol.NewListeningStopped())
	return nil
}

// Listening reports whether the audio pipeline is currently capturing.
func (m *Manager) Listening() bool {
	return m.audio != nil && m.audio.Listening()
}

func (m *Manager) handleStartListening(s *Session) {
	if err := m.StartListening(); err != nil {
		m.sendTo(s, protocol.NewErrorMessage("Failed to start listening: "+err.Error()))
	}
}

func (m *Manager) handleStopListening(s *Session) {
	if err := m.StopListening(); err != nil {
		m.sendTo(s, protocol.NewErrorMessage("Failed to stop listening: "+err.Error()))
	}
}

// handleSetLanguage validates the requested recognition language and
// applies it to the audio pipeline. Language is a global capture
// setting, so the confirmation is broadcast to every session.
func (m *Manager) handleSetLanguage(s *Session, code string) {
	displayName, ok := config.SupportedLanguages[code]
	if !ok {
		m.sendTo(s, protocol.NewErrorMessage("Unsupported language: "+code))
		return
	}

	m.mu.Lock()
	m.language = code
	m.mu.Unlock()

	if m.audio != nil {
		m.audio.SetLanguage(code)
	}

	m.Broadcast(protocol.NewLanguageChanged(displayName))

	m.logger.Info("Recognition language changed",
		slog.String("session_id", s.ID),
		slog.String("language", code),
	)
}

// handleSetModel switches the session's model. The identifier must be
// on the allow-list, the per-session cooldown must have elapsed, and
// the new client must construct successfully before anything changes;
// a failure at any step leaves the current model untouched. Validation
// runs before the cooldown so a bogus identifier is always reported as
// such.
func (m *Manager) handleSetModel(s *Session, id string) {
	s.mu.Lock()
	current := s.modelID
	elapsed := time.Since(s.lastSwitch)
	s.mu.Unlock()

	if id == current {
		m.sendTo(s, protocol.NewErrorMessage("Model '"+id+"' is already active"))
		return
	}

	if !m.allowedModel(id) {
		m.metrics.RecordModelSwitch("failed")
		m.sendTo(s, protocol.NewErrorMessage("Model '"+id+"' is not in the allowed model list"))
		return
	}

	if elapsed < m.config.SwitchCooldown {
		remaining := m.config.SwitchCooldown - elapsed
		m.metrics.RecordModelSwitch("rate_limited")
		m.sendTo(s, protocol.NewErrorMessage(
			"Model switching too fast, retry in "+remaining.Round(time.Second).String()))
		return
	}

	client, profile, err := m.factory(id)
	if err != nil {
		m.metrics.RecordModelSwitch("failed")
		m.logger.Warn("Model switch failed",
			slog.String("session_id", s.ID),
			slog.String("model", id),
			slog.String("error", err.Error()),
		)
		m.sendTo(s, protocol.NewErrorMessage("Failed to switch model: "+err.Error()))
		return
	}

	s.mu.Lock()
	old := s.client
	oldID := s.modelID
	s.client = client
	s.profile = profile
	s.modelID = id
	s.lastSwitch = time.Now()
	s.mu.Unlock()

	// In-flight streams hold their own handle; closing here only
	// stops new requests on the old client.
	if err := old.Close(); err != nil {
		m.logger.Warn("Error closing replaced model client",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}

	m.metrics.RecordModelSwitch("success")

	m.sendTo(s, protocol.NewModelChanged(oldID, id, protocol.ModelConfig{
		MaxTokens:     profile.MaxTokens,
		Temperature:   profile.Temperature,
		HistoryWindow: profile.HistoryWindow,
	}))

	m.logger.Info("Model switched",
		slog.String("session_id", s.ID),
		slog.String("old_model", oldID),
		slog.String("new_model", id),
	)
}

// allowedModel reports whether the identifier is in the catalog pushed
// to clients on connect.
func (m *Manager) allowedModel(id string) bool {
	for _, candidate := range m.models {
		if candidate == id {
			return true
		}
	}
	return false
}
