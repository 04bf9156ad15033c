package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eliasqueirogavieira/audio-assist/internal/llm"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum client message size allowed from peer
	maxMessageSize = 4096

	// Buffered outbound messages per session before drops
	sendQueueSize = 64

	// Buffered prompt jobs per session before drops
	promptQueueSize = 8
)

// Session aggregates the state of one connected client: its
// conversation history, selected model client, and transport handle.
// History and model state are mutated only under the session mutex;
// prompt handling is serialized by the prompt loop so overlapping
// requests cannot interleave their history appends.
type Session struct {
	ID        string
	conn      *websocket.Conn
	send      chan []byte
	prompts   chan string
	StartTime time.Time

	// Conversation state
	history []llm.Message

	// Model selection
	modelID    string
	client     llm.Client
	profile    llm.Profile
	lastSwitch time.Time

	// Statistics
	promptsHandled uint64
	promptsDropped uint64

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	mu     sync.Mutex
}

// newSession wires a fresh session around an accepted connection.
func newSession(id string, conn *websocket.Conn, modelID string, client llm.Client, profile llm.Profile) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:        id,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		prompts:   make(chan string, promptQueueSize),
		StartTime: time.Now(),
		modelID:   modelID,
		client:    client,
		profile:   profile,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Model returns the session's active model identifier.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

// HistoryLen returns the number of stored conversation entries.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// snapshotClient captures the active client, profile and a copy of the
// current history in one critical section. Prompt handling works from
// this snapshot so a concurrent model switch never disturbs an
// in-flight stream.
func (s *Session) snapshotClient() (llm.Client, llm.Profile, []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]llm.Message, len(s.history))
	copy(history, s.history)

	return s.client, s.profile, history
}

// appendHistory adds one entry to the conversation history.
func (s *Session) appendHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, llm.Message{Role: role, Content: content})
}

// clearHistory resets the conversation history.
func (s *Session) clearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// SessionInfo represents session information for monitoring APIs.
type SessionInfo struct {
	ID             string        `json:"id"`
	Model          string        `json:"model"`
	HistoryEntries int           `json:"history_entries"`
	Uptime         time.Duration `json:"uptime"`
	PromptsHandled uint64        `json:"prompts_handled"`
	PromptsDropped uint64        `json:"prompts_dropped"`
}

// Info returns a snapshot of the session for monitoring.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		ID:             s.ID,
		Model:          s.modelID,
		HistoryEntries: len(s.history),
		Uptime:         time.Since(s.StartTime),
		PromptsHandled: s.promptsHandled,
		PromptsDropped: s.promptsDropped,
	}
}
