package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message types exchanged over the WebSocket connection
const (
	// Client to server
	TypeStartListening = "start_listening"
	TypeStopListening  = "stop_listening"
	TypeTextInput      = "text_input"
	TypeClearHistory   = "clear_history"
	TypeSetLanguage    = "set_language"
	TypeSetModel       = "set_model"

	// Server to client
	TypeTranscription    = "transcription"
	TypeStatus           = "status"
	TypeResponseChunk    = "response_chunk"
	TypeResponseComplete = "response_complete"
	TypeListeningStarted = "listening_started"
	TypeListeningStopped = "listening_stopped"
	TypeHistoryCleared   = "history_cleared"
	TypeLanguageChanged  = "language_changed"
	TypeAvailableModels  = "available_models"
	TypeModelChanged     = "model_changed"
	TypeError            = "error"
)

// ClientMessage represents a message received from a browser client.
// All client messages share one envelope; fields beyond Type are set
// only for the message types that carry them.
type ClientMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`  // text_input
	Language string `json:"language,omitempty"` // set_language
	Model    string `json:"model,omitempty"`    // set_model
}

// Transcription carries recognized speech text to the client.
type Transcription struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Status signals a processing state change, currently only "thinking".
type Status struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// ResponseChunk carries one streamed LLM fragment. FullContent is the
// reply accumulated so far, so clients can render append-only or
// replace the whole bubble on every chunk.
type ResponseChunk struct {
	Type        string  `json:"type"`
	Content     string  `json:"content"`
	FullContent string  `json:"full_content"`
	Timestamp   float64 `json:"timestamp"`
}

// ResponseComplete marks the end of a streamed reply and repeats the
// final text.
type ResponseComplete struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Notice is a simple acknowledgement with a human-readable message,
// used for listening_started, listening_stopped and history_cleared.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LanguageChanged confirms a recognition language switch.
type LanguageChanged struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AvailableModels pushes the server's model catalog to a client.
// Models maps display names to model identifiers.
type AvailableModels struct {
	Type         string            `json:"type"`
	Models       map[string]string `json:"models"`
	CurrentModel string            `json:"current_model"`
}

// ModelConfig describes the tuning profile applied with a model switch.
type ModelConfig struct {
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
	HistoryWindow int     `json:"history_window"`
}

// ModelChanged confirms a successful model switch.
type ModelChanged struct {
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	OldModel  string      `json:"old_model"`
	NewModel  string      `json:"new_model"`
	Config    ModelConfig `json:"config"`
	Timestamp float64     `json:"timestamp"`
}

// ErrorMessage reports a failure to the client.
type ErrorMessage struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Timestamp returns the current wall-clock time as Unix seconds with
// sub-second precision, matching the timestamps clients expect.
func Timestamp() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ParseClientMessage decodes and validates a raw client frame.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}

	if !IsValidClientType(msg.Type) {
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}

	switch msg.Type {
	case TypeSetLanguage:
		if strings.TrimSpace(msg.Language) == "" {
			return nil, fmt.Errorf("set_language message has no language")
		}
	case TypeSetModel:
		if strings.TrimSpace(msg.Model) == "" {
			return nil, fmt.Errorf("set_model message has no model")
		}
	}

	return &msg, nil
}

// IsValidClientType checks if the message type can be sent by a client.
func IsValidClientType(mtype string) bool {
	switch mtype {
	case TypeStartListening, TypeStopListening, TypeTextInput,
		TypeClearHistory, TypeSetLanguage, TypeSetModel:
		return true
	}
	return false
}

// NewTranscription builds a transcription message for recognized text.
func NewTranscription(text string) *Transcription {
	return &Transcription{
		Type:      TypeTranscription,
		Content:   text,
		Timestamp: Timestamp(),
	}
}

// NewThinkingStatus builds the status message sent before a reply
// starts streaming.
func NewThinkingStatus() *Status {
	return &Status{
		Type:    TypeStatus,
		Content: "thinking",
		Message: "AI is thinking...",
	}
}

// NewResponseChunk builds a streamed fragment message.
func NewResponseChunk(fragment, fullContent string) *ResponseChunk {
	return &ResponseChunk{
		Type:        TypeResponseChunk,
		Content:     fragment,
		FullContent: fullContent,
		Timestamp:   Timestamp(),
	}
}

// NewResponseComplete builds the completion message for a finished reply.
func NewResponseComplete(fullContent string) *ResponseComplete {
	return &ResponseComplete{
		Type:      TypeResponseComplete,
		Content:   fullContent,
		Timestamp: Timestamp(),
	}
}

// NewListeningStarted builds the acknowledgement for start_listening.
func NewListeningStarted() *Notice {
	return &Notice{
		Type:    TypeListeningStarted,
		Message: "Audio listening started",
	}
}

// NewListeningStopped builds the acknowledgement for stop_listening.
func NewListeningStopped() *Notice {
	return &Notice{
		Type:    TypeListeningStopped,
		Message: "Audio listening stopped",
	}
}

// NewHistoryCleared builds the acknowledgement for clear_history.
func NewHistoryCleared() *Notice {
	return &Notice{
		Type:    TypeHistoryCleared,
		Message: "Conversation history cleared",
	}
}

// NewLanguageChanged builds the confirmation for a language switch.
func NewLanguageChanged(displayName string) *LanguageChanged {
	return &LanguageChanged{
		Type:    TypeLanguageChanged,
		Content: displayName,
	}
}

// NewAvailableModels builds the catalog message pushed on connect.
func NewAvailableModels(models map[string]string, currentModel string) *AvailableModels {
	return &AvailableModels{
		Type:         TypeAvailableModels,
		Models:       models,
		CurrentModel: currentModel,
	}
}

// NewModelChanged builds the confirmation for a model switch.
func NewModelChanged(oldModel, newModel string, config ModelConfig) *ModelChanged {
	return &ModelChanged{
		Type:      TypeModelChanged,
		Status:    "success",
		OldModel:  oldModel,
		NewModel:  newModel,
		Config:    config,
		Timestamp: Timestamp(),
	}
}

// NewErrorMessage builds an error message with the given description.
func NewErrorMessage(content string) *ErrorMessage {
	return &ErrorMessage{
		Type:      TypeError,
		Content:   content,
		Timestamp: Timestamp(),
	}
}

// String returns a human-readable representation of a client message.
func (m *ClientMessage) String() string {
	switch m.Type {
	case TypeTextInput:
		return fmt.Sprintf("ClientMessage{Type:%s, Content:%q}", m.Type, m.Content)
	case TypeSetLanguage:
		return fmt.Sprintf("ClientMessage{Type:%s, Language:%s}", m.Type, m.Language)
	case TypeSetModel:
		return fmt.Sprintf("ClientMessage{Type:%s, Model:%s}", m.Type, m.Model)
	}
	return fmt.Sprintf("ClientMessage{Type:%s}", m.Type)
}
