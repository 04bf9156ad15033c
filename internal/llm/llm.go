package llm

import "context"

// Message roles stored in conversation history
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// systemPrompt is prepended to every provider request.
const systemPrompt = "You are a helpful AI assistant. Respond conversationally to " +
	"what the user says. Keep responses concise but helpful."

// Message is one conversation history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is one incremental piece of a model's reply.
type Fragment struct {
	Text string
}

// Client streams a model's reply to one user message. The returned
// channel delivers fragments in emission order and always closes;
// provider failures arrive as a single terminal fragment of the form
// "<Provider> Error: <message>" rather than an error. History passed
// to Stream is the conversation before the new user text; bindings
// prepend the system instruction and truncate history to their window.
type Client interface {
	Stream(ctx context.Context, userText string, history []Message) <-chan Fragment
	Provider() string
	Model() string
	Close() error
}

// truncateHistory keeps the most recent window entries.
func truncateHistory(history []Message, window int) []Message {
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}
