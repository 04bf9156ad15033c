package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testProfile() Profile {
	return Profile{MaxTokens: 100, Temperature: 0.7, HistoryWindow: 4}
}

// sseChunk formats one chat completion delta in the event-stream
// framing the streaming API uses.
func sseChunk(content string) string {
	chunk := map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", data)
}

func collectFragments(t *testing.T, fragments <-chan Fragment) []string {
	t.Helper()

	var collected []string
	timeout := time.After(5 * time.Second)

	for {
		select {
		case fragment, ok := <-fragments:
			if !ok {
				return collected
			}
			collected = append(collected, fragment.Text)
		case <-timeout:
			t.Fatal("Timed out waiting for stream to close")
		}
	}
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		messages, ok := req["messages"].([]interface{})
		if !ok || len(messages) != 4 {
			t.Errorf("Expected 4 messages (system + 2 history + user), got %d", len(messages))
		}

		first := messages[0].(map[string]interface{})
		if first["role"] != "system" {
			t.Errorf("Expected system message first, got role %v", first["role"])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, sseChunk(" there"))
		fmt.Fprint(w, sseChunk("!"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newOpenAIClient("openai", "gpt-4o-mini", "sk-test", server.URL, testProfile())

	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}

	fragments := collectFragments(t, client.Stream(context.Background(), "how are you", history))

	if got := strings.Join(fragments, ""); got != "Hello there!" {
		t.Errorf("Concatenated fragments = %q, want %q", got, "Hello there!")
	}
}

func TestOpenAIStreamTruncatesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		// system + window(4) + user
		if messages := req["messages"].([]interface{}); len(messages) != 6 {
			t.Errorf("Expected 6 messages after truncation, got %d", len(messages))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("ok"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newOpenAIClient("groq", "llama-3.1-8b-instant", "gsk-test", server.URL, testProfile())

	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history, Message{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
	}

	collectFragments(t, client.Stream(context.Background(), "latest", history))
}

func TestOpenAIStreamErrorBecomesTerminalFragment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newOpenAIClient("openai", "gpt-4o-mini", "sk-test", server.URL, testProfile())

	fragments := collectFragments(t, client.Stream(context.Background(), "hello", nil))

	if len(fragments) != 1 {
		t.Fatalf("Expected exactly one terminal fragment, got %d", len(fragments))
	}

	if !strings.HasPrefix(fragments[0], "OpenAI Error: ") {
		t.Errorf("Expected terminal fragment with provider prefix, got %q", fragments[0])
	}
}
