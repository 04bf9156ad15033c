package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const cohereBaseURL = "https://api.cohere.com/v1"

// cohereWordDelay paces the simulated stream so the client renders the
// reply progressively even though Cohere answered in one shot.
const cohereWordDelay = 25 * time.Millisecond

// cohereClient binds the Cohere chat API. The API has no
// OpenAI-compatible endpoint and is consumed non-streaming; the full
// reply is split into word fragments to preserve the streaming
// contract for downstream consumers.
type cohereClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	profile    Profile
	wordDelay  time.Duration
}

type cohereChatRequest struct {
	Model       string              `json:"model"`
	Message     string              `json:"message"`
	ChatHistory []cohereChatMessage `json:"chat_history,omitempty"`
	Preamble    string              `json:"preamble"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type cohereChatMessage struct {
	Role    string `json:"role"` // USER or CHATBOT
	Message string `json:"message"`
}

type cohereChatResponse struct {
	Text string `json:"text"`
}

func newCohereClient(model, apiKey string, profile Profile) *cohereClient {
	return &cohereClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		baseURL:    cohereBaseURL,
		model:      model,
		profile:    profile,
		wordDelay:  cohereWordDelay,
	}
}

func (c *cohereClient) Provider() string {
	return "cohere"
}

func (c *cohereClient) Model() string {
	return c.model
}

func (c *cohereClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Stream fetches the full reply and emits it as word-sized fragments
// at a fixed small delay.
func (c *cohereClient) Stream(ctx context.Context, userText string, history []Message) <-chan Fragment {
	fragments := make(chan Fragment, 16)

	go func() {
		defer close(fragments)

		text, err := c.chat(ctx, userText, history)
		if err != nil {
			fragments <- Fragment{Text: fmt.Sprintf("Cohere Error: %v", err)}
			return
		}

		words := strings.Fields(text)
		for i, word := range words {
			if i < len(words)-1 {
				word += " "
			}

			select {
			case fragments <- Fragment{Text: word}:
			case <-ctx.Done():
				return
			}

			if c.wordDelay > 0 && i < len(words)-1 {
				select {
				case <-time.After(c.wordDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return fragments
}

// chat performs the single non-streaming chat request.
func (c *cohereClient) chat(ctx context.Context, userText string, history []Message) (string, error) {
	reqBody := cohereChatRequest{
		Model:       c.model,
		Message:     userText,
		ChatHistory: c.buildHistory(history),
		Preamble:    systemPrompt,
		MaxTokens:   c.profile.MaxTokens,
		Temperature: c.profile.Temperature,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var chatResp cohereChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return chatResp.Text, nil
}

// buildHistory converts stored history into Cohere's role vocabulary.
func (c *cohereClient) buildHistory(history []Message) []cohereChatMessage {
	truncated := truncateHistory(history, c.profile.HistoryWindow)

	converted := make([]cohereChatMessage, 0, len(truncated))
	for _, msg := range truncated {
		role := "USER"
		if msg.Role == RoleAssistant {
			role = "CHATBOT"
		}
		converted = append(converted, cohereChatMessage{Role: role, Message: msg.Content})
	}

	return converted
}
