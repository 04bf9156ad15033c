package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL          = "https://api.groq.com/openai/v1"
	defaultOllamaBaseURL = "http://localhost:11434/v1"
)

// providerTitles maps provider keys to the display form used in
// terminal error fragments.
var providerTitles = map[string]string{
	"openai": "OpenAI",
	"groq":   "Groq",
	"ollama": "Ollama",
}

// openAIClient streams chat completions through the OpenAI API or any
// OpenAI-compatible endpoint (Groq, Ollama) selected via base URL.
type openAIClient struct {
	client   *openai.Client
	provider string
	model    string
	profile  Profile
}

// newOpenAIClient builds a streaming binding. An empty baseURL targets
// the real OpenAI API.
func newOpenAIClient(provider, model, apiKey, baseURL string, profile Profile) *openAIClient {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &openAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		model:    model,
		profile:  profile,
	}
}

func (c *openAIClient) Provider() string {
	return c.provider
}

func (c *openAIClient) Model() string {
	return c.model
}

func (c *openAIClient) Close() error {
	return nil
}

// Stream sends the request and forwards native streaming deltas as
// fragments. Provider failures become one terminal error fragment; the
// channel always closes.
func (c *openAIClient) Stream(ctx context.Context, userText string, history []Message) <-chan Fragment {
	fragments := make(chan Fragment, 16)

	go func() {
		defer close(fragments)

		req := openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    c.buildMessages(userText, history),
			MaxTokens:   c.profile.MaxTokens,
			Temperature: float32(c.profile.Temperature),
			Stream:      true,
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			fragments <- c.errorFragment(err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				fragments <- c.errorFragment(err)
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case fragments <- Fragment{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return fragments
}

// buildMessages prepends the system instruction, the truncated history
// and the new user message.
func (c *openAIClient) buildMessages(userText string, history []Message) []openai.ChatCompletionMessage {
	truncated := truncateHistory(history, c.profile.HistoryWindow)

	messages := make([]openai.ChatCompletionMessage, 0, len(truncated)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, msg := range truncated {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})
}

func (c *openAIClient) errorFragment(err error) Fragment {
	title, ok := providerTitles[c.provider]
	if !ok {
		title = c.provider
	}
	return Fragment{Text: fmt.Sprintf("%s Error: %v", title, err)}
}
