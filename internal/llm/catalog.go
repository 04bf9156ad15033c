package llm

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the tuning applied to one catalog model: request limits
// plus the latency target the model is expected to meet for its first
// fragment.
type Profile struct {
	MaxTokens           int           `json:"max_tokens"`
	Temperature         float64       `json:"temperature"`
	HistoryWindow       int           `json:"history_window"`
	FirstFragmentTarget time.Duration `json:"-"`
}

// Config carries provider credentials and request defaults into the
// factory. Profile values override the defaults per model.
type Config struct {
	OpenAIAPIKey  string
	GroqAPIKey    string
	CohereAPIKey  string
	OllamaBaseURL string
	MaxTokens     int
	Temperature   float64
}

// catalogEntry binds a display name and identifier to a provider
// binding and its tuning profile.
type catalogEntry struct {
	DisplayName string
	ID          string // provider/model
	Profile     Profile
}

// catalog is the server-side allow-list. Only identifiers listed here
// can be selected by clients.
var catalog = []catalogEntry{
	{
		DisplayName: "GPT-4o Mini",
		ID:          "openai/gpt-4o-mini",
		Profile:     Profile{MaxTokens: 500, Temperature: 0.7, HistoryWindow: 10, FirstFragmentTarget: 1200 * time.Millisecond},
	},
	{
		DisplayName: "GPT-3.5 Turbo",
		ID:          "openai/gpt-3.5-turbo",
		Profile:     Profile{MaxTokens: 500, Temperature: 0.7, HistoryWindow: 10, FirstFragmentTarget: 1000 * time.Millisecond},
	},
	{
		DisplayName: "Llama 3.1 8B Instant (Groq)",
		ID:          "groq/llama-3.1-8b-instant",
		Profile:     Profile{MaxTokens: 500, Temperature: 0.7, HistoryWindow: 10, FirstFragmentTarget: 400 * time.Millisecond},
	},
	{
		DisplayName: "Llama 3.2 1B (Ollama)",
		ID:          "ollama/llama3.2:1b",
		Profile:     Profile{MaxTokens: 400, Temperature: 0.7, HistoryWindow: 8, FirstFragmentTarget: 800 * time.Millisecond},
	},
	{
		DisplayName: "Command Light (Cohere)",
		ID:          "cohere/command-light",
		Profile:     Profile{MaxTokens: 300, Temperature: 0.7, HistoryWindow: 4, FirstFragmentTarget: 1500 * time.Millisecond},
	},
}

// Catalog returns the display-name to identifier map pushed to clients
// on connect.
func Catalog() map[string]string {
	models := make(map[string]string, len(catalog))
	for _, entry := range catalog {
		models[entry.DisplayName] = entry.ID
	}
	return models
}

// Allowed reports whether the identifier is in the allow-list.
func Allowed(id string) bool {
	_, ok := lookup(id)
	return ok
}

// ProfileFor returns the tuning profile of an allow-listed identifier.
func ProfileFor(id string) (Profile, bool) {
	entry, ok := lookup(id)
	if !ok {
		return Profile{}, false
	}
	return entry.Profile, true
}

func lookup(id string) (catalogEntry, bool) {
	for _, entry := range catalog {
		if entry.ID == id {
			return entry, true
		}
	}
	return catalogEntry{}, false
}

// NewClient builds the provider binding for an allow-listed
// identifier. Identifiers outside the allow-list are rejected and
// missing credentials fail here, never at first use.
func NewClient(id string, config Config) (Client, Profile, error) {
	entry, ok := lookup(id)
	if !ok {
		return nil, Profile{}, fmt.Errorf("model %q is not in the allowed model list", id)
	}

	profile := entry.Profile
	if config.MaxTokens > 0 && config.MaxTokens < profile.MaxTokens {
		profile.MaxTokens = config.MaxTokens
	}
	if config.Temperature > 0 {
		profile.Temperature = config.Temperature
	}

	provider, model, _ := strings.Cut(id, "/")

	switch provider {
	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, Profile{}, fmt.Errorf("OPENAI_API_KEY is required for model %q", id)
		}
		return newOpenAIClient(provider, model, config.OpenAIAPIKey, "", profile), profile, nil

	case "groq":
		if config.GroqAPIKey == "" {
			return nil, Profile{}, fmt.Errorf("GROQ_API_KEY is required for model %q", id)
		}
		return newOpenAIClient(provider, model, config.GroqAPIKey, groqBaseURL, profile), profile, nil

	case "ollama":
		baseURL := config.OllamaBaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		// Local runtime, no credential required
		return newOpenAIClient(provider, model, "ollama", baseURL, profile), profile, nil

	case "cohere":
		if config.CohereAPIKey == "" {
			return nil, Profile{}, fmt.Errorf("COHERE_API_KEY is required for model %q", id)
		}
		return newCohereClient(model, config.CohereAPIKey, profile), profile, nil

	default:
		return nil, Profile{}, fmt.Errorf("unknown provider %q in model %q", provider, id)
	}
}
