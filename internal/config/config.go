package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Logging       LoggingConfig       `yaml:"logging"`

	// Credentials are loaded from the environment (optionally via .env),
	// never from the YAML file.
	Credentials Credentials `yaml:"-"`
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// AudioConfig contains capture device parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"` // Hz
	Channels   int    `yaml:"channels"`
	BitDepth   int    `yaml:"bit_depth"`
	FrameSize  int    `yaml:"frame_size"`  // samples per frame
	DeviceName string `yaml:"device_name"` // empty selects the default capture device
}

// SegmenterConfig contains silence-gated segmentation parameters
type SegmenterConfig struct {
	SilenceThreshold   int     `yaml:"silence_threshold"`    // mean absolute amplitude
	SilenceDuration    float64 `yaml:"silence_duration"`     // seconds of trailing silence
	MinUtteranceFrames int     `yaml:"min_utterance_frames"` // floor before a flush is allowed
	MaxBufferFrames    int     `yaml:"max_buffer_frames"`    // hard cap before trimming
	TrimFrames         int     `yaml:"trim_frames"`          // frames retained after a trim
}

// TranscriptionConfig contains speech-to-text client configuration
type TranscriptionConfig struct {
	Provider        string `yaml:"provider"` // "google" or "whisper"
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"` // whisper provider only
	DefaultLanguage string `yaml:"default_language"`
	Timeout         int    `yaml:"timeout"` // seconds
	MaxRetries      int    `yaml:"max_retries"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
}

// LLMConfig contains language-model client configuration
type LLMConfig struct {
	DefaultModel   string  `yaml:"default_model"` // provider/model identifier
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	SwitchCooldown float64 `yaml:"switch_cooldown"` // seconds between model switches per session
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Credentials holds provider secrets and endpoints sourced from the environment
type Credentials struct {
	OpenAIAPIKey     string
	GroqAPIKey       string
	CohereAPIKey     string
	GoogleSpeechKey  string
	TranscriptionKey string
	OllamaBaseURL    string
}

// SupportedLanguages maps recognition language codes to display names
var SupportedLanguages = map[string]string{
	"en-US": "English (Global)",
	"pt-BR": "Portuguese (Brazil)",
}

// Load reads and parses the configuration file, overlaying credentials
// from the environment. A .env file in the working directory is applied
// first when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; environment variables may be set directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.Credentials = loadCredentials()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadCredentials reads provider secrets from the environment
func loadCredentials() Credentials {
	ollamaURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434/v1"
	}

	return Credentials{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		CohereAPIKey:     os.Getenv("COHERE_API_KEY"),
		GoogleSpeechKey:  os.Getenv("GOOGLE_SPEECH_API_KEY"),
		TranscriptionKey: os.Getenv("TRANSCRIPTION_API_KEY"),
		OllamaBaseURL:    ollamaURL,
	}
}

// TranscriptionAPIKey selects the speech credential for the configured
// provider: TRANSCRIPTION_API_KEY when set, otherwise the Google key
// for the google provider and the Groq key for the whisper provider's
// default Groq endpoint.
func (c *Config) TranscriptionAPIKey() string {
	if c.Credentials.TranscriptionKey != "" {
		return c.Credentials.TranscriptionKey
	}
	if c.Transcription.Provider == "whisper" {
		return c.Credentials.GroqAPIKey
	}
	return c.Credentials.GoogleSpeechKey
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FrameSize < 256 {
		return fmt.Errorf("frame_size must be at least 256 samples, got %d", a.FrameSize)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %d", s.SilenceThreshold)
	}

	if s.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", s.SilenceDuration)
	}

	if s.MinUtteranceFrames < 1 {
		return fmt.Errorf("min_utterance_frames must be at least 1, got %d", s.MinUtteranceFrames)
	}

	if s.MaxBufferFrames <= s.MinUtteranceFrames {
		return fmt.Errorf("max_buffer_frames (%d) must be greater than min_utterance_frames (%d)",
			s.MaxBufferFrames, s.MinUtteranceFrames)
	}

	if s.TrimFrames < 1 || s.TrimFrames >= s.MaxBufferFrames {
		return fmt.Errorf("trim_frames must be between 1 and max_buffer_frames (%d), got %d",
			s.MaxBufferFrames, s.TrimFrames)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validProviders := map[string]bool{"google": true, "whisper": true}
	if !validProviders[t.Provider] {
		return fmt.Errorf("provider must be 'google' or 'whisper', got '%s'", t.Provider)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Provider == "whisper" && t.Model == "" {
		return fmt.Errorf("model cannot be empty for the whisper provider")
	}

	if _, ok := SupportedLanguages[t.DefaultLanguage]; !ok {
		return fmt.Errorf("default_language '%s' is not supported", t.DefaultLanguage)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates LLM configuration
func (l *LLMConfig) Validate() error {
	if l.DefaultModel == "" {
		return fmt.Errorf("default_model cannot be empty")
	}

	if !strings.Contains(l.DefaultModel, "/") {
		return fmt.Errorf("default_model must have the form provider/model, got '%s'", l.DefaultModel)
	}

	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", l.Temperature)
	}

	if l.SwitchCooldown < 0 {
		return fmt.Errorf("switch_cooldown cannot be negative, got %f", l.SwitchCooldown)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSilenceDuration returns the trailing-silence duration as a time.Duration
func (s *SegmenterConfig) GetSilenceDuration() time.Duration {
	return time.Duration(s.SilenceDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetSwitchCooldownDuration returns the model-switch cooldown as a time.Duration
func (l *LLMConfig) GetSwitchCooldownDuration() time.Duration {
	return time.Duration(l.SwitchCooldown * float64(time.Second))
}
