package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:    8000,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
			FrameSize:  4096,
		},
		Segmenter: SegmenterConfig{
			SilenceThreshold:   200,
			SilenceDuration:    1.5,
			MinUtteranceFrames: 3,
			MaxBufferFrames:    100,
			TrimFrames:         50,
		},
		Transcription: TranscriptionConfig{
			Provider:        "google",
			Endpoint:        "http://www.google.com/speech-api/v2/recognize",
			DefaultLanguage: "en-US",
			Timeout:         30,
			MaxRetries:      3,
			MaxConcurrent:   2,
		},
		LLM: LLMConfig{
			DefaultModel:   "groq/llama-3.1-8b-instant",
			MaxTokens:      500,
			Temperature:    0.7,
			SwitchCooldown: 3.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "stereo audio rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "frame size too small",
			mutate:      func(c *Config) { c.Audio.FrameSize = 64 },
			expectError: true,
			errorMsg:    "frame_size must be at least 256",
		},
		{
			name:        "zero silence threshold",
			mutate:      func(c *Config) { c.Segmenter.SilenceThreshold = 0 },
			expectError: true,
			errorMsg:    "silence_threshold must be positive",
		},
		{
			name:        "trim larger than cap",
			mutate:      func(c *Config) { c.Segmenter.TrimFrames = 200 },
			expectError: true,
			errorMsg:    "trim_frames must be between",
		},
		{
			name:        "unknown transcription provider",
			mutate:      func(c *Config) { c.Transcription.Provider = "azure" },
			expectError: true,
			errorMsg:    "provider must be 'google' or 'whisper'",
		},
		{
			name: "whisper without model",
			mutate: func(c *Config) {
				c.Transcription.Provider = "whisper"
				c.Transcription.Model = ""
			},
			expectError: true,
			errorMsg:    "model cannot be empty",
		},
		{
			name:        "unsupported default language",
			mutate:      func(c *Config) { c.Transcription.DefaultLanguage = "fr-FR" },
			expectError: true,
			errorMsg:    "not supported",
		},
		{
			name:        "default model without provider prefix",
			mutate:      func(c *Config) { c.LLM.DefaultModel = "gpt-4o-mini" },
			expectError: true,
			errorMsg:    "must have the form provider/model",
		},
		{
			name:        "temperature out of range",
			mutate:      func(c *Config) { c.LLM.Temperature = 2.5 },
			expectError: true,
			errorMsg:    "temperature must be between 0 and 2",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  port: 8000
  address: "0.0.0.0"
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  frame_size: 4096
segmenter:
  silence_threshold: 200
  silence_duration: 1.5
  min_utterance_frames: 3
  max_buffer_frames: 100
  trim_frames: 50
transcription:
  provider: "google"
  endpoint: "http://www.google.com/speech-api/v2/recognize"
  default_language: "en-US"
  timeout: 30
  max_retries: 3
  max_concurrent: 2
llm:
  default_model: "groq/llama-3.1-8b-instant"
  max_tokens: 500
  temperature: 0.7
  switch_cooldown: 3.0
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: 8000
  address: "0.0.0.0"
audio:
  sample_rate: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  port: 8000
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.local:11434/v1")

	creds := loadCredentials()

	if creds.GroqAPIKey != "gsk-test" {
		t.Errorf("Expected groq key from environment, got '%s'", creds.GroqAPIKey)
	}

	if creds.OllamaBaseURL != "http://ollama.local:11434/v1" {
		t.Errorf("Expected ollama base URL override, got '%s'", creds.OllamaBaseURL)
	}
}

func TestCredentialsOllamaDefault(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	creds := loadCredentials()
	if creds.OllamaBaseURL != "http://localhost:11434/v1" {
		t.Errorf("Expected default ollama base URL, got '%s'", creds.OllamaBaseURL)
	}
}

func TestTranscriptionAPIKeySelection(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		creds    Credentials
		want     string
	}{
		{
			name:     "google provider uses google key",
			provider: "google",
			creds:    Credentials{GoogleSpeechKey: "goog-key", GroqAPIKey: "gsk-key"},
			want:     "goog-key",
		},
		{
			name:     "whisper provider uses groq key",
			provider: "whisper",
			creds:    Credentials{GoogleSpeechKey: "goog-key", GroqAPIKey: "gsk-key"},
			want:     "gsk-key",
		},
		{
			name:     "dedicated key overrides either provider",
			provider: "whisper",
			creds:    Credentials{GoogleSpeechKey: "goog-key", GroqAPIKey: "gsk-key", TranscriptionKey: "stt-key"},
			want:     "stt-key",
		},
		{
			name:     "missing credential yields empty key",
			provider: "whisper",
			creds:    Credentials{GoogleSpeechKey: "goog-key"},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			config.Transcription.Provider = tt.provider
			config.Credentials = tt.creds

			if got := config.TranscriptionAPIKey(); got != tt.want {
				t.Errorf("Expected key '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	segmenter := SegmenterConfig{
		SilenceDuration: 1.5,
	}

	if segmenter.GetSilenceDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", segmenter.GetSilenceDuration())
	}

	transcription := TranscriptionConfig{
		Timeout: 30,
	}

	if transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", transcription.GetTimeoutDuration())
	}

	llm := LLMConfig{
		SwitchCooldown: 3.0,
	}

	if llm.GetSwitchCooldownDuration() != 3*time.Second {
		t.Errorf("Expected 3 seconds, got %v", llm.GetSwitchCooldownDuration())
	}
}

func TestSupportedLanguages(t *testing.T) {
	if _, ok := SupportedLanguages["en-US"]; !ok {
		t.Error("Expected en-US to be supported")
	}

	if _, ok := SupportedLanguages["pt-BR"]; !ok {
		t.Error("Expected pt-BR to be supported")
	}

	if name := SupportedLanguages["en-US"]; name != "English (Global)" {
		t.Errorf("Expected display name 'English (Global)', got '%s'", name)
	}
}
