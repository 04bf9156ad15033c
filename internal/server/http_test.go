package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eliasqueirogavieira/audio-assist/internal/audio"
	"github.com/eliasqueirogavieira/audio-assist/internal/config"
	"github.com/eliasqueirogavieira/audio-assist/internal/listener"
	"github.com/eliasqueirogavieira/audio-assist/internal/llm"
	"github.com/eliasqueirogavieira/audio-assist/internal/segmenter"
	"github.com/eliasqueirogavieira/audio-assist/internal/session"
	"github.com/eliasqueirogavieira/audio-assist/internal/transcription"
)

type stubRecognizer struct{}

func (stubRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	return "", transcription.ErrNoSpeech
}

func (stubRecognizer) GetStats() transcription.ClientStats { return transcription.ClientStats{} }
func (stubRecognizer) Close() error                        { return nil }

type stubLLMClient struct{}

func (stubLLMClient) Stream(ctx context.Context, userText string, history []llm.Message) <-chan llm.Fragment {
	fragments := make(chan llm.Fragment)
	close(fragments)
	return fragments
}

func (stubLLMClient) Provider() string { return "openai" }
func (stubLLMClient) Model() string    { return "gpt-4o-mini" }
func (stubLLMClient) Close() error     { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8000, Address: "127.0.0.1"},
		Audio: config.AudioConfig{
			SampleRate: 16000, Channels: 1, BitDepth: 16, FrameSize: 1024,
		},
		Segmenter: config.SegmenterConfig{
			SilenceThreshold: 200, SilenceDuration: 2.0,
			MinUtteranceFrames: 3, MaxBufferFrames: 500, TrimFrames: 400,
		},
		Transcription: config.TranscriptionConfig{
			Provider: "google", Endpoint: "http://example.com",
			DefaultLanguage: "en-US", Timeout: 10, MaxRetries: 3, MaxConcurrent: 2,
		},
		LLM: config.LLMConfig{
			DefaultModel: "openai/gpt-4o-mini", MaxTokens: 500,
			Temperature: 0.7, SwitchCooldown: 3,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// newTestServer wires a full HTTP server with a fake capture device
// when withDevice is set, or a degraded audio pipeline otherwise.
func newTestServer(t *testing.T, withDevice bool) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()

	factory := func(id string) (llm.Client, llm.Profile, error) {
		return stubLLMClient{}, llm.Profile{MaxTokens: 100, Temperature: 0.7, HistoryWindow: 4}, nil
	}

	sessions := session.NewManager(logger, nil, factory,
		map[string]string{"GPT-4o Mini": "openai/gpt-4o-mini"},
		session.Config{DefaultModel: "openai/gpt-4o-mini", Language: "en-US"})

	var device audio.Device
	if withDevice {
		device = audio.NewFakeDevice(nil, 0)
	}

	audioPipeline, err := listener.New(logger, nil, device, stubRecognizer{}, sessions, listener.Config{
		Segmenter: segmenter.Config{
			SilenceThreshold: 200, SilenceDuration: 2.0,
			SampleRate: 16000, FrameSize: 1024,
			MinFrames: 3, MaxFrames: 500, TrimFrames: 400,
		},
		Language: "en-US",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	sessions.SetAudio(audioPipeline)

	h := NewHTTPServer(cfg.Server, logger, cfg, sessions, audioPipeline, nil)
	server := httptest.NewServer(h.server.Handler)

	t.Cleanup(func() {
		server.Close()
		sessions.Stop()
		audioPipeline.Close()
	})

	return server
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	code, body := getJSON(t, server.URL+"/health")

	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}

	components, ok := body["components"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected components section, got %v", body)
	}

	audioComponent := components["audio"].(map[string]interface{})
	if audioComponent["available"] != true {
		t.Errorf("Expected audio available, got %v", audioComponent)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	code, body := getJSON(t, server.URL+"/status")

	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	if body["status"] != "running" {
		t.Errorf("Expected running status, got %v", body["status"])
	}

	if body["llm_provider"] != "openai" {
		t.Errorf("Expected openai provider, got %v", body["llm_provider"])
	}

	if body["audio_available"] != true {
		t.Errorf("Expected audio available, got %v", body["audio_available"])
	}

	if body["audio_listening"] != false {
		t.Errorf("Expected not listening, got %v", body["audio_listening"])
	}

	if body["language"] != "en-US" {
		t.Errorf("Expected language en-US, got %v", body["language"])
	}
}

func TestStartStopAudio(t *testing.T) {
	server := newTestServer(t, true)

	code, body := getJSON(t, server.URL+"/start-audio")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["status"] != "started" || body["message"] != "Audio listening started" {
		t.Errorf("Unexpected start response: %v", body)
	}

	code, body = getJSON(t, server.URL+"/status")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["audio_listening"] != true {
		t.Errorf("Expected audio_listening true, got %v", body["audio_listening"])
	}

	code, body = getJSON(t, server.URL+"/stop-audio")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["status"] != "stopped" || body["message"] != "Audio listening stopped" {
		t.Errorf("Unexpected stop response: %v", body)
	}
}

func TestStartAudioWithoutDevice(t *testing.T) {
	server := newTestServer(t, false)

	code, body := getJSON(t, server.URL+"/start-audio")

	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	if body["status"] != "error" {
		t.Errorf("Expected error status, got %v", body)
	}

	if !strings.Contains(body["message"].(string), "not available") {
		t.Errorf("Unexpected error message: %v", body["message"])
	}
}

func TestStartAudioMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, true)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/start-audio", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestConfigEndpointSanitized(t *testing.T) {
	server := newTestServer(t, true)

	resp, err := http.Get(server.URL + "/config")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body := strings.ToLower(string(raw))
	for _, secret := range []string{"api_key", "apikey", "credential"} {
		if strings.Contains(body, secret) {
			t.Errorf("Config response leaks %q: %s", secret, body)
		}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to decode config: %v", err)
	}

	transcriptionSection := decoded["transcription"].(map[string]interface{})
	if transcriptionSection["provider"] != "google" {
		t.Errorf("Expected provider google, got %v", transcriptionSection["provider"])
	}
}

func TestRootEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	code, body := getJSON(t, server.URL+"/")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	if _, ok := body["endpoints"]; !ok {
		t.Errorf("Expected endpoint listing, got %v", body)
	}

	resp, err := http.Get(server.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

func TestWebSocketEndpoint(t *testing.T) {
	server := newTestServer(t, true)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read first frame: %v", err)
	}

	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}

	if event["type"] != "available_models" {
		t.Errorf("Expected available_models push, got %v", event["type"])
	}
}
