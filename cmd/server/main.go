package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eliasqueirogavieira/audio-assist/internal/audio"
	"github.com/eliasqueirogavieira/audio-assist/internal/config"
	"github.com/eliasqueirogavieira/audio-assist/internal/listener"
	"github.com/eliasqueirogavieira/audio-assist/internal/llm"
	"github.com/eliasqueirogavieira/audio-assist/internal/metrics"
	"github.com/eliasqueirogavieira/audio-assist/internal/segmenter"
	"github.com/eliasqueirogavieira/audio-assist/internal/server"
	"github.com/eliasqueirogavieira/audio-assist/internal/session"
	"github.com/eliasqueirogavieira/audio-assist/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-assist"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_size", cfg.Audio.FrameSize),
		slog.Int("silence_threshold", cfg.Segmenter.SilenceThreshold),
		slog.Float64("silence_duration", cfg.Segmenter.SilenceDuration),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("default_language", cfg.Transcription.DefaultLanguage),
		slog.String("default_model", cfg.LLM.DefaultModel),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the speech recognizer
	recognizer, err := transcription.NewRecognizer(cfg.Transcription.Provider, transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.TranscriptionAPIKey(),
		Model:         cfg.Transcription.Model,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create speech recognizer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Speech recognizer initialized",
		slog.String("provider", cfg.Transcription.Provider),
		slog.String("endpoint", cfg.Transcription.Endpoint),
	)

	// Build the language-model factory over the configured credentials
	llmConfig := llm.Config{
		OpenAIAPIKey:  cfg.Credentials.OpenAIAPIKey,
		GroqAPIKey:    cfg.Credentials.GroqAPIKey,
		CohereAPIKey:  cfg.Credentials.CohereAPIKey,
		OllamaBaseURL: cfg.Credentials.OllamaBaseURL,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
	}
	factory := func(id string) (llm.Client, llm.Profile, error) {
		return llm.NewClient(id, llmConfig)
	}

	// Verify the default model is usable before accepting connections
	if defaultClient, _, err := factory(cfg.LLM.DefaultModel); err != nil {
		logger.Error("Default model is not usable",
			slog.String("model", cfg.LLM.DefaultModel),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	} else {
		defaultClient.Close()
	}

	// Initialize the session manager
	sessions := session.NewManager(logger, appMetrics, factory, llm.Catalog(), session.Config{
		DefaultModel:   cfg.LLM.DefaultModel,
		SwitchCooldown: cfg.LLM.GetSwitchCooldownDuration(),
		Language:       cfg.Transcription.DefaultLanguage,
	})
	logger.Info("Session manager initialized",
		slog.String("default_model", cfg.LLM.DefaultModel),
		slog.Duration("switch_cooldown", cfg.LLM.GetSwitchCooldownDuration()),
	)

	// Open the capture device; failure degrades to an audio-disabled
	// mode where only text input works.
	var device audio.Device
	device, err = audio.NewDevice(audio.Config{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		FrameSize:  cfg.Audio.FrameSize,
		DeviceName: cfg.Audio.DeviceName,
	})
	if err != nil {
		logger.Warn("Audio capture unavailable, running in text-only mode",
			slog.String("error", err.Error()),
		)
		device = nil
	}

	// Initialize the listener pipeline
	audioPipeline, err := listener.New(logger, appMetrics, device, recognizer, sessions, listener.Config{
		Segmenter: segmenter.Config{
			SilenceThreshold: cfg.Segmenter.SilenceThreshold,
			SilenceDuration:  cfg.Segmenter.SilenceDuration,
			SampleRate:       cfg.Audio.SampleRate,
			FrameSize:        cfg.Audio.FrameSize,
			MinFrames:        cfg.Segmenter.MinUtteranceFrames,
			MaxFrames:        cfg.Segmenter.MaxBufferFrames,
			TrimFrames:       cfg.Segmenter.TrimFrames,
		},
		Language: cfg.Transcription.DefaultLanguage,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create listener", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sessions.SetAudio(audioPipeline)

	// Initialize and start the HTTP server
	httpServer := server.NewHTTPServer(cfg.Server, logger, cfg, sessions, audioPipeline, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.Bool("audio_available", audioPipeline.Available()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the capture pipeline (joins the capture worker and pool)
	if err := audioPipeline.Close(); err != nil {
		logger.Error("Error stopping listener", slog.String("error", err.Error()))
	}

	// Close remaining sessions
	sessions.Stop()

	// Log final statistics
	stats := audioPipeline.Stats()
	logger.Info("Final service statistics",
		slog.Uint64("frames_processed", stats.Segmenter.FramesProcessed),
		slog.Uint64("utterances_emitted", stats.Segmenter.UtterancesEmitted),
		slog.Uint64("transcription_requests", stats.Transcription.TotalRequests),
		slog.Float64("transcription_success_rate", stats.Transcription.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
