package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/eliasqueirogavieira/audio-assist/internal/audio"
)

// noSpeechProbThreshold marks a Whisper segment as non-speech when its
// no_speech_prob exceeds it.
const noSpeechProbThreshold = 0.5

// WhisperRecognizer transcribes utterances through an OpenAI-compatible
// audio transcription endpoint (Groq whisper-large-v3-turbo by
// default). Audio is uploaded as a WAV multipart attachment.
type WhisperRecognizer struct {
	client *Client
	apiKey string
	model  string
}

// whisperResponse is the verbose_json response shape
type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// NewWhisperRecognizer creates a recognizer against an OpenAI-audio
// compatible endpoint. Credentials are validated at construction.
func NewWhisperRecognizer(config Config) (*WhisperRecognizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("whisper API key cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("whisper model cannot be empty")
	}

	client, err := newClient(config)
	if err != nil {
		return nil, err
	}

	return &WhisperRecognizer{
		client: client,
		apiKey: config.APIKey,
		model:  config.Model,
	}, nil
}

// Recognize uploads one utterance as WAV and returns the recognized
// text. Empty text or an all-non-speech segment consensus maps to
// ErrNoSpeech.
func (w *WhisperRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	wavData, err := audio.EncodeWAV(audio.BytesToSamples(pcm), sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode utterance: %w", err)
	}

	body, err := w.client.roundTrip(ctx, func() (*http.Request, error) {
		return w.newRequest(wavData, language)
	})
	if err != nil {
		return "", err
	}

	return parseWhisperResponse(body)
}

// newRequest builds the multipart upload. Built per attempt because a
// consumed body cannot be resent.
func (w *WhisperRecognizer) newRequest(wavData []byte, language string) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wavData); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           w.model,
		"response_format": "verbose_json",
	}

	if language != "" {
		// Whisper takes a bare ISO-639-1 code, not a BCP-47 tag
		fields["language"] = strings.SplitN(language, "-", 2)[0]
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.client.config.Endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// parseWhisperResponse extracts text from a verbose_json response
func parseWhisperResponse(body []byte) (string, error) {
	var resp whisperResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}

	// Whisper hallucinates text on silence; trust the segment
	// consensus when every segment reports non-speech.
	if len(resp.Segments) > 0 {
		speech := false
		for _, seg := range resp.Segments {
			if seg.NoSpeechProb <= noSpeechProbThreshold {
				speech = true
				break
			}
		}
		if !speech {
			return "", ErrNoSpeech
		}
	}

	return text, nil
}

// GetStats returns current client statistics
func (w *WhisperRecognizer) GetStats() ClientStats {
	return w.client.GetStats()
}

// Close gracefully shuts down the recognizer
func (w *WhisperRecognizer) Close() error {
	return w.client.Close()
}
