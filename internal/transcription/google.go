package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/eliasqueirogavieira/audio-assist/internal/audio"
)

// GoogleRecognizer transcribes utterances through the Google Web
// Speech API, the same endpoint browser speech recognition uses.
// Audio is uploaded as FLAC because the endpoint rejects raw PCM.
type GoogleRecognizer struct {
	client *Client
	apiKey string
}

// googleResponse is one line of the line-delimited JSON the endpoint
// returns. The first lines are usually empty result sets.
type googleResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
	ResultIndex int `json:"result_index"`
}

// NewGoogleRecognizer creates a recognizer against the Google Web
// Speech API. The API key is required at construction so a missing
// credential fails at startup, not on the first utterance.
func NewGoogleRecognizer(config Config) (*GoogleRecognizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google speech API key cannot be empty")
	}

	client, err := newClient(config)
	if err != nil {
		return nil, err
	}

	return &GoogleRecognizer{
		client: client,
		apiKey: config.APIKey,
	}, nil
}

// Recognize uploads one utterance and returns the first alternative's
// transcript. An empty result set maps to ErrNoSpeech.
func (g *GoogleRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	flacData, err := audio.EncodeFLAC(audio.BytesToSamples(pcm), sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode utterance: %w", err)
	}

	query := url.Values{}
	query.Set("client", "chromium")
	query.Set("lang", language)
	query.Set("key", g.apiKey)
	query.Set("pFilter", "0")

	endpoint := g.client.config.Endpoint + "?" + query.Encode()
	contentType := fmt.Sprintf("audio/x-flac; rate=%d", sampleRate)

	body, err := g.client.roundTrip(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(flacData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	return parseGoogleResponse(body)
}

// parseGoogleResponse scans the line-delimited JSON body for the first
// non-empty result.
func parseGoogleResponse(body []byte) (string, error) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var resp googleResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return "", fmt.Errorf("failed to parse response JSON: %w", err)
		}

		for _, result := range resp.Result {
			if len(result.Alternative) == 0 {
				continue
			}

			transcript := strings.TrimSpace(result.Alternative[0].Transcript)
			if transcript != "" {
				return transcript, nil
			}
		}
	}

	return "", ErrNoSpeech
}

// GetStats returns current client statistics
func (g *GoogleRecognizer) GetStats() ClientStats {
	return g.client.GetStats()
}

// Close gracefully shuts down the recognizer
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}
