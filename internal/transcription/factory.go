package transcription

import "fmt"

// NewRecognizer builds the configured speech-to-text recognizer.
func NewRecognizer(provider string, config Config) (Recognizer, error) {
	switch provider {
	case "google":
		return NewGoogleRecognizer(config)
	case "whisper":
		return NewWhisperRecognizer(config)
	default:
		return nil, fmt.Errorf("unknown transcription provider: %q", provider)
	}
}
