// Package transcription implements the speech-to-text recognizers.
// A shared HTTP core provides semaphore-bounded concurrency, retry
// with exponential backoff, and request statistics; on top of it sit
// the Google Web Speech recognizer (FLAC upload) and an
// OpenAI-compatible Whisper recognizer (WAV multipart upload).
package transcription
