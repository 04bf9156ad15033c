// Package audio provides the capture device abstraction and the audio
// encodings used by the transcription clients. Capture is backed by
// malgo (miniaudio) with a scripted fake for tests; WAV encoding
// serves the Whisper upload path and FLAC the Google Speech API.
package audio
