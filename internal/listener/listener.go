package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eliasqueirogavieira/audio-assist/internal/audio"
	"github.com/eliasqueirogavieira/audio-assist/internal/metrics"
	"github.com/eliasqueirogavieira/audio-assist/internal/segmenter"
	"github.com/eliasqueirogavieira/audio-assist/internal/transcription"
)

const (
	// Bounded wait for the capture worker when listening stops
	captureJoinTimeout = 2 * time.Second

	// Pause after a transient device read error before resuming
	readErrorPause = 100 * time.Millisecond

	// Buffered utterances awaiting transcription before drops
	utteranceQueueSize = 8

	defaultWorkers = 2
)

// ErrNoDevice is returned for listening commands when the service
// started without a capture device.
var ErrNoDevice = errors.New("no capture device available")

// Sink receives recognized utterance text.
type Sink interface {
	HandleTranscript(text string)
}

// Config contains listener tuning.
type Config struct {
	Segmenter segmenter.Config
	Language  string        // initial recognition language code
	Timeout   time.Duration // per-utterance transcription deadline
	Workers   int           // transcription pool size
}

// Listener runs the microphone side of the assistant: it drains the
// capture device, feeds frames through the silence-gated segmenter,
// and hands completed utterances to a small transcription pool whose
// results go to the sink. A nil device puts the listener in a degraded
// mode where listening commands fail but the rest of the service runs.
type Listener struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	device     audio.Device
	seg        *segmenter.Segmenter
	recognizer transcription.Recognizer
	sink       Sink
	timeout    time.Duration

	utterances chan *segmenter.Utterance

	language  string
	listening bool
	stopCh    chan struct{}
	done      chan struct{}
	mu        sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New creates a listener and starts its transcription pool. The device
// may be nil when no microphone could be opened.
func New(logger *slog.Logger, m *metrics.Metrics, device audio.Device, recognizer transcription.Recognizer, sink Sink, config Config) (*Listener, error) {
	seg, err := segmenter.New(config.Segmenter)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	workers := config.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Listener{
		logger:     logger,
		metrics:    m,
		device:     device,
		seg:        seg,
		recognizer: recognizer,
		sink:       sink,
		timeout:    timeout,
		utterances: make(chan *segmenter.Utterance, utteranceQueueSize),
		language:   config.Language,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < workers; i++ {
		l.workers.Add(1)
		go l.transcribeWorker(i)
	}

	logger.Info("Listener started",
		slog.Bool("audio_available", device != nil),
		slog.Int("transcription_workers", workers),
		slog.String("language", config.Language),
	)

	return l, nil
}

// Available reports whether a capture device was opened.
func (l *Listener) Available() bool {
	return l.device != nil
}

// Listening reports whether capture is currently running.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// SetLanguage changes the recognition language for future utterances.
// Utterances already queued keep the language they were captured with
// only if they have not been picked up yet; in practice the switch
// applies almost immediately.
func (l *Listener) SetLanguage(code string) {
	l.mu.Lock()
	l.language = code
	l.mu.Unlock()
}

// Language returns the current recognition language code.
func (l *Listener) Language() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.language
}

// StartListening begins capturing. Starting while already listening is
// a no-op. Any partial utterance left over from the previous run is
// discarded.
func (l *Listener) StartListening() error {
	if l.device == nil {
		return ErrNoDevice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening {
		return nil
	}

	l.seg.Reset()

	if err := l.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	go l.captureLoop(l.stopCh, l.done)

	l.listening = true
	l.logger.Info("Listening started")
	return nil
}

// StopListening halts capturing. Stopping while not listening is a
// no-op. Utterances already queued for transcription still complete.
func (l *Listener) StopListening() error {
	if l.device == nil {
		return ErrNoDevice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.listening {
		return nil
	}

	close(l.stopCh)

	select {
	case <-l.done:
	case <-time.After(captureJoinTimeout):
		l.logger.Warn("Capture worker did not stop within timeout")
	}

	if err := l.device.Stop(); err != nil {
		l.logger.Warn("Error stopping capture device", slog.String("error", err.Error()))
	}

	l.listening = false
	l.logger.Info("Listening stopped")
	return nil
}

// Close shuts the listener down: stops capture if running, drains the
// worker pool and releases the device and recognizer.
func (l *Listener) Close() error {
	if l.Listening() {
		l.StopListening()
	}

	l.cancel()
	l.workers.Wait()

	if l.device != nil {
		if err := l.device.Close(); err != nil {
			l.logger.Warn("Error closing capture device", slog.String("error", err.Error()))
		}
	}

	if err := l.recognizer.Close(); err != nil {
		l.logger.Warn("Error closing recognizer", slog.String("error", err.Error()))
	}

	l.logger.Info("Listener stopped")
	return nil
}

// Stats represents listener state for monitoring APIs.
type Stats struct {
	Available     bool                      `json:"available"`
	Listening     bool                      `json:"listening"`
	Language      string                    `json:"language"`
	Segmenter     segmenter.Stats           `json:"segmenter"`
	Transcription transcription.ClientStats `json:"transcription"`
}

// Stats returns a monitoring snapshot.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	listening := l.listening
	language := l.language
	l.mu.Unlock()

	return Stats{
		Available:     l.device != nil,
		Listening:     listening,
		Language:      language,
		Segmenter:     l.seg.GetStats(),
		Transcription: l.recognizer.GetStats(),
	}
}

// captureLoop drains the device until stopped. Transient read errors
// are logged and followed by a short pause; they never end the loop.
func (l *Listener) captureLoop(stopCh, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return

		case frame := <-l.device.Frames():
			l.metrics.RecordFrameCaptured()
			if utterance := l.seg.Feed(frame); utterance != nil {
				l.dispatch(utterance)
			}

		case err := <-l.device.ReadErrors():
			l.metrics.RecordReadError()
			l.logger.Warn("Transient capture read error", slog.String("error", err.Error()))

			select {
			case <-time.After(readErrorPause):
			case <-stopCh:
				return
			}
		}
	}
}

// dispatch hands one utterance to the transcription pool without
// blocking the capture path.
func (l *Listener) dispatch(utterance *segmenter.Utterance) {
	l.metrics.RecordUtterance(utterance.Duration.Seconds(), len(utterance.PCM))

	select {
	case l.utterances <- utterance:
		l.logger.Debug("Utterance queued for transcription",
			slog.Int("frames", utterance.Frames),
			slog.Duration("duration", utterance.Duration),
		)
	default:
		l.metrics.RecordFrameDropped()
		l.logger.Warn("Dropping utterance, transcription queue full",
			slog.Int("frames", utterance.Frames),
			slog.Duration("duration", utterance.Duration),
		)
	}
}

// transcribeWorker pulls utterances off the queue for the lifetime of
// the listener.
func (l *Listener) transcribeWorker(id int) {
	defer l.workers.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case utterance := <-l.utterances:
			l.transcribe(id, utterance)
		}
	}
}

// transcribe runs one utterance through the recognizer and forwards
// non-empty text to the sink. Silence and recognition failures end
// here; nothing reaches the sessions for them.
func (l *Listener) transcribe(worker int, utterance *segmenter.Utterance) {
	l.metrics.RecordTranscriptionRequest()

	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()

	start := time.Now()
	text, err := l.recognizer.Recognize(ctx, utterance.PCM, utterance.SampleRate, l.Language())
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, transcription.ErrNoSpeech) {
			l.metrics.RecordTranscriptionEmpty()
			l.logger.Debug("No speech recognized in utterance",
				slog.Int("worker", worker),
				slog.Duration("utterance", utterance.Duration),
			)
			return
		}

		l.metrics.RecordTranscriptionFailure(elapsed.Seconds())
		l.logger.Error("Transcription failed",
			slog.Int("worker", worker),
			slog.Duration("utterance", utterance.Duration),
			slog.String("error", err.Error()),
		)
		return
	}

	if strings.TrimSpace(text) == "" {
		l.metrics.RecordTranscriptionEmpty()
		return
	}

	l.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
	l.logger.Info("Utterance transcribed",
		slog.Int("worker", worker),
		slog.String("text", text),
		slog.Duration("utterance", utterance.Duration),
		slog.Duration("took", elapsed),
	)

	l.sink.HandleTranscript(text)
}
