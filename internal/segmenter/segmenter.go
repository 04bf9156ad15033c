package segmenter

import (
	"fmt"
	"sync"
	"time"
)

// Config contains tuning for the silence-gated segmentation process.
type Config struct {
	SilenceThreshold int     // Mean absolute amplitude below which a frame is silent
	SilenceDuration  float64 // Seconds of trailing silence that end an utterance
	SampleRate       int     // Samples per second
	FrameSize        int     // Samples per frame
	MinFrames        int     // Buffer floor below which no utterance is emitted
	MaxFrames        int     // Hard cap on buffered frames
	TrimFrames       int     // Frames retained when the cap is exceeded
}

// Utterance is one contiguous span of speech bounded by silence,
// concatenated into a single PCM buffer for transcription.
type Utterance struct {
	PCM        []byte        `json:"-"`
	SampleRate int           `json:"sample_rate"`
	BitDepth   int           `json:"bit_depth"`
	Frames     int           `json:"frames"`
	Duration   time.Duration `json:"duration"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Segmenter consumes fixed-size PCM frames and emits an utterance once
// trailing silence exceeds the configured duration. Frames below the
// amplitude threshold only advance the silence counter and are never
// buffered.
type Segmenter struct {
	config          Config
	thresholdFrames int // Consecutive silent frames that trigger a flush

	// Current candidate utterance
	frames       [][]byte
	silentStreak int
	firstFrameAt time.Time

	// Statistics
	framesProcessed   uint64
	utterancesEmitted uint64
	framesTrimmed     uint64
	lastEmit          time.Time

	mu sync.Mutex
}

// Stats represents segmenter statistics.
type Stats struct {
	FramesProcessed   uint64    `json:"frames_processed"`
	FramesBuffered    int       `json:"frames_buffered"`
	SilentStreak      int       `json:"silent_streak"`
	UtterancesEmitted uint64    `json:"utterances_emitted"`
	FramesTrimmed     uint64    `json:"frames_trimmed"`
	ThresholdFrames   int       `json:"threshold_frames"`
	LastEmit          time.Time `json:"last_emit"`
}

// New creates a segmenter for the given tuning parameters.
func New(config Config) (*Segmenter, error) {
	if config.SilenceThreshold <= 0 {
		return nil, fmt.Errorf("silence threshold must be positive, got %d", config.SilenceThreshold)
	}

	if config.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %f", config.SilenceDuration)
	}

	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameSize)
	}

	if config.MinFrames < 1 {
		return nil, fmt.Errorf("minimum frames must be at least 1, got %d", config.MinFrames)
	}

	if config.MaxFrames <= config.MinFrames {
		return nil, fmt.Errorf("max frames must exceed minimum frames, got %d", config.MaxFrames)
	}

	if config.TrimFrames < 1 || config.TrimFrames >= config.MaxFrames {
		return nil, fmt.Errorf("trim frames must be between 1 and max frames, got %d", config.TrimFrames)
	}

	return &Segmenter{
		config:          config,
		thresholdFrames: int(config.SilenceDuration * float64(config.SampleRate) / float64(config.FrameSize)),
	}, nil
}

// Feed processes one PCM frame and returns a completed utterance when
// the trailing-silence boundary is crossed, or nil otherwise. The
// caller owns dispatching the utterance; Feed itself never blocks on
// downstream work.
func (s *Segmenter) Feed(frame []byte) *Utterance {
	if len(frame) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesProcessed++

	if meanAmplitude(frame) >= float64(s.config.SilenceThreshold) {
		if len(s.frames) == 0 {
			s.firstFrameAt = time.Now()
		}
		s.frames = append(s.frames, frame)
		s.silentStreak = 0

		// Lossy safety valve: keep only the most recent tail when the
		// buffer grows past the cap without reaching a flush.
		if len(s.frames) > s.config.MaxFrames {
			trimmed := len(s.frames) - s.config.TrimFrames
			s.frames = append([][]byte(nil), s.frames[trimmed:]...)
			s.framesTrimmed += uint64(trimmed)
		}

		return nil
	}

	s.silentStreak++

	if len(s.frames) > s.config.MinFrames && s.silentStreak > s.thresholdFrames {
		return s.flush()
	}

	return nil
}

// flush concatenates the buffered frames into one utterance and resets
// the candidate state. Caller must hold the mutex.
func (s *Segmenter) flush() *Utterance {
	total := 0
	for _, frame := range s.frames {
		total += len(frame)
	}

	pcm := make([]byte, 0, total)
	for _, frame := range s.frames {
		pcm = append(pcm, frame...)
	}

	utterance := &Utterance{
		PCM:        pcm,
		SampleRate: s.config.SampleRate,
		BitDepth:   16,
		Frames:     len(s.frames),
		Duration:   s.bufferedDuration(),
		CapturedAt: s.firstFrameAt,
	}

	s.frames = nil
	s.silentStreak = 0
	s.firstFrameAt = time.Time{}
	s.utterancesEmitted++
	s.lastEmit = time.Now()

	return utterance
}

// bufferedDuration returns the audio duration covered by the buffered
// frames. Caller must hold the mutex.
func (s *Segmenter) bufferedDuration() time.Duration {
	samples := len(s.frames) * s.config.FrameSize
	return time.Duration(float64(samples) / float64(s.config.SampleRate) * float64(time.Second))
}

// Reset discards the current candidate utterance and silence counter.
// Used when listening stops so a later start begins from a clean slate.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = nil
	s.silentStreak = 0
	s.firstFrameAt = time.Time{}
}

// GetStats returns current segmenter statistics.
func (s *Segmenter) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		FramesProcessed:   s.framesProcessed,
		FramesBuffered:    len(s.frames),
		SilentStreak:      s.silentStreak,
		UtterancesEmitted: s.utterancesEmitted,
		FramesTrimmed:     s.framesTrimmed,
		ThresholdFrames:   s.thresholdFrames,
		LastEmit:          s.lastEmit,
	}
}

// ThresholdFrames returns the number of consecutive silent frames that
// closes an utterance.
func (s *Segmenter) ThresholdFrames() int {
	return s.thresholdFrames
}

// BufferedFrames returns the number of frames in the current candidate
// utterance.
func (s *Segmenter) BufferedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// meanAmplitude computes the mean absolute sample amplitude of a frame
// of little-endian signed 16-bit PCM.
func meanAmplitude(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}

	var sum int64
	for i := 0; i < samples; i++ {
		v := int64(int16(uint16(frame[i*2]) | uint16(frame[i*2+1])<<8))
		if v < 0 {
			v = -v
		}
		sum += v
	}

	return float64(sum) / float64(samples)
}
