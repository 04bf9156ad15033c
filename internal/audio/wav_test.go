package audio

import (
	"math"
	"testing"
)

// sineWave generates a PCM-16 sine wave for test audio.
func sineWave(sampleRate int, duration, frequency float64) []int16 {
	numSamples := int(float64(sampleRate) * duration)
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		amplitude := 16383.0 // Half of max int16 to avoid clipping
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*t))
	}

	return samples
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	samples := sineWave(sampleRate, 0.1, 440.0)

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(wavData) == 0 {
		t.Fatal("WAV data is empty")
	}

	// WAV header should be 44 bytes
	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Errorf("Failed to get WAV duration: %v", err)
	}

	expectedDuration := float64(len(samples)) / float64(sampleRate)
	if math.Abs(duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, duration)
	}
}

func TestDecodeWAV(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500}
	sampleRate := 16000

	wavData, err := EncodeWAV(originalSamples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decodedSamples, decodedRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decodedRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, decodedRate)
	}

	if len(decodedSamples) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(decodedSamples))
	}

	for i, sample := range originalSamples {
		if decodedSamples[i] != sample {
			t.Errorf("Sample %d: expected %d, got %d", i, sample, decodedSamples[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	tests := []struct {
		name       string
		samples    []int16
		sampleRate int
	}{
		{
			name:       "empty samples",
			samples:    nil,
			sampleRate: 16000,
		},
		{
			name:       "zero sample rate",
			samples:    []int16{1, 2, 3},
			sampleRate: 0,
		},
		{
			name:       "negative sample rate",
			samples:    []int16{1, 2, 3},
			sampleRate: -16000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.samples, tt.sampleRate); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "too short",
			data: []byte("RIFF"),
		},
		{
			name: "missing RIFF header",
			data: make([]byte, 64),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestPCMConversionRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}

	data := SamplesToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}

	back := BytesToSamples(data)
	if len(back) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(back))
	}

	for i, sample := range samples {
		if back[i] != sample {
			t.Errorf("Sample %d: expected %d, got %d", i, sample, back[i])
		}
	}
}
