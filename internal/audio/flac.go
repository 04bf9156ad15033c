package audio

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// flacBlockSize is the number of samples encoded per FLAC frame. It
// matches the capture frame size so utterances encode without padding.
const flacBlockSize = 4096

// EncodeFLAC encodes PCM-16 mono samples into a FLAC stream with
// verbatim subframes. Used for the Google Speech API upload, which
// accepts audio/x-flac only.
func EncodeFLAC(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(samples)),
	}

	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create flac encoder: %w", err)
	}

	for offset := 0; offset < len(samples); offset += flacBlockSize {
		end := offset + flacBlockSize
		if end > len(samples) {
			end = len(samples)
		}

		if err := encodeFLACBlock(enc, samples[offset:end], sampleRate); err != nil {
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize flac stream: %w", err)
	}

	return buf.Bytes(), nil
}

// encodeFLACBlock writes one block of samples as a verbatim frame.
func encodeFLACBlock(enc *flac.Encoder, block []int16, sampleRate int) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("failed to write flac frame: %w", err)
	}

	return nil
}
