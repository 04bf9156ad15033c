// Package segmenter implements silence-gated utterance detection over
// a stream of fixed-size PCM frames. It buffers frames whose mean
// absolute amplitude reaches a threshold and emits the buffered audio
// as one utterance once enough consecutive silent frames arrive.
package segmenter
