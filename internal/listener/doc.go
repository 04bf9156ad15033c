// Package listener drives the capture side of the assistant: it reads
// PCM frames from the microphone, segments them into utterances on
// trailing silence, and transcribes each utterance on a small worker
// pool before handing the text to the session layer. When no capture
// device can be opened the listener runs in a degraded mode that
// rejects listening commands while the rest of the service stays up.
package listener
