// Package session manages the WebSocket chat sessions of the voice
// assistant. Each connection gets its own conversation history, its
// own language-model client and a serialized prompt loop, so replies
// for one session are generated strictly one at a time. The manager
// fans recognized utterances out to every session, dispatches client
// commands such as model and language switches, and enforces the
// model switch cooldown.
package session
