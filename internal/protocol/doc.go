// Package protocol defines the JSON messages exchanged with browser
// clients over the WebSocket connection, including client command
// parsing and constructors for every server-sent event.
package protocol
