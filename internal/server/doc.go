// Package server exposes the service over HTTP: the WebSocket chat
// endpoint, the audio start/stop control API, and the monitoring
// endpoints for health, status, configuration and Prometheus metrics.
package server
