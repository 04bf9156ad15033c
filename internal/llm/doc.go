// Package llm provides the provider-agnostic streaming language-model
// clients. OpenAI, Groq and Ollama share one go-openai binding
// differing only in base URL; Cohere is bound over plain HTTP and
// simulates streaming by emitting word-sized fragments. A catalog
// holds the server-side allow-list and the per-model tuning profiles,
// and the factory validates identifiers and credentials at
// construction time.
package llm
