// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to function:
//
//   - EventSource: Delivers ordered change events (Kafka)
//   - EmbeddingProvider: Turns text into vectors (OpenAI, Ollama, Gemini)
//   - VectorBackend: Stores and searches vectors (Milvus, SQLite)
//   - TextChunker: Splits cleaned text into overlapping chunks
//
// # Optional Interfaces
//
// These can be disabled - the pipeline degrades gracefully:
//
//   - EmbeddingCache: Content-addressed vector cache (Redis, Badger).
//     When unavailable every request recomputes its vectors.
//   - Normaliser: Converts uploaded files to plain text (plaintext, markdown).
//     Files with no registered normaliser must already be UTF-8 text.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
