// Package domain defines the core entities of the ingestion pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ChangeEvent: A notification delivered by the change-event source
//   - BufferedRecord: A normalised record waiting for the next flush
//   - Chunk: A bounded, overlapping text segment with source metadata
//   - IndexedDocument: A chunk plus its vector, as stored in the index
//   - CollectionSchema: The fixed schema owned by the index gateway
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
