// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services depend only on ports and domain types; concrete backends are
// injected by the composition root in cmd/sercha-ingest.
package services
