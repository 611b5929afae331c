// Package scheduler drives the periodic market collection pipeline.
// Each tick sequences, depending on the collection state:
//   - catalog refresh from the quote provider snapshot
//   - history backfill for assets without coverage (bootstrap phase)
//   - price alert evaluation (steady phase)
//
// The tick state machine is implemented in jobs.go.
package scheduler
