// Package state persists the last observed status per combination.
//
// Backends:
//   - file:   JSON snapshot (schema: combination -> {available, reason, last_seen})
//   - sqlite: one-row-per-combination table, replaced wholesale on save
package state
