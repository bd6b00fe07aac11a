// Package stores provides the SQLite-backed state store for Groundwork.
// It persists resource records, run history and the run-level lock, and
// implements the engine's StateStore and RunRecorder interfaces.
package stores
