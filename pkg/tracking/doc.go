// Package tracking provides the run tracking persistence layer.
// It includes SQLite-based storage with WAL mode and embedded schema
// migrations for experiment runs and their step-level event log, plus
// a Tracker adapter that brackets engine runs with store updates.
package tracking
