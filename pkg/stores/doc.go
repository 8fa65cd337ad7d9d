// Package stores persists reconciliation history for partsync.
// It includes a SQLite-based store with embedded migrations holding the run
// history, the event log and the last known snapshot of each partition.
package stores
