// Package replica stages a shared SQLite store into a local cache directory
// and reconciles it back on exit.
//
// A store is the primary database file plus its "-wal" and "-shm" side files;
// the three always travel together. Working on a local copy avoids running
// SQLite's shared-memory locking over a network filesystem, at the cost of a
// copy on start and on exit. Only the session holding the lock in edit mode
// ever syncs back.
//
// The local cache is guarded by an advisory file lock so two instances on
// the same machine cannot stage into the same directory at once. The guard
// is machine-local; it says nothing about other machines.
package replica
