package model

// Side-file suffixes of a SQLite database in WAL mode.
const (
	WALSuffix = "-wal"
	SHMSuffix = "-shm"
)

// StoreFiles returns the file names that make up a store: the primary
// database file followed by its write-ahead log and shared-memory index.
// All of them must travel together whenever the store is copied.
func StoreFiles(primary string) []string {
	return []string{primary, primary + WALSuffix, primary + SHMSuffix}
}
