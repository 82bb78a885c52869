// Package snapshot implements SnapshotStore (§4.7): loading and saving
// per-Layer encoded snapshots through either a filesystem backend or a
// Redis key/value backend, never both.
package snapshot

// Source is the capability a Store needs to produce a fresh encoded
// snapshot of one Layer on demand. *room.Canvas implements it.
type Source interface {
	EncodeLayer(n int) ([]byte, error)
}
