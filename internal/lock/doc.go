// Package lock implements the single-writer lock guarding a store on a shared
// filesystem.
//
// The lock is a small JSON file next to the store. Its presence means some
// process believes it is editing; its absence means the store is free. A
// holder keeps the file fresh with a [Heartbeat]; a lock older than the
// zombie threshold is presumed abandoned and may be taken over with
// [Manager.ForceAcquire] once a person has agreed to it.
//
// # Races
//
// Acquisition is check-then-act: [Manager.Decide] reads the file and then
// writes it. Two processes deciding at the same moment can both observe an
// absent lock and both believe they hold it. This window is accepted. The
// lock coordinates people working at human pace over a single shared folder,
// and network filesystems do not offer an exclusive-create primitive that
// can be relied upon across SMB/NFS clients. Neither the store nor the lock
// file is guarded by OS file locking.
package lock
