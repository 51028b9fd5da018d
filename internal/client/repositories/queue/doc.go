// Package queue persists the Sync Queue: an append-only, strictly ordered
// log of local mutations waiting to be replayed against the backend.
//
// Entries live in the sync_queue table next to the entity store in the same
// database file, so a service can write a record and enqueue its mutation in
// one transaction. The sequence number is an AUTOINCREMENT column; it is
// assigned at enqueue time and never reused, even after Clear.
package queue
