// Package syncer replays the sync queue against the backend.
//
// A drain pass groups pending entries into lineages, one per (type, id), and
// sends each lineage strictly in sequence order while independent lineages
// run concurrently. Creates are reconciled on acknowledgement: the local id
// is rewritten to the server id in the store, in later queue entries and in
// reference fields of other records, all in one transaction.
//
// Remote errors are classified once (see Classify) before any bookkeeping:
// retryable failures are rescheduled with capped exponential backoff,
// terminal ones are dropped from the queue and the record is flagged out of
// sync. Local storage failures stop the pass and are never retried here.
package syncer
