// Package entities provides the client-side Entity Store: durable, keyed and
// indexed storage of domain records per entity type.
//
// # Overview
//
// Records are kept in the entities table with their JSON body. Secondary
// indexes (city, status, serial number, ...) are derived from the body on
// every write and stored in entity_index, so they can never drift from the
// record. The id_map table remembers which local id became which remote id
// after reconciliation, so a stale local id held by the UI still resolves.
//
// # Atomicity
//
// SQLiteRepository works over a dbx.DBTX. Given a *sql.DB every method opens
// its own transaction; given a *sql.Tx it joins the caller's transaction.
// Services and the sync engine rely on the latter to combine store writes
// with queue writes.
//
// Typical Usage
//
//	store := entities.NewSQLiteRepository(db)
//	id, _ := store.NextLocalID(ctx)
//	_ = store.Put(ctx, &models.Record{Type: models.EntityTask, ID: id, Fields: fields})
//	open, _ := store.FindBy(ctx, models.EntityTask, "status", "new")
package entities
