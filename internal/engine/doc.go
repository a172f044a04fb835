// Package engine applies replicated sync records to the local store.
//
// ARCHITECTURE:
//
// Per-item pipeline (ItemProcessor):
//  1. Decode the item payload into a change descriptor (payload.Decode)
//  2. Look up the descriptor's type in the schema catalog
//  3. Resolve the target object by (type, guid), or start a fresh one
//  4. Apply each field, in payload order, through the field's setter
//  5. Commit: check required and unique fields, then write durably
//
// Any step may fail; the failure becomes the item's verdict (CONFLICT for
// data problems, ERROR for local faults) and the next item still runs.
//
// Per-record (RecordProcessor):
// Items are applied strictly in record order, since later items may
// reference objects created by earlier ones. Each item commits on its own;
// the record is COMMITTED only when every item is SYNCHRONIZED. A guid that
// already has a COMMITTED verdict is answered ALREADY_COMMITTED with no
// writes.
//
// Orchestration (Ingestor):
// ProcessRecord screens accepted types, serializes work per record guid,
// and turns hard faults into a FAILED verdict so the sender always gets an
// answer. ProcessOutcome runs on the sending node and folds the parent's
// verdict back into its outbound queue; ProcessOutcomeFrom keeps verdicts
// from other servers per server. Outbox stages local changes into that
// queue.
//
// Different record guids may be processed concurrently (ProcessBatch).
package engine
