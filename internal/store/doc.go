// Package store provides SQLite-backed durable storage for medsync.
//
// The store holds three groups of tables:
//   - Sync records/items: the outbound replication queue of this node
//   - Import records/items: this node's verdicts on inbound records, at most
//     one per record guid
//   - Entities and entity keys: the clinical objects ingestion writes, with
//     natural keys for unique fields
//
// # Ordering
//
// Queue queries are ordered by creation time, then insertion id, so results
// are stable for records created within the same clock tick.
//
// # Concurrency
//
// The database runs in WAL mode with a single connection, which serializes
// all writes. Lock provides an advisory per-guid lock on top of that, so a
// caller can hold a record guid across several statements.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
