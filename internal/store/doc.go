// Package store provides SQLite-backed durable storage for the task store
// registry and each store's activity log.
//
// # Tables
//
//   - task_stores: one row per user, holding the store directory, the
//     secret id and the raw extras text last applied.
//   - activity_log: messages and errors recorded against a store.
//
// # Activity Deduplication
//
// Activity entries are content-addressed: ContentHash covers the
// NFC-normalized message and its severity. UNIQUE(store_id, content_hash)
// turns a repeated message into a count increment and a last-seen refresh.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 UTC text.
package store
