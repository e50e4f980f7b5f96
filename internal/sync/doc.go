// Package sync keeps the local store consistent with the upstream content repository.
//
// A Coordinator holds the continuation cursor and runs sync rounds:
//
//   - Without a cursor it requests an initial sync, optionally narrowed to one content
//     type. With a cursor it requests the delta since that cursor.
//   - When upstream answers with the cursor already held, nothing changed and the round
//     is a no-op: neither the store nor the cursor is touched.
//   - Otherwise the four parts of the delta (upserted entries, upserted assets, deleted
//     entries, deleted assets) are applied to the store in parallel.
//   - The new cursor is adopted only after every part has been applied and, when a state
//     store is configured, persisted. A failed or cancelled round keeps the old cursor,
//     so the next round fetches the same delta again. Applies are idempotent upserts and
//     deletes, which makes that replay safe.
//
// Rounds on one Coordinator are serialized. The poller subpackage drives rounds on an
// interval for long-running processes.
package sync
