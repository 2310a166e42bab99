// Package stores persists recipe executions in SQLite: the per-execution
// step queue, step results, execution status, the append-only journal and
// site settings written by step handlers.
//
// Every state change that pairs a queue entry with its result record is
// made in a single transaction, so a crash never leaves a removed queue
// entry without a finalized result. A claimed entry is never handed out
// again; one orphaned by a crash is recovered only by RequeueStale.
package stores
