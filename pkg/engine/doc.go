// Package engine runs parsed recipes one step at a time.
//
// # Overview
//
// A recipe is submitted through a Manager, which parses it and enqueues one
// queue entry and one pending result record per step. An Executor then
// advances the execution by exactly one step per ExecuteNextStep call:
//
//  1. Claim the earliest pending step, unless another step is still claimed.
//  2. Build a recipe.Context, with lazily enumerated bundled files.
//  3. Dispatch the context to every registered StepHandler in order.
//  4. Record success, or record failure and drain the rest of the queue.
//
// A step is successful only when no handler returned an error and at
// least one handler set Context.Executed. The first failure aborts the
// execution: remaining steps are discarded and every later call reports
// the execution as complete.
//
// # Driving executions
//
// The Executor owns no status. A Driver calls it until the queue is empty,
// either to completion (Run) or one step per execution per scheduler tick
// (Tick, Start), and records the operator-visible status:
//
//	started -> running -> success | fail | cancelled
//
// # Handlers
//
// Handlers are plain values implementing StepHandler; HandlerFunc adapts a
// function. A handler ignores steps it does not recognize and must not
// assume it is the only handler for a step name.
//
// # Events
//
// EventSink receives step progress. JournalSink persists it, MultiSink fans
// it out, and telemetry.EventPublisher streams it to subscribers. Sink
// errors are logged and never change the outcome of a step.
package engine
