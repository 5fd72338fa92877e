// Package dispatch runs the event read loop and launches commands for matching listeners.
//
// The dispatcher reads events from a Source one at a time, tests each event
// name against every listener in declaration order, and for each match starts
// a task that hands the listener's command and the event payload to a Runner.
//
// Key features:
//   - Single read loop; events are matched in arrival order
//   - Payload computed once per event and shared by every matching listener
//   - Bounded concurrency: at most MaxConcurrentTasks tasks in flight (default 8)
//   - Non-blocking admission: a match with no free permit is dropped and logged
//   - Every permit is released when its task ends, whatever the outcome
//
// Error handling:
//   - Decode failure (message is not a single-key object) → logged, loop continues
//   - Read failure → logged, loop continues
//   - Source closed (io.EOF) → Run returns nil
//   - Command failure or timeout → logged with the task ID, other tasks unaffected
//
// Limitations:
//   - Dropped dispatches are not queued or retried
//   - In-flight tasks cannot be cancelled from outside; the executor timeout bounds them
package dispatch
