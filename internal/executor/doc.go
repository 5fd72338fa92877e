// Package executor runs prepared commands for matched events.
//
// Each run spawns one process, writes the event payload and a trailing
// newline to its stdin, then closes stdin so the child sees EOF. Stdout and
// stderr are shared with ned by default.
//
// Timeout handling:
//   - Each run is bounded by Options.Timeout (default 5s)
//   - When it expires, the command's process group is sent SIGTERM, then
//     SIGKILL after Options.TerminationGrace (immediately when zero)
//   - The process is always reaped before Run returns ErrTimeout
//
// Error handling:
//   - Start failure (e.g. executable not found) → ErrSpawn
//   - Payload write failure → ErrWrite, the wait still happens
//   - Wait failure other than an exit status → ErrWait
//   - Non-zero exit status → not an error, logged at debug
package executor
