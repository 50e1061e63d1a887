// Package lifecycle implements the command handlers that drive an
// environment through its phases. Each handler follows the same shape:
// take the coordination lock, load the record, verify the operation is
// legal from the current phase, persist the in-progress phase, execute
// the step sequence, and persist the outcome. A failed step leaves a
// failed phase on disk with its cause; nothing is ever half-applied in
// the record.
package lifecycle
