package lifecycle

import (
	"github.com/openlift/openlift/pkg/environment"
	"github.com/openlift/openlift/pkg/steps"
)

// Result is what a successful handler returns: the persisted final
// environment and the warnings accumulated by best-effort steps.
type Result struct {
	// Environment is the record as persisted after the operation.
	Environment environment.Environment

	// Warnings are non-fatal failures (cleanup, connectivity checks).
	Warnings []steps.Warning

	// NoOp reports that the environment was already in the target phase
	// and nothing was executed.
	NoOp bool
}
