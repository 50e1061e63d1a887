// Package environment defines the environment entity and its lifecycle
// state machine. An environment is a named deployment target; its phase
// records how far through the lifecycle (provision -> configure ->
// release -> run -> destroy) it has progressed. Transition functions
// never mutate in place: each returns a new value in the next phase.
package environment
