// Package locks provides the per-environment coordination lock. The lock
// is a file colocated with the environment record, created exclusively
// and carrying the holder's identity, so exclusion holds across separate
// process invocations. A lock whose holder process is no longer running
// is reclaimed automatically; a live holder past the acquisition timeout
// surfaces as an error naming the holder.
package locks
