// Package stores provides the persistence layer for openlift. The
// FileStore keeps one durable JSON record per environment name, written
// atomically so a crash never leaves a half-written record. The
// JournalStore keeps an append-only history of phase transitions and
// audit entries in SQLite with WAL mode.
package stores
