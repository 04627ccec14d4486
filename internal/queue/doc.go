// Package queue persists cards that could not be submitted to the card
// backend so they can be replayed later.
//
// The Store appends entries in insertion order and hands them back
// oldest-first; entries leave the queue only when a replay succeeds or the
// user clears it. Once closed, every call returns services.ErrInvalidated so
// the submission pipeline can tell the user to restart instead of silently
// losing cards.
//
// When you add columns, update schema.sql and bump schemaVersion.
package queue
