// Package kvstore provides persistent key-value storage with change
// notifications, backed by SQLite.
//
// Values are opaque JSON documents keyed by name (studySession, authToken).
// Subscribers receive the names of keys whose value changed, including
// writes committed by other processes such as the CLI: the watcher compares
// PRAGMA data_version on a pinned connection, is nudged by fsnotify events
// on the database directory, and falls back to polling. Notifications carry
// only the key; consumers re-read storage rather than trusting a payload.
//
// After Close every operation returns services.ErrInvalidated.
package kvstore
