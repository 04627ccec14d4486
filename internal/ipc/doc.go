// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and conversions
// between daemon models and lightweight wire representations. Submissions
// and queue syncs can take as long as the backend timeout, so the client
// leaves deadlines to the daemon side.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
