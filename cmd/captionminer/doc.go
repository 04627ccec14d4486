// Package main hosts the captionminer CLI entrypoint and command graph.
//
// The Cobra command tree covers two kinds of work. Commands that need the
// live caption engine (status, submit, queue maintenance, log tailing) talk
// to the daemon over its JSON-RPC socket. Commands that only touch stored
// state (session, auth, config) or stateless helpers (segment, lookup,
// decks) run in-process against the same storage and backend clients the
// daemon uses, so they keep working while the daemon is down.
package main
