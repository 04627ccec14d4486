// Package daemon coordinates the long-running captionminer process.
//
// It wires configuration, key-value storage, the offline card queue, the
// WebSocket bridge, backend clients, the lookup resolver, the submission
// pipeline, and the lifecycle manager into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon exposes
// status, submission, and queue maintenance helpers to the IPC layer and
// runs the periodic offline queue sync.
//
// Keep orchestration logic here: caption handling lives in engine, session
// gating in lifecycle, and card assembly in submission.
package daemon
