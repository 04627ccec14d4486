// Package notifications delivers card and queue events via pluggable
// notifiers.
//
// Two transports exist: page toasts over the host bridge, which the learner
// sees in place, and ntfy push notifications using the topic configured in
// config.toml. Each degrades to a no-op when unavailable. Enumerated event
// types keep the wording consistent between the engine, the daemon, and the
// CLI.
//
// All callers depend only on the Service interface; use Multi to fan out.
package notifications
