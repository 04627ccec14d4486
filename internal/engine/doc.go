// Package engine runs one caption session against a host surface.
//
// An Engine owns the caption watcher, the selection machine, the
// double-activation debouncer, the tooltip, and a submission pipeline. All
// selection, token, tooltip, and render state is touched only by the
// engine's event loop goroutine; the watcher, debounce timers, lookups, and
// submissions post their results back to that loop. Rendering is a pure
// projection of selection state through the overlay package.
//
// Engines are created by the lifecycle manager for a single study session
// and are torn down, never reconfigured, when the session or page changes.
package engine
