// Package bridge exposes the host page to the daemon over a WebSocket.
//
// A small in-page script connects to the bridge endpoint, streams snapshots
// of the page (location, player presence, overlay presence, caption text,
// playback time, video metadata) and the learner's pointer interactions,
// and applies the overlay commands the daemon sends back. The Server
// mirrors the most recent page state and implements host.Surface on top of
// it, so the caption engine and lifecycle manager never see the transport.
//
// Only one page is served at a time. A new connection replaces the previous
// one, and a disconnect clears the mirrored state and signals navigation so
// the lifecycle manager tears the engine down.
//
// Messages are JSON objects with a "type" field.
//
// Inbound (page to daemon):
//
//	snapshot  location, player, overlay, caption, time, video (all optional)
//	mutation  target ("caption" or "player") plus any snapshot fields
//	navigate  url
//	activate  token, char (-1 for the whole token)
//	hover     token, char
//	leave
//	submit    mode (optional)
//
// Outbound (daemon to page):
//
//	attach, detach, render (frame), tooltip (tooltip), toast (kind, message)
//
// The in-page script stops propagation on every synthetic handler so the
// host player never sees overlay clicks.
package bridge
