// Package services defines shared utilities consumed by the caption engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp deck IDs, card modes, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can decide
//     between degrading (offline copy, placeholder text) and surfacing a
//     failure.
//
// The HTTP clients for the card backend and translation endpoint live in
// the cardsvc and translate subpackages.
package services
