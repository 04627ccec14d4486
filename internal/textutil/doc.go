// Package textutil provides small text helpers shared by the caption engine.
//
// The primary use cases are:
//   - Detecting Han characters to pick segmentation and phonetic routing
//   - Normalizing rendered caption text before value comparison
//   - Sanitizing free-form metadata into card tags
//
// Lengths are always measured in runes, never bytes, so a two-character
// Chinese word has length 2.
package textutil
