// Package segment splits caption text into ordered, non-empty tokens.
//
// Han text goes through a statistical engine (gse with HMM by default) when
// one can be loaded. The engine is loaded at most once per Adapter; a failed
// load is remembered and the adapter falls back to one token per character
// from then on. Text without Han characters is split on whitespace. Results
// are deterministic for a given text and engine outcome.
package segment
