// Package selection tracks which caption tokens, and which characters of
// expanded tokens, the learner has marked.
//
// A Machine stores three sets: whole-token selections, per-token character
// selections, and expanded tokens. Whether a token counts as selected is
// derived (whole-token mark or at least one marked character) and never
// stored. Character selections exist only for expanded tokens; collapsing a
// token discards them. Selection and expansion are independent axes.
//
// The Debouncer separates a single activation from the first half of a
// double activation using a short window. It is driven from one goroutine;
// timer fires are delivered through a callback and matched by generation so
// a fire that raced a cancellation is ignored.
package selection
