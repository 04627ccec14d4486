// Package lookup resolves hover and submission targets to a phonetic line
// and a definition line, and drives the tooltip shown for hovered units.
//
// Routing is short-word first: texts of at most ShortWordMax characters are
// looked up in the dictionary, and only when that yields nothing (or the
// text is longer) is the translation provider called, exactly once. The
// dictionary is never consulted in parallel with the translator.
// Translation failures degrade to a fixed placeholder string; Resolve never
// returns an error.
package lookup
