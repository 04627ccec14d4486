// Package language normalizes language codes used by translation settings
// and deck metadata. Parsing is delegated to golang.org/x/text/language so
// ISO 639-1, ISO 639-2, and full BCP 47 tags all reduce to one base code.
package language
