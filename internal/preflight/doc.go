// Package preflight provides readiness checks for the filesystem paths and
// the card backend that captionminer depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure with a hint.
//     Failures never block startup because lookups and the offline queue
//     degrade on their own.
//   - The CLI "captionminer status" command prints the same results.
package preflight
