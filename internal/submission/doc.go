// Package submission turns a selection into a card.
//
// Pipeline.Submit assembles a DraftCard from the selected target, the current
// caption and the host video snapshot, enriches it through the lookup
// resolver, and creates it through the card service. When the card service
// fails the draft is kept as a local copy in the offline queue and the user
// is told it was saved offline; only a failure of both paths surfaces as an
// error notification.
//
// Syncer replays the offline queue against the card service, oldest first.
package submission
