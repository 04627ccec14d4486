// Package cards defines the study card types exchanged with the card backend
// and stored in the offline queue.
package cards
