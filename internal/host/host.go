// Package host defines the boundary to the page that plays the video.
//
// The page is an external, mutating data source: it owns the player, the
// native caption surface, and the document the overlay is injected into.
// Reads return the most recent mirrored state; subscriptions deliver change
// signals that may be coalesced, so consumers re-read state instead of
// trusting a signal's payload.
package host

import (
	"net/url"
	"strings"

	"captionminer/internal/cards"
	"captionminer/internal/overlay"
)

// Video describes the playing video.
type Video struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

// PointerAction is a learner interaction with the overlay.
type PointerAction string

const (
	Activate PointerAction = "activate"
	Hover    PointerAction = "hover"
	Leave    PointerAction = "leave"
	Submit   PointerAction = "submit"
)

// Pointer is one overlay interaction. Char is -1 for whole-token targets.
type Pointer struct {
	Action PointerAction
	Token  int
	Char   int
	Mode   cards.Mode
}

// ToastKind selects toast styling.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastInfo    ToastKind = "info"
	ToastError   ToastKind = "error"
)

// Toaster shows transient notices on the page.
type Toaster interface {
	Toast(kind ToastKind, message string) error
}

// Surface is the host page as seen by the engine and lifecycle manager.
type Surface interface {
	Toaster

	Location() string
	PlayerPresent() bool
	OverlayAttached() bool
	CaptionText() string
	CurrentTime() float64
	Video() Video

	SubscribeCaptions() (<-chan struct{}, func())
	SubscribePlayer() (<-chan struct{}, func())
	SubscribeNavigation() (<-chan string, func())
	SubscribePointer() (<-chan Pointer, func())

	Attach() error
	Detach() error
	Render(frame overlay.Frame) error
	ShowTooltip(tooltip overlay.Tooltip) error
}

// IsWatchPage reports whether location is a watch page under prefix.
func IsWatchPage(location, prefix string) bool {
	if location == "" {
		return false
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return false
	}
	return parsed.Path == prefix || strings.HasPrefix(parsed.Path, prefix+"/")
}

// VideoIDFromURL extracts the v query parameter of a watch URL.
func VideoIDFromURL(location string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("v")
}
