package testsupport

import (
	"sync"
	"testing"
	"time"

	"captionminer/internal/host"
	"captionminer/internal/overlay"
)

// Toast is a recorded toast.
type Toast struct {
	Kind    host.ToastKind
	Message string
}

// Surface is an in-memory host.Surface. Setters mutate mirrored page state;
// the Emit helpers deliver subscription signals.
type Surface struct {
	mu          sync.Mutex
	location    string
	player      bool
	attached    bool
	caption     string
	currentTime float64
	video       host.Video

	attaches int
	detaches int
	frames   []overlay.Frame
	tooltips []overlay.Tooltip
	toasts   []Toast

	captions   *host.Broadcaster[struct{}]
	players    *host.Broadcaster[struct{}]
	navigation *host.Broadcaster[string]
	pointer    *host.Broadcaster[host.Pointer]
}

// NewSurface returns a surface on a watch page with the player present.
func NewSurface() *Surface {
	return &Surface{
		location: "https://www.youtube.com/watch?v=test123",
		player:   true,
		video: host.Video{
			ID:      "test123",
			URL:     "https://www.youtube.com/watch?v=test123",
			Title:   "Test Video",
			Channel: "Test Channel",
		},
		captions:   host.NewBroadcaster[struct{}](8),
		players:    host.NewBroadcaster[struct{}](8),
		navigation: host.NewBroadcaster[string](8),
		pointer:    host.NewBroadcaster[host.Pointer](64),
	}
}

func (s *Surface) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *Surface) PlayerPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Surface) OverlayAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *Surface) CaptionText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caption
}

func (s *Surface) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime
}

func (s *Surface) Video() host.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

func (s *Surface) SubscribeCaptions() (<-chan struct{}, func()) { return s.captions.Subscribe() }

func (s *Surface) SubscribePlayer() (<-chan struct{}, func()) { return s.players.Subscribe() }

func (s *Surface) SubscribeNavigation() (<-chan string, func()) { return s.navigation.Subscribe() }

func (s *Surface) SubscribePointer() (<-chan host.Pointer, func()) { return s.pointer.Subscribe() }

func (s *Surface) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	s.attaches++
	return nil
}

func (s *Surface) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.detaches++
	return nil
}

func (s *Surface) Render(frame overlay.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *Surface) ShowTooltip(tooltip overlay.Tooltip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tooltips = append(s.tooltips, tooltip)
	return nil
}

func (s *Surface) Toast(kind host.ToastKind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, Toast{Kind: kind, Message: message})
	return nil
}

// SetCaption changes the rendered caption without signalling.
func (s *Surface) SetCaption(text string) {
	s.mu.Lock()
	s.caption = text
	s.mu.Unlock()
}

// SetLocation changes the page URL without signalling.
func (s *Surface) SetLocation(location string) {
	s.mu.Lock()
	s.location = location
	s.mu.Unlock()
}

// SetPlayer toggles player presence without signalling.
func (s *Surface) SetPlayer(present bool) {
	s.mu.Lock()
	s.player = present
	s.mu.Unlock()
}

// SetCurrentTime sets playback position in seconds.
func (s *Surface) SetCurrentTime(seconds float64) {
	s.mu.Lock()
	s.currentTime = seconds
	s.mu.Unlock()
}

// SetVideo replaces the video metadata.
func (s *Surface) SetVideo(video host.Video) {
	s.mu.Lock()
	s.video = video
	s.mu.Unlock()
}

// RemoveOverlay simulates the page dropping the injected overlay and
// signals a player mutation.
func (s *Surface) RemoveOverlay() {
	s.mu.Lock()
	s.attached = false
	s.mu.Unlock()
	s.players.Publish(struct{}{})
}

// EmitCaptionMutation signals a caption subtree change.
func (s *Surface) EmitCaptionMutation() { s.captions.Publish(struct{}{}) }

// Navigate changes location and signals history navigation.
func (s *Surface) Navigate(location string) {
	s.SetLocation(location)
	s.navigation.Publish(location)
}

// EmitPointer delivers a pointer event.
func (s *Surface) EmitPointer(p host.Pointer) { s.pointer.Publish(p) }

// PointerSubscribers reports how many pointer subscriptions are open.
func (s *Surface) PointerSubscribers() int { return s.pointer.Subscribers() }

// Frames returns recorded renders.
func (s *Surface) Frames() []overlay.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]overlay.Frame(nil), s.frames...)
}

// LastFrame returns the most recent render.
func (s *Surface) LastFrame() (overlay.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return overlay.Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Tooltips returns recorded tooltip states.
func (s *Surface) Tooltips() []overlay.Tooltip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]overlay.Tooltip(nil), s.tooltips...)
}

// Toasts returns recorded toasts.
func (s *Surface) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Toast(nil), s.toasts...)
}

// AttachCounts returns how many times Attach and Detach ran.
func (s *Surface) AttachCounts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attaches, s.detaches
}

var _ host.Surface = (*Surface)(nil)

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf(format, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
