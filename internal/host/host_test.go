package host

import (
	"testing"
	"time"
)

func TestIsWatchPage(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://www.youtube.com/watch/abc", true},
		{"https://www.youtube.com/", false},
		{"https://www.youtube.com/watchlater", false},
		{"https://www.youtube.com/results?search_query=x", false},
		{"/watch?v=abc", true},
		{"", false},
	}
	for _, tc := range tests {
		if got := IsWatchPage(tc.location, "/watch"); got != tc.want {
			t.Errorf("IsWatchPage(%q) = %v, want %v", tc.location, got, tc.want)
		}
	}
}

func TestVideoIDFromURL(t *testing.T) {
	if got := VideoIDFromURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10"); got != "dQw4w9WgXcQ" {
		t.Fatalf("VideoIDFromURL = %q", got)
	}
	if got := VideoIDFromURL("::bad"); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster[int](1)
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()

	b.Publish(1)
	b.Publish(2)
	if got := <-first; got != 1 {
		t.Fatalf("first got %d", got)
	}
	select {
	case v := <-first:
		t.Fatalf("full buffer should drop, got %d", v)
	case <-time.After(10 * time.Millisecond):
	}

	cancelSecond()
	cancelSecond()
	if _, ok := <-second; ok {
		// drain the buffered value
		if _, ok := <-second; ok {
			t.Fatal("cancelled channel should be closed")
		}
	}
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}

	b.Close()
	if _, ok := <-first; ok {
		t.Fatal("closed broadcaster should close subscribers")
	}
	cancelFirst()
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("late subscriber should get a closed channel")
	}
}
