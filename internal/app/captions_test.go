package app

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoice/pkg/highlight"
)

type shown struct {
	mu      sync.Mutex
	words   []string
	indices []int
}

func (s *shown) record(tl highlight.Timeline, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = append(s.indices, i)
	if i != highlight.NoActive {
		s.words = append(s.words, tl.Segment(i).Display)
	}
}

func (s *shown) snapshot() ([]string, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.words), slices.Clone(s.indices)
}

func TestCaptions_FollowAndStop(t *testing.T) {
	t.Parallel()

	var s shown
	c := newCaptions(s.record, 5*time.Millisecond)
	c.follow("Nine **squared**")

	deadline := time.Now().Add(2 * time.Second)
	for {
		words, _ := s.snapshot()
		if len(words) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("words = %v, want both words highlighted", words)
		}
		time.Sleep(time.Millisecond)
	}
	if !c.active() {
		t.Error("last word should stay active until stop")
	}

	c.stop()
	words, indices := s.snapshot()
	if !slices.Equal(words, []string{"Nine", "squared"}) {
		t.Errorf("words = %v", words)
	}
	if indices[len(indices)-1] != highlight.NoActive {
		t.Errorf("indices = %v, want a final NoActive", indices)
	}
	if c.active() {
		t.Error("captions still active after stop")
	}
	c.stop()
}

func TestCaptions_NewFragmentReplacesOld(t *testing.T) {
	t.Parallel()

	var s shown
	c := newCaptions(s.record, time.Hour)
	c.follow("first fragment")
	c.follow("second")
	defer c.stop()

	words, indices := s.snapshot()
	want := []int{0, highlight.NoActive, 0}
	if !slices.Equal(indices, want) {
		t.Errorf("indices = %v, want %v", indices, want)
	}
	if !slices.Equal(words, []string{"first", "second"}) {
		t.Errorf("words = %v", words)
	}
}

func TestCaptions_BlankTextIgnored(t *testing.T) {
	t.Parallel()

	var s shown
	c := newCaptions(s.record, time.Millisecond)
	c.follow("   ")
	if c.active() {
		t.Error("blank fragment should not start highlighting")
	}
	if _, indices := s.snapshot(); len(indices) != 0 {
		t.Errorf("indices = %v, want none", indices)
	}
}

func TestCaptions_SetDelay(t *testing.T) {
	t.Parallel()

	c := newCaptions(func(highlight.Timeline, int) {}, 400*time.Millisecond)
	c.setDelay(250 * time.Millisecond)
	if got := c.currentDelay(); got != 250*time.Millisecond {
		t.Errorf("delay = %v, want 250ms", got)
	}
}
