// Package highlight computes word-level reveal timelines that keep on-screen
// text in step with spoken audio.
//
// Text is split on whitespace into [Segment] values. A word wrapped in the
// marker pair "**" (for example "**cat**") is important and is displayed
// without the markers. Timing is a uniform split of the utterance duration
// across its words; prosody is deliberately ignored.
package highlight

import "strings"

// Marker delimits an important word on both sides.
const Marker = "**"

// Segment is one whitespace-delimited word of an utterance.
type Segment struct {
	// Original is the word exactly as it appeared in the source text.
	Original string

	// Display is the word with the important-word markers removed.
	Display string

	// Important reports whether the word was wrapped in [Marker].
	Important bool
}

// Parse splits text on whitespace and recognises the important-word marker
// convention. Empty or all-whitespace text yields no segments.
func Parse(text string) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	segs := make([]Segment, len(words))
	for i, w := range words {
		segs[i] = parseWord(w)
	}
	return segs
}

func parseWord(w string) Segment {
	seg := Segment{Original: w, Display: w}
	if len(w) > 2*len(Marker) && strings.HasPrefix(w, Marker) && strings.HasSuffix(w, Marker) {
		seg.Important = true
		seg.Display = w[len(Marker) : len(w)-len(Marker)]
	}
	return seg
}

// StripMarkers removes every important-word marker from text, leaving the
// plain sentence to hand to a speech synthesiser.
func StripMarkers(text string) string {
	return strings.ReplaceAll(text, Marker, "")
}
