// Package timestamp extracts bracketed playback-time markers embedded in
// chat text, e.g. "the speaker covers this at [1:23]".
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
)

// Marker forms recognized in free text:
//
//	[M:SS]     single-digit or two-digit minutes, exactly two-digit seconds
//	[H:MM:SS]  one- or two-digit hours, exactly two-digit minutes and seconds
//
// Anything else inside brackets (wrong digit counts, missing colon) is not
// a marker and is left as plain text.
var markerRegex = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?::(\d{2}))?\]`)

// Match is one recognized marker, in order of appearance.
type Match struct {
	// Literal is the matched text including brackets, e.g. "[01:02:03]".
	Literal string

	// Seconds is the absolute playback position the marker encodes.
	Seconds int

	// Start and End are byte offsets of Literal within the scanned text.
	Start int
	End   int
}

// Extract scans text left to right and returns every non-overlapping marker
// with its literal and computed seconds, preserving order of appearance.
func Extract(text string) []Match {
	idx := markerRegex.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(idx))
	for _, m := range idx {
		literal := text[m[0]:m[1]]
		first, _ := strconv.Atoi(text[m[2]:m[3]])
		second, _ := strconv.Atoi(text[m[4]:m[5]])

		var seconds int
		if m[6] >= 0 {
			// Three groups: H:MM:SS.
			third, _ := strconv.Atoi(text[m[6]:m[7]])
			seconds = first*3600 + second*60 + third
		} else {
			// Two groups: M:SS.
			seconds = first*60 + second
		}

		matches = append(matches, Match{
			Literal: literal,
			Seconds: seconds,
			Start:   m[0],
			End:     m[1],
		})
	}
	return matches
}

// Contains reports whether text holds at least one marker.
func Contains(text string) bool {
	return markerRegex.MatchString(text)
}

// Format renders an absolute second count in the shortest marker form,
// without brackets: 83 -> "1:23", 3723 -> "1:02:03".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
