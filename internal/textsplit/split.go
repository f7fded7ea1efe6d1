// Package textsplit cuts document text into overlapping windows for embedding.
package textsplit

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Defaults used by ingestion.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// separators are tried in order when looking for a place to cut a window.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", " "}

// Piece is one window of text with its byte offset in the source.
type Piece struct {
	Text   string
	Offset int
}

// Splitter cuts text into windows of at most Size characters, consecutive
// windows sharing roughly Overlap characters.
type Splitter struct {
	size    int
	overlap int
}

// New returns a Splitter. Non-positive size selects DefaultSize; overlap is
// clamped to [0, size/2].
func New(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return Splitter{size: size, overlap: overlap}
}

// Split returns the windows of text in order. Whitespace-only input yields nil.
// A window ends at the strongest separator found in its second half, or at the
// size limit when there is none.
func (s Splitter) Split(text string) []Piece {
	pos := runeStarts(text)
	n := len(pos) - 1

	var pieces []Piece
	start := 0
	for start < n {
		for start < n && isSpaceAt(text, pos[start]) {
			start++
		}
		if start >= n {
			break
		}

		end := min(start+s.size, n)
		if end < n {
			end = s.breakPoint(text, pos, start, end)
		}

		chunk := strings.TrimRightFunc(text[pos[start]:pos[end]], unicode.IsSpace)
		if chunk != "" {
			pieces = append(pieces, Piece{Text: chunk, Offset: pos[start]})
		}
		if end >= n {
			break
		}

		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = alignToWord(text, pos, next, end)
	}
	return pieces
}

// breakPoint returns the rune index just after the best separator in
// [start+size/2, end), or end when no separator is found.
func (s Splitter) breakPoint(text string, pos []int, start, end int) int {
	lo := start + (end-start)/2
	window := text[pos[lo]:pos[end]]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return runeIndex(pos, pos[lo]+i+len(sep))
		}
	}
	return end
}

// alignToWord moves i forward to the start of the next word so an overlapped
// window does not begin mid-word. It never moves past limit.
func alignToWord(text string, pos []int, i, limit int) int {
	if i == 0 || isSpaceAt(text, pos[i-1]) {
		return i
	}
	for j := i; j < limit; j++ {
		if isSpaceAt(text, pos[j]) {
			return j
		}
	}
	return i
}

// runeStarts returns the byte offset of every rune plus len(text).
func runeStarts(text string) []int {
	pos := make([]int, 0, len(text)+1)
	for i := range text {
		pos = append(pos, i)
	}
	return append(pos, len(text))
}

func runeIndex(pos []int, byteOff int) int {
	return sort.SearchInts(pos, byteOff)
}

func isSpaceAt(text string, off int) bool {
	r, _ := utf8.DecodeRuneInString(text[off:])
	return unicode.IsSpace(r)
}
