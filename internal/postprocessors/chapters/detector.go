// Package chapters segments long documents on chapter headings.
package chapters

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Chapter is one section of a document, starting at its marker.
type Chapter struct {
	// Number is the canonical chapter number. Zero means unspecified.
	Number int

	// Marker is the matched heading, e.g. "CHAPTER IV".
	Marker string

	// Offset is the byte offset of the marker in the source text.
	Offset int

	// Text runs from the marker to the next marker or end of text.
	Text string
}

type numbering int

const (
	roman numbering = iota
	digit
	word
)

type pattern struct {
	re   *regexp.Regexp
	kind numbering
}

// Patterns in priority order. Earlier patterns win at an identical offset.
var patterns = []pattern{
	{regexp.MustCompile(`CHAPTER\s+([IVXLCDM]+)\b`), roman},
	{regexp.MustCompile(`CHAPTER\s+(\d+)\b`), digit},
	{regexp.MustCompile(`Chapter\s+(\d+)\b`), digit},
	{regexp.MustCompile(`CHAPTER\s+([A-Z][A-Za-z]+(?:-[A-Za-z]+)?)\b`), word},
}

// Marker is a detected chapter heading.
type Marker struct {
	Number int
	Text   string
	Offset int
}

// Markers returns every chapter heading in text, ordered by offset.
// Matches at the same offset are collapsed to the first pattern's match.
func Markers(text string) []Marker {
	var markers []Marker
	seen := make(map[int]bool)

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			offset := loc[0]
			if seen[offset] {
				continue
			}
			n, ok := parseNumber(text[loc[2]:loc[3]], p.kind)
			if !ok {
				continue
			}
			seen[offset] = true
			markers = append(markers, Marker{
				Number: n,
				Text:   text[loc[0]:loc[1]],
				Offset: offset,
			})
		}
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].Offset < markers[j].Offset
	})

	return markers
}

// Detect splits text into chapters. Fewer than two markers means the text is
// not split: nil is returned.
func Detect(text string) []Chapter {
	markers := Markers(text)
	if len(markers) < 2 {
		return nil
	}

	chapters := make([]Chapter, len(markers))
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].Offset
		}
		chapters[i] = Chapter{
			Number: m.Number,
			Marker: m.Text,
			Offset: m.Offset,
			Text:   text[m.Offset:end],
		}
	}

	return chapters
}

// Split is like Detect but always returns at least one chapter: when the text
// has fewer than two markers it is returned whole with Number 0.
func Split(text string) []Chapter {
	if chapters := Detect(text); chapters != nil {
		return chapters
	}
	return []Chapter{{Text: text}}
}

func parseNumber(s string, kind numbering) (int, bool) {
	switch kind {
	case roman:
		n := RomanToInt(s)
		return n, n > 0
	case digit:
		n, err := strconv.Atoi(s)
		return n, err == nil
	case word:
		return WordToInt(s), true
	}
	return 0, false
}

var romanValues = map[byte]int{
	'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000,
}

// RomanToInt converts a roman numeral, honouring subtractive notation
// (IV = 4, XC = 90). Characters outside IVXLCDM yield 0.
func RomanToInt(s string) int {
	s = strings.ToUpper(s)
	total, prev := 0, 0
	for i := 0; i < len(s); i++ {
		v, ok := romanValues[s[i]]
		if !ok {
			return 0
		}
		if prev > 0 && v > prev {
			total += v - 2*prev
		} else {
			total += v
		}
		prev = v
	}
	return total
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"twenty-one": 21, "twenty-two": 22, "twenty-three": 23, "twenty-four": 24,
	"twenty-five": 25, "twenty-six": 26, "twenty-seven": 27, "twenty-eight": 28,
	"twenty-nine": 29, "thirty": 30,
}

// WordToInt converts a spelled-out number from one to thirty, in any case.
// Unknown words yield 1.
func WordToInt(s string) int {
	if n, ok := numberWords[strings.ToLower(s)]; ok {
		return n
	}
	return 1
}
