// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/tombee/vstack/pkg/errors"
)

// Marker is one of the structurally significant characters an Index records.
type Marker rune

// Tracked markers. MarkerLineEnd stands for LF, CR and CRLF alike.
const (
	MarkerOpenAngle   Marker = '<'
	MarkerCloseAngle  Marker = '>'
	MarkerSingleQuote Marker = '\''
	MarkerDoubleQuote Marker = '"'
	MarkerLineEnd     Marker = '\n'
)

// Markers lists every tracked marker in a stable order.
var Markers = []Marker{MarkerOpenAngle, MarkerCloseAngle, MarkerSingleQuote, MarkerDoubleQuote, MarkerLineEnd}

// String returns a printable form of the marker.
func (m Marker) String() string {
	if m == MarkerLineEnd {
		return `\n`
	}
	return string(rune(m))
}

// ParseMarker maps a one-character string (or `\n`) to a tracked marker.
func ParseMarker(s string) (Marker, error) {
	if s == `\n` || s == "\n" {
		return MarkerLineEnd, nil
	}
	if r := []rune(s); len(r) == 1 && isTracked(Marker(r[0])) {
		return Marker(r[0]), nil
	}
	return 0, &errors.ValidationError{
		Field:      "marker",
		Message:    fmt.Sprintf("%q is not a tracked marker", s),
		Suggestion: `use one of < > ' " \n`,
	}
}

func isTracked(m Marker) bool {
	return slices.Contains(Markers, m)
}

// Index reads a document through unchanged while recording the location of
// every marker occurrence. Columns count characters, not bytes.
//
// Index implements io.Reader and io.ByteReader so a decoder reading from it
// consumes bytes exactly as they are counted. It is not safe for concurrent use.
type Index struct {
	r      *bufio.Reader
	line   OneBasedCounter
	column OneBasedCounter

	// afterCR is set after a CR so that a following LF is not counted twice.
	afterCR bool

	positions map[Marker][]DocumentLocation
}

// NewIndex wraps r.
func NewIndex(r io.Reader) *Index {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	x := &Index{
		r:         br,
		line:      NewOneBasedCounter(),
		column:    NewOneBasedCounter(),
		positions: make(map[Marker][]DocumentLocation, len(Markers)),
	}
	for _, m := range Markers {
		x.positions[m] = nil
	}
	return x
}

// Read implements io.Reader.
func (x *Index) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	for _, b := range p[:n] {
		x.observe(b)
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (x *Index) ReadByte() (byte, error) {
	b, err := x.r.ReadByte()
	if err != nil {
		return b, err
	}
	x.observe(b)
	return b, nil
}

// Peek returns the next byte without consuming or recording it.
func (x *Index) Peek() (byte, error) {
	buf, err := x.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Location returns the location of the next character to be read.
func (x *Index) Location() DocumentLocation {
	return DocumentLocation{Line: x.line.Value(), Column: x.column.Value()}
}

func (x *Index) observe(b byte) {
	switch {
	case b == '\n' && x.afterCR:
		x.afterCR = false
	case b == '\r' || b == '\n':
		x.record(MarkerLineEnd)
		x.line.Increment()
		x.column.Reset()
		x.afterCR = b == '\r'
	default:
		x.afterCR = false
		if isTracked(Marker(b)) {
			x.record(Marker(b))
		}
		// UTF-8 continuation bytes belong to the character already counted.
		if b&0xC0 != 0x80 {
			x.column.Increment()
		}
	}
}

func (x *Index) record(m Marker) {
	loc := x.Location()
	list := x.positions[m]
	if n := len(list); n > 0 && !list[n-1].Less(loc) {
		panic(errors.Invariantf("source index", "marker %s recorded out of order: %s after %s", m, loc, list[n-1]))
	}
	x.positions[m] = append(list, loc)
}

func (x *Index) list(m Marker) []DocumentLocation {
	list, ok := x.positions[m]
	if !ok {
		panic(errors.Invariantf("source index", "marker %q is not tracked", rune(m)))
	}
	return list
}

// Positions returns a copy of every recorded location of m in document order.
func (x *Index) Positions(m Marker) []DocumentLocation {
	return slices.Clone(x.list(m))
}

// FindAfter returns the first recorded occurrence of m strictly after loc.
// It panics if m is not a tracked marker.
func (x *Index) FindAfter(m Marker, loc DocumentLocation) (DocumentLocation, bool) {
	list := x.list(m)
	target := DocumentLocation{Line: loc.Line, Column: loc.Column + 1}
	i, _ := slices.BinarySearchFunc(list, target, DocumentLocation.Compare)
	if i < len(list) {
		return list[i], true
	}
	return DocumentLocation{}, false
}

// FindBefore returns the last recorded occurrence of m strictly before loc.
// It panics if m is not a tracked marker.
func (x *Index) FindBefore(m Marker, loc DocumentLocation) (DocumentLocation, bool) {
	list := x.list(m)
	i, _ := slices.BinarySearchFunc(list, loc, DocumentLocation.Compare)
	if i > 0 {
		return list[i-1], true
	}
	return DocumentLocation{}, false
}
