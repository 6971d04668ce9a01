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
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/tombee/vstack/pkg/errors"
)

// DocumentLocation is a one-based line and column in a document.
// Locations order line-major and compare by value.
type DocumentLocation struct {
	Line   int
	Column int
}

// NewDocumentLocation validates and returns a location.
func NewDocumentLocation(line, column int) (DocumentLocation, error) {
	if _, err := CounterFrom(line); err != nil {
		return DocumentLocation{}, errors.Wrap(err, "line")
	}
	if _, err := CounterFrom(column); err != nil {
		return DocumentLocation{}, errors.Wrap(err, "column")
	}
	return DocumentLocation{Line: line, Column: column}, nil
}

// At returns the location (line, column) and panics if either is below one.
// It is meant for literals in code and tests.
func At(line, column int) DocumentLocation {
	loc, err := NewDocumentLocation(line, column)
	if err != nil {
		panic(err)
	}
	return loc
}

// ParseDocumentLocation parses "line:column".
func ParseDocumentLocation(s string) (DocumentLocation, error) {
	lineStr, colStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DocumentLocation{}, &errors.ValidationError{
			Field:      "location",
			Message:    fmt.Sprintf("%q is not line:column", s),
			Suggestion: "use a form like 12:5",
		}
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return DocumentLocation{}, errors.Wrapf(err, "parsing line of %q", s)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return DocumentLocation{}, errors.Wrapf(err, "parsing column of %q", s)
	}
	return NewDocumentLocation(line, col)
}

// Compare returns -1, 0 or +1 ordering l against o line-major.
func (l DocumentLocation) Compare(o DocumentLocation) int {
	if c := cmp.Compare(l.Line, o.Line); c != 0 {
		return c
	}
	return cmp.Compare(l.Column, o.Column)
}

// Less reports whether l sorts before o.
func (l DocumentLocation) Less(o DocumentLocation) bool {
	return l.Compare(o) < 0
}

// String returns "line:column".
func (l DocumentLocation) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// DocumentRange is an inclusive span between two locations. Start <= End.
type DocumentRange struct {
	Start DocumentLocation
	End   DocumentLocation
}

// NewDocumentRange validates and returns a range.
func NewDocumentRange(start, end DocumentLocation) (DocumentRange, error) {
	if end.Less(start) {
		return DocumentRange{}, &errors.ValidationError{
			Field:   "range",
			Message: fmt.Sprintf("end %s precedes start %s", end, start),
		}
	}
	return DocumentRange{Start: start, End: end}, nil
}

// Contains reports whether loc lies within the range, bounds included.
func (r DocumentRange) Contains(loc DocumentLocation) bool {
	return r.Start.Compare(loc) <= 0 && loc.Compare(r.End) <= 0
}

// String returns "start-end".
func (r DocumentRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}
