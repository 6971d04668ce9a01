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
	"bytes"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/text/cases"

	"github.com/tombee/vstack/pkg/errors"
)

// EndOfLine is the end column meaning "through the rest of the line".
const EndOfLine = math.MaxInt32

// SourceLocation is an immutable file span with an optional content checksum.
// Two locations are equal when their case-folded file paths, all four
// coordinates, and checksum bytes match.
type SourceLocation struct {
	file        string
	startLine   int
	startColumn int
	endLine     int
	endColumn   int
	checksum    []byte
}

// NewSourceLocation validates coordinates and returns a location.
// All coordinates must be >= 1, startLine <= endLine, and on a single line
// startColumn <= endColumn unless endColumn is EndOfLine.
func NewSourceLocation(file string, startLine, startColumn, endLine, endColumn int) (SourceLocation, error) {
	for _, c := range []struct {
		field string
		value int
	}{
		{"start_line", startLine},
		{"start_column", startColumn},
		{"end_line", endLine},
		{"end_column", endColumn},
	} {
		if c.value < 1 {
			return SourceLocation{}, &errors.ValidationError{
				Field:   c.field,
				Message: fmt.Sprintf("must be >= 1, got %d", c.value),
			}
		}
	}
	if startLine > endLine {
		return SourceLocation{}, &errors.ValidationError{
			Field:   "end_line",
			Message: fmt.Sprintf("end line %d precedes start line %d", endLine, startLine),
		}
	}
	if startLine == endLine && startColumn > endColumn {
		return SourceLocation{}, &errors.ValidationError{
			Field:   "end_column",
			Message: fmt.Sprintf("end column %d precedes start column %d", endColumn, startColumn),
		}
	}
	return SourceLocation{
		file:        file,
		startLine:   startLine,
		startColumn: startColumn,
		endLine:     endLine,
		endColumn:   endColumn,
	}, nil
}

// FromRange builds a location covering r in file.
func FromRange(file string, r DocumentRange) (SourceLocation, error) {
	return NewSourceLocation(file, r.Start.Line, r.Start.Column, r.End.Line, r.End.Column)
}

// WithChecksum returns a copy of l carrying sum.
func (l SourceLocation) WithChecksum(sum []byte) SourceLocation {
	l.checksum = bytes.Clone(sum)
	return l
}

// File returns the file path as given.
func (l SourceLocation) File() string { return l.file }

// StartLine returns the first line.
func (l SourceLocation) StartLine() int { return l.startLine }

// StartColumn returns the first column.
func (l SourceLocation) StartColumn() int { return l.startColumn }

// EndLine returns the last line.
func (l SourceLocation) EndLine() int { return l.endLine }

// EndColumn returns the last column, possibly EndOfLine.
func (l SourceLocation) EndColumn() int { return l.endColumn }

// Checksum returns a copy of the checksum, or nil.
func (l SourceLocation) Checksum() []byte { return bytes.Clone(l.checksum) }

// IsZero reports whether l is the zero value.
func (l SourceLocation) IsZero() bool { return l.startLine == 0 }

// ToEndOfLine reports whether the span runs through the rest of its last line.
func (l SourceLocation) ToEndOfLine() bool { return l.endColumn == EndOfLine }

// Range returns the span without the file.
func (l SourceLocation) Range() DocumentRange {
	return DocumentRange{
		Start: DocumentLocation{Line: l.startLine, Column: l.startColumn},
		End:   DocumentLocation{Line: l.endLine, Column: l.endColumn},
	}
}

// Equal reports structural equality.
func (l SourceLocation) Equal(o SourceLocation) bool {
	return l.Key() == o.Key()
}

// Key returns a canonical string usable as a map key. Equal locations have
// equal keys.
func (l SourceLocation) Key() string {
	return fmt.Sprintf("%s|%d|%d|%d|%d|%s",
		foldPath(l.file), l.startLine, l.startColumn, l.endLine, l.endColumn, hex.EncodeToString(l.checksum))
}

// String returns "file:startLine:startColumn-endLine:endColumn".
func (l SourceLocation) String() string {
	end := fmt.Sprint(l.endColumn)
	if l.ToEndOfLine() {
		end = "$"
	}
	return fmt.Sprintf("%s:%d:%d-%d:%s", l.file, l.startLine, l.startColumn, l.endLine, end)
}

// foldPath normalizes case for comparison and leaves every other byte of
// the path alone. A Caser holds state, so one is created per call.
func foldPath(p string) string {
	return cases.Fold().String(p)
}
