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

// Package source maps workflow documents to precise source positions.
//
// # Locations
//
// DocumentLocation is a one-based (line, column) pair ordered line-major, and
// DocumentRange is a start/end pair of them. SourceLocation adds a file path
// and an optional content checksum; it is the unit a debugger symbol refers to.
//
// # Marker index
//
// Index wraps a document stream and passes every byte through unchanged while
// recording where the structural marker characters occur: '<', '>', '\'',
// '"' and the line end. CR and CRLF are both counted as a single line end.
// A structural parser reading through the index only learns where a token
// ended; FindBefore and FindAfter snap that to the surrounding brackets:
//
//	idx := source.NewIndex(f)
//	dec := xml.NewDecoder(idx)
//	// ... after decoding a start element ...
//	open, _ := idx.FindBefore(source.MarkerOpenAngle, idx.Location())
package source
