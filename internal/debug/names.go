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

package debug

import (
	"strconv"
	"strings"
	"unicode"
)

// maxNameLength bounds state and container names, in runes.
const maxNameLength = 255

// sanitizeName turns an arbitrary label into a Go-identifier-shaped name:
// characters other than letters, digits and '_' become '_', a leading digit
// gets a '_' prefix, and the result is cut to maxNameLength runes.
func sanitizeName(name, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if b.Len() == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return truncateRunes(b.String(), maxNameLength)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// uniqueName returns base, or base with the smallest "_N" suffix (N >= 2)
// not present in taken. The result never exceeds maxNameLength runes.
func uniqueName(base string, taken map[string]struct{}) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate := truncateRunes(base, maxNameLength-len(suffix)) + suffix
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
