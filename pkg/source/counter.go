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
	"fmt"

	"github.com/tombee/vstack/pkg/errors"
)

// OneBasedCounter is a line or column counter whose value never drops below one.
type OneBasedCounter struct {
	value int
}

// NewOneBasedCounter returns a counter starting at 1.
func NewOneBasedCounter() OneBasedCounter {
	return OneBasedCounter{value: 1}
}

// CounterFrom returns a counter holding v. v must be at least 1.
func CounterFrom(v int) (OneBasedCounter, error) {
	if v < 1 {
		return OneBasedCounter{}, &errors.ValidationError{
			Field:   "counter",
			Message: fmt.Sprintf("one-based value must be >= 1, got %d", v),
		}
	}
	return OneBasedCounter{value: v}, nil
}

// Value returns the current value. The zero counter reads as 1.
func (c OneBasedCounter) Value() int {
	if c.value < 1 {
		return 1
	}
	return c.value
}

// Increment advances the counter by one.
func (c *OneBasedCounter) Increment() {
	c.value = c.Value() + 1
}

// Reset returns the counter to 1.
func (c *OneBasedCounter) Reset() {
	c.value = 1
}
