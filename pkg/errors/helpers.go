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

package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. It returns nil when err is nil.
//
//	if err := cfg.Validate(); err != nil {
//	    return errors.Wrap(err, "loading config")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. It returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the error wrapped by err, if any.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New creates an error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Invariantf builds an InvariantError for component with a formatted message.
// Callers panic with the result:
//
//	panic(errors.Invariantf("logical thread", "leave %s does not match top %s", got, want))
func Invariantf(component, format string, args ...interface{}) *InvariantError {
	return &InvariantError{Component: component, Message: fmt.Sprintf(format, args...)}
}
