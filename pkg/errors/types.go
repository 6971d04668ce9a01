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
	"fmt"
)

// ValidationError represents user input validation failures.
// Use this for invalid configuration values, malformed arguments, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "logical thread", "state")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "workers.max_threads")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

// SymbolError describes symbol data that cannot be handed to a debugger:
// an empty or unsafe file name, or coordinates outside the representable range.
// A SymbolError never aborts execution; the affected state is disabled instead.
type SymbolError struct {
	// File is the source file the symbol refers to
	File string

	// Field names the offending part of the symbol (e.g., "file", "start_line")
	Field string

	// Value is the rejected value, if numeric
	Value int

	// Reason explains why the value was rejected
	Reason string
}

// Error implements the error interface.
func (e *SymbolError) Error() string {
	if e.Field == "file" {
		return fmt.Sprintf("invalid symbol file %q: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("invalid symbol %s=%d in %q: %s", e.Field, e.Value, e.File, e.Reason)
}

// ErrorType implements ErrorClassifier.
func (e *SymbolError) ErrorType() string { return "symbol" }

// IsRetryable implements ErrorClassifier.
func (e *SymbolError) IsRetryable() bool { return false }

// InvariantError reports an internal-consistency fault: a leave without a
// matching enter, an out-of-turn handshake command, or a query for an
// untracked marker. It is raised with panic and is not meant to be recovered
// locally.
type InvariantError struct {
	// Component is the part of the system that detected the fault
	Component string

	// Message describes the violated invariant
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Component, e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *InvariantError) ErrorType() string { return "invariant" }

// IsRetryable implements ErrorClassifier.
func (e *InvariantError) IsRetryable() bool { return false }

// ResourceError reports that a process-wide resource could not be acquired,
// such as a worker for a new logical thread.
type ResourceError struct {
	// Resource is what could not be acquired
	Resource string

	// Limit is the configured ceiling, if one was hit
	Limit int

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("cannot acquire %s: limit of %d reached", e.Resource, e.Limit)
	}
	if e.Cause != nil {
		return fmt.Sprintf("cannot acquire %s: %v", e.Resource, e.Cause)
	}
	return fmt.Sprintf("cannot acquire %s", e.Resource)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ResourceError) ErrorType() string { return "resource" }

// IsRetryable implements ErrorClassifier.
func (e *ResourceError) IsRetryable() bool { return false }
