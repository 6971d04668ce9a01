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

package shared

// Global flag values, bound by the root command.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the global flag variables for
// the root command to bind.
func RegisterFlagPointers() (verbose, quiet, json *bool, config *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetVerbose reports whether --verbose was given.
func GetVerbose() bool { return verboseFlag }

// GetQuiet reports whether --quiet was given.
func GetQuiet() bool { return quietFlag }

// GetJSON reports whether --json was given.
func GetJSON() bool { return jsonFlag }

// GetConfigPath returns the --config value.
func GetConfigPath() string { return configFlag }

// SetConfigPathForTest overrides --config.
func SetConfigPathForTest(path string) { configFlag = path }

// SetJSONForTest overrides --json.
func SetJSONForTest(v bool) { jsonFlag = v }
