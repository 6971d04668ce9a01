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

/*
Package cli provides the root command for the vstack CLI.

It creates the Cobra command tree and handles global concerns: version
information, persistent flags and exit codes. Individual commands live in
the internal/commands subpackages.

# Command Tree

	vstack
	├── index     Show marker positions in a document
	├── symbols   List the debug states of a workflow
	├── run       Run workflows under the debugger bridge
	├── version   Show version
	└── help      Show help (--json for machine-readable output)

# Global Flags

	--config   Path to config file
	--json     Machine-readable output
	--verbose  Debug logging
	--quiet    Errors only
*/
package cli
