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

import (
	"encoding/json"
	"io"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError is one structured error in a failed response.
type JSONError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// EmitJSON writes a successful response for command with payload's fields
// under "result".
func EmitJSON(w io.Writer, command string, payload any) error {
	type response struct {
		JSONResponse
		Result any `json:"result"`
	}
	return encode(w, response{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: true},
		Result:       payload,
	})
}

// EmitJSONError writes a failed response for command.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type response struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	return encode(w, response{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: false},
		Errors:       errs,
	})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
