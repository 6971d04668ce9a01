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

// Package index implements the index command.
package index

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/pkg/source"
)

// Result is the JSON payload of the index command.
type Result struct {
	File      string              `json:"file"`
	Checksum  string              `json:"checksum"`
	Positions map[string][]string `json:"positions,omitempty"`
	Query     *Query              `json:"query,omitempty"`
}

// Query is the outcome of --after or --before.
type Query struct {
	Marker    string `json:"marker"`
	Direction string `json:"direction"`
	From      string `json:"from"`
	Found     bool   `json:"found"`
	At        string `json:"at,omitempty"`
}

// NewCommand creates the index command
func NewCommand() *cobra.Command {
	var (
		marker string
		after  string
		before string
	)

	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Show marker positions in a document",
		Long: `Index reads a document the way the workflow loader does and reports the
line:column of every structural marker (< > ' " and line ends). Columns
count characters, and CR, LF and CRLF all end a line.

With --after or --before it answers a nearest-neighbour query instead:
the first marker strictly after, or the last strictly before, a location.`,
		Example: `  vstack index flow.xml
  vstack index flow.xml --marker '<'
  vstack index flow.xml --marker '>' --after 3:5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if after != "" && before != "" {
				return shared.NewInvalidWorkflowError("invalid query", fmt.Errorf("--after and --before are mutually exclusive"))
			}
			return run(cmd.OutOrStdout(), args[0], marker, after, before)
		},
	}

	cmd.Flags().StringVarP(&marker, "marker", "m", "", `Marker to report: < > ' " or \n (default: all)`)
	cmd.Flags().StringVar(&after, "after", "", "Find the first marker strictly after line:column")
	cmd.Flags().StringVar(&before, "before", "", "Find the last marker strictly before line:column")

	return cmd
}

func run(out io.Writer, path, marker, after, before string) error {
	markers := source.Markers
	if marker != "" {
		m, err := source.ParseMarker(marker)
		if err != nil {
			return shared.NewInvalidWorkflowError("invalid marker", err)
		}
		markers = []source.Marker{m}
	}

	f, err := os.Open(path)
	if err != nil {
		return shared.NewExecutionError("failed to open document", err)
	}
	defer f.Close()

	idx := source.NewIndex(f)
	sum, err := source.ChecksumReader(idx)
	if err != nil {
		return shared.NewExecutionError("failed to read document", err)
	}
	res := Result{File: path, Checksum: fmt.Sprintf("%x", sum)}

	if q := after + before; q != "" {
		if len(markers) != 1 {
			return shared.NewInvalidWorkflowError("invalid query", fmt.Errorf("--after and --before need --marker"))
		}
		from, err := source.ParseDocumentLocation(q)
		if err != nil {
			return shared.NewInvalidWorkflowError("invalid location", err)
		}
		query := &Query{Marker: markers[0].String(), From: from.String(), Direction: "after"}
		var at source.DocumentLocation
		if after != "" {
			at, query.Found = idx.FindAfter(markers[0], from)
		} else {
			query.Direction = "before"
			at, query.Found = idx.FindBefore(markers[0], from)
		}
		if query.Found {
			query.At = at.String()
		}
		res.Query = query
	} else {
		res.Positions = make(map[string][]string, len(markers))
		for _, m := range markers {
			locs := idx.Positions(m)
			strs := make([]string, len(locs))
			for i, l := range locs {
				strs[i] = l.String()
			}
			res.Positions[m.String()] = strs
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, "index", res)
	}
	render(out, res, markers)
	return nil
}

func render(out io.Writer, res Result, markers []source.Marker) {
	fmt.Fprintln(out, shared.Header.Render(res.File)+" "+shared.Muted.Render("sha256:"+res.Checksum))

	if q := res.Query; q != nil {
		if !q.Found {
			fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("no %s %s %s", q.Marker, q.Direction, q.From)))
			return
		}
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s %s %s: %s", q.Marker, q.Direction, q.From, q.At)))
		return
	}

	rows := make([][]string, 0, len(markers))
	for _, m := range markers {
		locs := res.Positions[m.String()]
		rows = append(rows, []string{m.String(), fmt.Sprint(len(locs)), strings.Join(locs, " ")})
	}
	fmt.Fprintln(out, shared.RenderTable([]string{"MARKER", "COUNT", "POSITIONS"}, rows))
}
