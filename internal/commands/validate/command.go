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

// Package validate implements the validate command.
package validate

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/commands/completion"
	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/workflow"
	"github.com/tombee/vstack/pkg/errors"
)

// FileResult summarizes one valid workflow.
type FileResult struct {
	File       string   `json:"file"`
	Name       string   `json:"name"`
	Activities int      `json:"activities"`
	Defines    []string `json:"defines,omitempty"`
	Variables  []string `json:"variables,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate workflow XML",
		Long: `Validate checks that workflow files are well-formed XML, use known
activities with their required attributes, reference defined components
and contain no recursive Invoke chains. Nothing is executed.

See also: vstack symbols, vstack run`,
		Example: `  vstack validate flow.xml
  vstack validate --json flows/*.xml`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completion.CompleteWorkflowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
		},
	}
	return cmd
}

func runValidate(out, errOut io.Writer, paths []string) error {
	var (
		results []FileResult
		errs    []shared.JSONError
	)
	for _, path := range paths {
		doc, err := workflow.LoadFile(path)
		if err != nil {
			errs = append(errs, toJSONError(path, err))
			continue
		}
		results = append(results, summarize(doc))
	}

	if shared.GetJSON() {
		if len(errs) > 0 {
			if err := shared.EmitJSONError(out, "validate", errs); err != nil {
				return err
			}
		} else if err := shared.EmitJSON(out, "validate", results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s: %d activities", r.File, r.Activities)))
		}
		for _, e := range errs {
			fmt.Fprintf(errOut, "%s %s\n", shared.StatusError.Render(shared.SymbolError), e.Message)
			if e.Suggestion != "" {
				fmt.Fprintf(errOut, "  %s\n", shared.Muted.Render(e.Suggestion))
			}
		}
	}

	if len(errs) > 0 {
		return shared.NewInvalidWorkflowError("validation failed", fmt.Errorf("%d of %d workflow(s) invalid", len(errs), len(paths)))
	}
	return nil
}

func toJSONError(path string, err error) shared.JSONError {
	je := shared.JSONError{
		Type:    errors.TypeOf(err),
		Message: fmt.Sprintf("%s: %v", path, err),
	}
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		je.Suggestion = verr.Suggestion
	}
	return je
}

func summarize(doc *workflow.Document) FileResult {
	r := FileResult{
		File:       doc.Path,
		Name:       doc.Name,
		Activities: len(doc.Activities()),
		Variables:  doc.Variables,
	}
	for name := range doc.Defines {
		r.Defines = append(r.Defines, name)
	}
	slices.Sort(r.Defines)
	return r
}
