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

package workflow

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tombee/vstack/internal/debug"
	"github.com/tombee/vstack/pkg/errors"
	"github.com/tombee/vstack/pkg/source"
)

// LoadFile reads and parses the workflow at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open workflow %s", path)
	}
	defer f.Close()
	return Load(f, path)
}

// Load parses a workflow document. Each activity's location spans from the
// '<' of its start tag to the '>' of its end tag, found by reading the XML
// through a source.Index.
func Load(r io.Reader, path string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read workflow %s", path)
	}

	doc := &Document{
		Path:     path,
		Defines:  make(map[string]*Activity),
		Checksum: source.Checksum(data),
	}

	idx := source.NewIndex(bytes.NewReader(data))
	dec := xml.NewDecoder(idx)

	type open struct {
		activity *Activity
		start    source.DocumentLocation
	}
	var stack []open

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errors.ValidationError{
				Field:   path,
				Message: fmt.Sprintf("malformed XML at %s: %v", idx.Location(), err),
			}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			gt, _ := idx.FindBefore(source.MarkerCloseAngle, idx.Location())
			lt, ok := idx.FindBefore(source.MarkerOpenAngle, gt)
			if !ok {
				return nil, errors.New("start tag without '<'")
			}

			a, err := newActivity(t, path)
			if err != nil {
				return nil, err
			}
			if len(stack) == 0 {
				if doc.Root != nil {
					return nil, &errors.ValidationError{Field: path, Message: "more than one root element"}
				}
				if a.Kind != KindWorkflow {
					return nil, &errors.ValidationError{
						Field:   path,
						Message: fmt.Sprintf("root element must be %s, got %s", KindWorkflow, a.Kind),
					}
				}
				doc.Root = a
			} else {
				parent := stack[len(stack)-1].activity
				if err := checkParent(parent, a, path); err != nil {
					return nil, err
				}
				a.parent = parent
				parent.children = append(parent.children, a)
			}
			stack = append(stack, open{activity: a, start: lt})

		case xml.EndElement:
			gt, _ := idx.FindBefore(source.MarkerCloseAngle, idx.Location())
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			loc, err := source.NewSourceLocation(path, top.start.Line, top.start.Column, gt.Line, gt.Column)
			if err != nil {
				return nil, errors.Wrapf(err, "locate %s", top.activity.Kind)
			}
			top.activity.Location = loc.WithChecksum(doc.Checksum)
		}
	}

	if doc.Root == nil {
		return nil, &errors.ValidationError{Field: path, Message: "document has no root element"}
	}
	doc.Name = doc.Root.Name
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := doc.link(); err != nil {
		return nil, err
	}
	return doc, nil
}

func newActivity(t xml.StartElement, path string) (*Activity, error) {
	kind := Kind(t.Name.Local)
	if !slices.Contains(knownKinds, kind) {
		return nil, &errors.ValidationError{
			Field:      path,
			Message:    fmt.Sprintf("unknown activity %q", t.Name.Local),
			Suggestion: "use one of Workflow, Define, Sequence, Parallel, Assign, Log, Invoke, Break",
		}
	}

	a := &Activity{Kind: kind, Attrs: make(map[string]string, len(t.Attr))}
	for _, attr := range t.Attr {
		a.Attrs[attr.Name.Local] = attr.Value
	}
	a.Name = a.Attrs["name"]

	required := map[Kind][]string{
		KindDefine: {"name"},
		KindAssign: {"to", "value"},
		KindLog:    {"message"},
		KindInvoke: {"ref"},
	}
	for _, attr := range required[kind] {
		if a.Attrs[attr] == "" {
			return nil, &errors.ValidationError{
				Field:   path,
				Message: fmt.Sprintf("%s requires a %q attribute", kind, attr),
			}
		}
	}

	return a, nil
}

func checkParent(parent, child *Activity, path string) error {
	switch parent.Kind {
	case KindAssign, KindLog, KindInvoke, KindBreak:
		return &errors.ValidationError{
			Field:   path,
			Message: fmt.Sprintf("%s cannot contain %s", parent.Kind, child.Kind),
		}
	}
	if child.Kind == KindDefine && parent.Kind != KindWorkflow {
		return &errors.ValidationError{Field: path, Message: "Define is only allowed directly under Workflow"}
	}
	if child.Kind == KindWorkflow {
		return &errors.ValidationError{Field: path, Message: "Workflow cannot be nested"}
	}
	return nil
}

// link registers Defines, checks Invoke references and collects variables.
func (d *Document) link() error {
	for _, c := range d.Root.children {
		if c.Kind != KindDefine {
			continue
		}
		if _, dup := d.Defines[c.Name]; dup {
			return &errors.ValidationError{Field: d.Path, Message: fmt.Sprintf("duplicate Define %q", c.Name)}
		}
		d.Defines[c.Name] = c
	}

	var missing []string
	seen := make(map[string]bool)
	d.Root.Walk(func(a *Activity) {
		switch a.Kind {
		case KindInvoke:
			if _, ok := d.Defines[a.Attrs["ref"]]; !ok {
				missing = append(missing, a.Attrs["ref"])
			}
		case KindAssign:
			if to := a.Attrs["to"]; !seen[to] {
				seen[to] = true
				d.Variables = append(d.Variables, to)
			}
		}
	})
	if len(missing) > 0 {
		return &errors.ValidationError{
			Field:   d.Path,
			Message: fmt.Sprintf("Invoke references undefined component(s): %s", strings.Join(missing, ", ")),
		}
	}
	if err := d.compileAssigns(); err != nil {
		return err
	}
	return d.checkRecursion()
}

// compileAssigns compiles every Assign value. Variables assigned anywhere
// in the document take precedence over expr builtins of the same name.
func (d *Document) compileAssigns() error {
	var err error
	d.Root.Walk(func(a *Activity) {
		if err != nil || a.Kind != KindAssign {
			return
		}
		prog, cerr := debug.CompileLocals(a.Attrs["value"], d.Variables)
		if cerr != nil {
			err = &errors.ValidationError{
				Field:   d.Path,
				Message: fmt.Sprintf("invalid expression for %s at %s: %v", a.Attrs["to"], a.Location, cerr),
			}
			return
		}
		a.program = prog
	})
	return err
}

// checkRecursion rejects components that invoke themselves, directly or
// through other components.
func (d *Document) checkRecursion() error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(d.Defines))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch marks[name] {
		case visiting:
			return &errors.ValidationError{
				Field:   d.Path,
				Message: fmt.Sprintf("recursive Invoke: %s", strings.Join(append(path, name), " -> ")),
			}
		case done:
			return nil
		}
		marks[name] = visiting
		var err error
		d.Defines[name].Walk(func(a *Activity) {
			if err == nil && a.Kind == KindInvoke {
				err = visit(a.Attrs["ref"], append(path, name))
			}
		})
		marks[name] = done
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(d.Defines)) {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
