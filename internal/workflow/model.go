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

// Package workflow is a small scheduler-driven activity interpreter that
// reports its progress to a debug.Manager. Documents are XML trees of
// activities; reusable components are declared once with Define and
// instantiated any number of times with Invoke.
package workflow

import (
	"maps"
	"slices"

	"github.com/expr-lang/expr/vm"

	"github.com/tombee/vstack/pkg/source"
)

// Kind identifies an activity type. It is the XML element name.
type Kind string

const (
	// KindWorkflow is the document root. Its children run in sequence.
	KindWorkflow Kind = "Workflow"
	// KindDefine declares a reusable component. It never runs directly.
	KindDefine Kind = "Define"
	// KindSequence runs its children in order.
	KindSequence Kind = "Sequence"
	// KindParallel runs each child on its own logical thread.
	KindParallel Kind = "Parallel"
	// KindAssign evaluates an expression into a variable.
	KindAssign Kind = "Assign"
	// KindLog writes a message with ${var} substitution.
	KindLog Kind = "Log"
	// KindInvoke runs a fresh instance of a Define.
	KindInvoke Kind = "Invoke"
	// KindBreak asks the debugger to break.
	KindBreak Kind = "Break"
)

var knownKinds = []Kind{KindWorkflow, KindDefine, KindSequence, KindParallel, KindAssign, KindLog, KindInvoke, KindBreak}

// Activity is one node of a workflow tree.
type Activity struct {
	// Kind is the activity type.
	Kind Kind

	// Name is the optional name attribute.
	Name string

	// Attrs holds every attribute of the element.
	Attrs map[string]string

	// Location spans the element from its start tag through its end tag.
	Location source.SourceLocation

	parent   *Activity
	children []*Activity
	origin   *Activity
	program  *vm.Program
}

// Parent returns the enclosing activity, or nil for the root.
func (a *Activity) Parent() *Activity { return a.parent }

// Children returns the child activities in document order.
func (a *Activity) Children() []*Activity { return slices.Clone(a.children) }

// Origin returns the parsed element this activity was instantiated from.
// It is the activity itself unless it was produced by Instantiate.
func (a *Activity) Origin() *Activity {
	if a.origin == nil {
		return a
	}
	return a.origin
}

// Label returns the name attribute, or the kind when unnamed.
func (a *Activity) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Kind)
}

// Walk calls fn for a and every descendant in document order.
func (a *Activity) Walk(fn func(*Activity)) {
	fn(a)
	for _, c := range a.children {
		c.Walk(fn)
	}
}

// Instantiate returns a deep copy of a whose nodes keep pointing at their
// parsed origins, so every instance shares the same debug states.
func Instantiate(a *Activity) *Activity {
	return instantiate(a, nil)
}

func instantiate(a *Activity, parent *Activity) *Activity {
	c := &Activity{
		Kind:     a.Kind,
		Name:     a.Name,
		Attrs:    maps.Clone(a.Attrs),
		Location: a.Location,
		parent:   parent,
		origin:   a.Origin(),
		program:  a.program,
	}
	for _, child := range a.children {
		c.children = append(c.children, instantiate(child, c))
	}
	return c
}

// Document is a parsed workflow file.
type Document struct {
	// Path is the file the document was read from.
	Path string

	// Name is the root's name attribute, or the file base name.
	Name string

	// Root is the Workflow element.
	Root *Activity

	// Defines maps component names to their Define elements.
	Defines map[string]*Activity

	// Checksum is the SHA-256 of the document bytes.
	Checksum []byte

	// Variables lists every variable assigned anywhere in the document.
	Variables []string
}

// Activities returns every parsed activity in document order.
func (d *Document) Activities() []*Activity {
	var out []*Activity
	d.Root.Walk(func(a *Activity) { out = append(out, a) })
	return out
}

// DropChecksums clears the content hash from every location, so states
// match the document by path and span alone.
func (d *Document) DropChecksums() {
	d.Root.Walk(func(a *Activity) { a.Location = a.Location.WithChecksum(nil) })
}
