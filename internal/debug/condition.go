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

package debug

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// CompileLocals compiles an expr expression evaluated against a locals map
// whose keys are only known at run time. Names in known, and every bare
// identifier the expression reads, resolve as variables even when they
// collide with an expr builtin such as count or len. A name the expression
// calls keeps its builtin.
func CompileLocals(input string, known []string, opts ...expr.Option) (*vm.Program, error) {
	tree, err := parser.Parse(input)
	if err != nil {
		return nil, err
	}

	options := []expr.Option{
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	}
	for _, name := range variableNames(tree.Node, known) {
		options = append(options, expr.DisableBuiltin(name))
	}
	options = append(options, opts...)
	return expr.Compile(input, options...)
}

type identCollector struct {
	idents  []*ast.IdentifierNode
	callees map[ast.Node]bool
	called  map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.CallNode:
		c.callees[n.Callee] = true
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.called[id.Value] = true
		}
	case *ast.BuiltinNode:
		c.called[n.Name] = true
	}
}

// variableNames returns the names in known that root never calls, plus the
// identifiers in root that are read as values.
func variableNames(root ast.Node, known []string) []string {
	c := &identCollector{
		callees: make(map[ast.Node]bool),
		called:  make(map[string]bool),
	}
	ast.Walk(&root, c)

	seen := make(map[string]bool, len(known)+len(c.idents))
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] && !c.called[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range known {
		add(name)
	}
	for _, id := range c.idents {
		if !c.callees[id] {
			add(id.Value)
		}
	}
	return names
}
