// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keytree

import (
	"fmt"
	"io"
	"strings"
)

// Format controls how Fprint renders nodes.
type Format struct {
	// Leaf renders a leaf. Defaults to the key's String.
	Leaf func(PublicKey) string

	// Node renders the label of a threshold node. Defaults to "m of n".
	Node func(t *KeyTree) string
}

func (t *KeyTree) String() string {
	if t == nil {
		return "(none)"
	}
	if t.Kind == KindLeaf {
		return t.Key.String()
	}
	s := new(strings.Builder)
	Fprint(s, t, Format{})
	return strings.TrimSuffix(s.String(), "\n")
}

// Fprint writes an indented rendering of the tree.
func Fprint(w io.Writer, t *KeyTree, f Format) {
	if f.Leaf == nil {
		f.Leaf = PublicKey.String
	}
	if f.Node == nil {
		f.Node = func(t *KeyTree) string {
			if t.IsKeyList() {
				return fmt.Sprintf("all of %d", len(t.Children))
			}
			return fmt.Sprintf("%d of %d", t.Threshold, len(t.Children))
		}
	}
	fprint(w, t, f, "", "", 0)
}

func fprint(w io.Writer, t *KeyTree, f Format, first, rest string, depth int) {
	switch {
	case t == nil:
		fmt.Fprintf(w, "%s(none)\n", first)
		return
	case depth > MaxDepth:
		fmt.Fprintf(w, "%s...\n", first)
		return
	case t.Kind == KindLeaf:
		fmt.Fprintf(w, "%s%s\n", first, f.Leaf(t.Key))
		return
	}

	fmt.Fprintf(w, "%s%s\n", first, f.Node(t))
	for i, c := range t.Children {
		if i == len(t.Children)-1 {
			fprint(w, c, f, rest+"└── ", rest+"    ", depth+1)
		} else {
			fprint(w, c, f, rest+"├── ", rest+"│   ", depth+1)
		}
	}
}
