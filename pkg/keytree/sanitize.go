// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keytree

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// Anomaly describes a violation of the key tree invariants and how it was
// repaired.
type Anomaly struct {
	// Path is the dotted child index path from the root, e.g. "0.2".
	Path   string
	Reason string
}

func (a Anomaly) String() string {
	if a.Path == "" {
		return "root: " + a.Reason
	}
	return a.Path + ": " + a.Reason
}

// Validate returns an error describing the first invariant violation, if
// any.
func Validate(t *KeyTree) error {
	var first *Anomaly
	Sanitize(t, func(a Anomaly) {
		if first == nil {
			first = &a
		}
	})
	if first != nil {
		return errors.MalformedKey.WithFormat("malformed key: %v", first)
	}
	return nil
}

// Sanitize returns a copy of the tree that satisfies the invariants,
// repairing violations conservatively and reporting each one:
//
//   - A threshold of zero or above the child count requires all children.
//   - A threshold node with no children, or a leaf with no key, can never be
//     satisfied and becomes an unsignable leaf.
//   - A subtree deeper than MaxDepth, including a cyclic one, becomes an
//     all-of list of its leaves.
func Sanitize(t *KeyTree, report func(Anomaly)) *KeyTree {
	if report == nil {
		report = func(Anomaly) {}
	}
	if t == nil {
		return nil
	}
	return sanitize(t, nil, report)
}

func sanitize(t *KeyTree, path []int, report func(Anomaly)) *KeyTree {
	anomaly := func(format string, args ...interface{}) {
		report(Anomaly{Path: formatPath(path), Reason: fmt.Sprintf(format, args...)})
	}

	if t == nil {
		anomaly("missing key")
		return Leaf(Unsignable("missing"))
	}

	switch t.Kind {
	case KindLeaf:
		if t.Key == "" {
			anomaly("empty public key")
			return Leaf(Unsignable("empty"))
		}
		return Leaf(t.Key)

	case KindThreshold:
		if len(t.Children) == 0 {
			anomaly("threshold node has no children")
			return Leaf(Unsignable("empty key list"))
		}

		if len(path) >= MaxDepth {
			anomaly("nested deeper than %d", MaxDepth)
			keys := Flatten(t).Sorted()
			if len(keys) == 0 {
				return Leaf(Unsignable("empty key list"))
			}
			return Leaves(keys...)
		}

		u := &KeyTree{Kind: KindThreshold, Threshold: t.Threshold}
		u.Children = make([]*KeyTree, len(t.Children))
		for i, c := range t.Children {
			u.Children[i] = sanitize(c, append(path[:len(path):len(path)], i), report)
		}

		n := uint32(len(u.Children))
		switch {
		case u.Threshold == 0:
			anomaly("threshold is zero, requiring all %d", n)
			u.Threshold = n
		case u.Threshold > n:
			anomaly("threshold %d exceeds %d children, requiring all", u.Threshold, n)
			u.Threshold = n
		}
		return u

	default:
		anomaly("unknown key kind %d", t.Kind)
		return Leaf(Unsignable("unknown"))
	}
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}
