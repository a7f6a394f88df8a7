// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keytree

// IsSatisfied returns true if the satisfied keys meet the tree's
// requirement. A threshold of zero is always satisfied. A nil tree has no
// requirement. Subtrees nested deeper than MaxDepth are never satisfied.
func IsSatisfied(t *KeyTree, satisfied Set) bool {
	return isSatisfied(t, satisfied, 0)
}

func isSatisfied(t *KeyTree, satisfied Set, depth int) bool {
	if t == nil {
		return true
	}
	if depth > MaxDepth {
		return false
	}

	switch t.Kind {
	case KindLeaf:
		return satisfied.Has(t.Key)

	case KindThreshold:
		if t.Threshold == 0 {
			return true
		}

		var count uint32
		for i, c := range t.Children {
			// Stop once the remaining children cannot reach the threshold
			if count+uint32(len(t.Children)-i) < t.Threshold {
				return false
			}
			if !isSatisfied(c, satisfied, depth+1) {
				continue
			}
			count++
			if count >= t.Threshold {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// Flatten returns every leaf key in the tree. A key that appears in several
// branches is returned once. Shared or cyclic subtrees are visited once.
func Flatten(t *KeyTree) Set {
	keys := Set{}
	if t == nil {
		return keys
	}

	seen := map[*KeyTree]bool{}
	stack := []*KeyTree{t}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || seen[n] {
			continue
		}
		seen[n] = true

		switch n.Kind {
		case KindLeaf:
			keys.Add(n.Key)
		case KindThreshold:
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
	}
	return keys
}

// Depth returns the nesting depth of the tree, capped at MaxDepth+1.
func Depth(t *KeyTree) int {
	return depth(t, 0)
}

func depth(t *KeyTree, d int) int {
	if t == nil || t.Kind != KindThreshold || d > MaxDepth {
		return d
	}
	deepest := d + 1
	for _, c := range t.Children {
		if n := depth(c, d+1); n > deepest {
			deepest = n
		}
	}
	return deepest
}
