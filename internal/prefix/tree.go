// Package prefix implements a longest-prefix-match index over multi-field
// digit keys such as (service, A-number, B-number).
//
// Every field has its own trie. The trie of field i+1 hangs off the node
// that terminates field i, so fields are resolved in declared order and each
// one only inside the sub-structure chosen for the previous field. A Tree is
// immutable once built and safe for concurrent lookups.
package prefix

import (
	"errors"
	"fmt"

	"ratingcore/pkg/match"
)

var ErrFieldCount = errors.New("prefix: key count does not match field count")

type Entry struct {
	Keys       []string
	Value      string
	Attributes []string
}

type node struct {
	children map[byte]*node

	// next is the root of the following field's trie. Only set on nodes that
	// terminate a non-final field.
	next *node

	terminal bool
	value    string
	attrs    []string
}

func (n *node) child(c byte) *node {
	if n.children == nil {
		return nil
	}
	return n.children[c]
}

func (n *node) ensureChild(c byte) (*node, bool) {
	if n.children == nil {
		n.children = make(map[byte]*node, 1)
	}
	if ch, ok := n.children[c]; ok {
		return ch, false
	}
	ch := &node{}
	n.children[c] = ch
	return ch, true
}

type Tree struct {
	root    *node
	fields  int
	entries int
	nodes   int
}

func (t *Tree) Fields() int { return t.fields }

// Len returns the number of distinct key paths stored.
func (t *Tree) Len() int { return t.entries }

func (t *Tree) Nodes() int { return t.nodes }

// Lookup resolves the best match for keys. A wrong number of keys, or a
// field with no terminal along its consumed prefix, yields NotFound.
func (t *Tree) Lookup(keys ...string) match.Result {
	if t == nil || len(keys) != t.fields {
		return match.NotFound
	}

	n := t.root
	last := t.fields - 1

	for i, key := range keys {
		final := i == last
		best := bestNode(n, key, final)
		if best == nil {
			return match.NotFound
		}
		if final {
			return match.Found(best.value, best.attrs)
		}
		n = best.next
	}

	return match.NotFound
}

// BestMatch returns the matched value, or NO_MATCH as element zero.
func (t *Tree) BestMatch(keys ...string) []string {
	return t.Lookup(keys...).Strings(match.NoMatch)
}

// BestMatchWithChildData returns the matched value followed by its
// attributes, or NO_MATCH as element zero.
func (t *Tree) BestMatchWithChildData(keys ...string) []string {
	return t.Lookup(keys...).WithChildData(match.NoMatch)
}

// bestNode walks key below n and returns the deepest node that terminates
// the field. The start node itself counts, which is how empty stored keys
// act as a catch-all.
func bestNode(n *node, key string, final bool) *node {
	var best *node
	if terminates(n, final) {
		best = n
	}
	for j := 0; j < len(key); j++ {
		n = n.child(key[j])
		if n == nil {
			break
		}
		if terminates(n, final) {
			best = n
		}
	}
	return best
}

func terminates(n *node, final bool) bool {
	if final {
		return n.terminal
	}
	return n.next != nil
}

// Builder accumulates entries for a single Tree. It is single-writer and
// must not be used after Build.
type Builder struct {
	tree *Tree
}

func NewBuilder(fields int) *Builder {
	if fields < 1 {
		fields = 1
	}
	return &Builder{
		tree: &Tree{root: &node{}, fields: fields, nodes: 1},
	}
}

// Add inserts an entry. Re-adding an identical key path replaces the value
// and attributes of the earlier entry.
func (b *Builder) Add(e Entry) error {
	t := b.tree
	if len(e.Keys) != t.fields {
		return fmt.Errorf("%w: got %d keys, want %d", ErrFieldCount, len(e.Keys), t.fields)
	}

	n := t.root
	last := t.fields - 1

	for i, key := range e.Keys {
		for j := 0; j < len(key); j++ {
			var created bool
			n, created = n.ensureChild(key[j])
			if created {
				t.nodes++
			}
		}
		if i == last {
			break
		}
		if n.next == nil {
			n.next = &node{}
			t.nodes++
		}
		n = n.next
	}

	if !n.terminal {
		t.entries++
	}
	n.terminal = true
	n.value = e.Value
	n.attrs = append([]string(nil), e.Attributes...)

	return nil
}

func (b *Builder) Build() *Tree {
	t := b.tree
	b.tree = nil
	return t
}

// Build constructs a Tree from entries in order.
func Build(fields int, entries []Entry) (*Tree, error) {
	b := NewBuilder(fields)
	for i, e := range entries {
		if err := b.Add(e); err != nil {
			return nil, fmt.Errorf("entry #%d: %w", i, err)
		}
	}
	return b.Build(), nil
}
