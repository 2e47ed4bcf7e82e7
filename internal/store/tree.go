package store

import (
	"sort"

	"github.com/armon/go-radix"
	"github.com/gosnmp/gosnmp"
)

// Entry is what the tree stores per OID: the declared SNMP type, the base
// value captured from the walk, and the behavior the simulator applies on
// top of it.
type Entry struct {
	Type     gosnmp.Asn1BER
	Value    interface{}
	Behavior Behavior
}

// Node pairs an OID with its entry; returned by ordered scans.
type Node struct {
	OID   OID
	Key   string // canonical dotted form
	Entry *Entry
}

type treeNode struct {
	oid OID
	key string
}

// Tree is an ordered OID → Entry map. Point lookups go through a radix tree
// keyed by the dotted form (prefix compression matters with tens of
// thousands of shared-prefix OIDs); successor queries binary-search a
// pre-sorted index of integer-sequence OIDs.
//
// Build pattern: Insert everything, call Sort once, then treat the tree as
// immutable. A sorted tree is safe for any number of concurrent readers.
type Tree struct {
	byKey  *radix.Tree
	nodes  []treeNode
	sorted bool
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{byKey: radix.New()}
}

// Insert adds or overwrites an entry. Does not sort; call Sort after batch
// inserts and before serving lookups.
func (t *Tree) Insert(oid OID, e *Entry) {
	key := oid.String()
	t.byKey.Insert(key, e)
	t.nodes = append(t.nodes, treeNode{oid: oid, key: key})
	t.sorted = false
}

// Sort orders the index and removes duplicate keys. The last Insert for a
// key wins (the radix tree already holds it).
func (t *Tree) Sort() {
	sort.Slice(t.nodes, func(i, j int) bool {
		return t.nodes[i].oid.Less(t.nodes[j].oid)
	})
	if len(t.nodes) > 1 {
		out := t.nodes[:1]
		for _, n := range t.nodes[1:] {
			if n.key != out[len(out)-1].key {
				out = append(out, n)
			}
		}
		t.nodes = out
	}
	t.sorted = true
}

// Get retrieves the entry for a canonical dotted key.
func (t *Tree) Get(key string) (*Entry, bool) {
	if v, ok := t.byKey.Get(key); ok {
		return v.(*Entry), true
	}
	return nil, false
}

// GetOID retrieves the entry for an OID.
func (t *Tree) GetOID(oid OID) (*Entry, bool) {
	return t.Get(oid.String())
}

// Next returns the strict lexicographic successor of after, or false at the
// end of the tree.
func (t *Tree) Next(after OID) (Node, bool) {
	idx := t.searchAfter(after)
	if idx >= len(t.nodes) {
		return Node{}, false
	}
	return t.node(idx), true
}

// BulkWalk returns up to max entries whose OID is strictly greater than
// start, in order.
func (t *Tree) BulkWalk(start OID, max int) []Node {
	if max <= 0 {
		return nil
	}
	idx := t.searchAfter(start)
	if idx >= len(t.nodes) {
		return nil
	}
	end := idx + max
	if end > len(t.nodes) {
		end = len(t.nodes)
	}
	out := make([]Node, 0, end-idx)
	for i := idx; i < end; i++ {
		out = append(out, t.node(i))
	}
	return out
}

// searchAfter finds the index of the first node strictly greater than oid.
func (t *Tree) searchAfter(oid OID) int {
	return sort.Search(len(t.nodes), func(i int) bool {
		return oid.Less(t.nodes[i].oid)
	})
}

// HasSubtree reports whether any stored OID lies strictly below oid. Used
// to distinguish noSuchInstance (object exists, instance absent) from
// noSuchObject.
func (t *Tree) HasSubtree(oid OID) bool {
	found := false
	t.byKey.WalkPrefix(oid.String()+".", func(string, interface{}) bool {
		found = true
		return true
	})
	return found
}

// First returns the smallest entry, or false when the tree is empty.
func (t *Tree) First() (Node, bool) {
	if len(t.nodes) == 0 {
		return Node{}, false
	}
	return t.node(0), true
}

// Len returns the number of entries.
func (t *Tree) Len() int { return len(t.nodes) }

// Empty reports whether the tree has no entries.
func (t *Tree) Empty() bool { return len(t.nodes) == 0 }

// ListOIDs returns the ordered key set.
func (t *Tree) ListOIDs() []OID {
	out := make([]OID, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = n.oid
	}
	return out
}

// Walk visits every entry in order until the callback returns false.
func (t *Tree) Walk(fn func(Node) bool) {
	for i := range t.nodes {
		if !fn(t.node(i)) {
			return
		}
	}
}

// Clone returns an independent copy sharing Entry pointers.
func (t *Tree) Clone() *Tree {
	c := NewTree()
	c.nodes = make([]treeNode, len(t.nodes))
	copy(c.nodes, t.nodes)
	for _, n := range t.nodes {
		if v, ok := t.byKey.Get(n.key); ok {
			c.byKey.Insert(n.key, v)
		}
	}
	c.sorted = t.sorted
	return c
}

// WithEntry returns a new tree equal to t plus one entry. The receiver is
// left untouched, so published trees stay immutable.
func (t *Tree) WithEntry(oid OID, e *Entry) *Tree {
	c := t.Clone()
	c.Insert(oid, e)
	c.Sort()
	return c
}

func (t *Tree) node(i int) Node {
	n := t.nodes[i]
	v, _ := t.byKey.Get(n.key)
	e, _ := v.(*Entry)
	return Node{OID: n.oid, Key: n.key, Entry: e}
}
