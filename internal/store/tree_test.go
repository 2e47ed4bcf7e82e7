package store

import (
	"testing"

	"github.com/gosnmp/gosnmp"
)

func buildTree(t *testing.T, oids ...string) *Tree {
	t.Helper()
	tr := NewTree()
	for i, s := range oids {
		tr.Insert(MustParseOID(s), &Entry{Type: gosnmp.Integer, Value: i})
	}
	tr.Sort()
	return tr
}

func TestTreeGet(t *testing.T) {
	tr := buildTree(t, "1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1.1.3.0")
	if _, ok := tr.Get("1.3.6.1.2.1.1.1.0"); !ok {
		t.Fatalf("expected hit for stored key")
	}
	if _, ok := tr.Get("1.3.6.1.2.1.1.2.0"); ok {
		t.Fatalf("unexpected hit for absent key")
	}
	if _, ok := tr.GetOID(MustParseOID("1.3.6.1.2.1.1.3.0")); !ok {
		t.Fatalf("expected GetOID hit")
	}
}

func TestTreeNextIsStrictSuccessor(t *testing.T) {
	tr := buildTree(t,
		"1.3.6.1.2.1.1.1.0",
		"1.3.6.1.2.1.1.3.0",
		"1.3.6.1.2.1.2.2.1.1.1",
		"1.3.6.1.2.1.2.2.1.1.2",
	)

	n, ok := tr.Next(MustParseOID("1.3.6.1.2.1.1.1.0"))
	if !ok || n.Key != "1.3.6.1.2.1.1.3.0" {
		t.Fatalf("Next from sysDescr = %q, want sysUpTime", n.Key)
	}

	// Starting below a subtree lands on its first instance.
	n, ok = tr.Next(MustParseOID("1.3.6.1.2.1.2"))
	if !ok || n.Key != "1.3.6.1.2.1.2.2.1.1.1" {
		t.Fatalf("Next from table root = %q", n.Key)
	}

	// A prefix of a stored OID sorts before it, so Next on the exact
	// stored OID must skip to the following one.
	n, ok = tr.Next(MustParseOID("1.3.6.1.2.1.2.2.1.1.1"))
	if !ok || n.Key != "1.3.6.1.2.1.2.2.1.1.2" {
		t.Fatalf("Next from ifIndex.1 = %q", n.Key)
	}

	if _, ok := tr.Next(MustParseOID("1.3.6.1.2.1.2.2.1.1.2")); ok {
		t.Fatalf("expected end of tree after last oid")
	}
	if _, ok := tr.Next(MustParseOID("1.3.6.9")); ok {
		t.Fatalf("expected end of tree past all oids")
	}
}

func TestTreeBulkWalk(t *testing.T) {
	tr := buildTree(t,
		"1.3.6.1.2.1.1.1.0",
		"1.3.6.1.2.1.1.3.0",
		"1.3.6.1.2.1.2.2.1.1.1",
		"1.3.6.1.2.1.2.2.1.1.2",
		"1.3.6.1.2.1.2.2.1.1.3",
	)

	nodes := tr.BulkWalk(MustParseOID("1.3.6.1.2.1.2.2.1.1"), 2)
	if len(nodes) != 2 || nodes[0].Key != "1.3.6.1.2.1.2.2.1.1.1" || nodes[1].Key != "1.3.6.1.2.1.2.2.1.1.2" {
		t.Fatalf("BulkWalk(2) = %v", nodes)
	}

	nodes = tr.BulkWalk(MustParseOID("1.3.6.1.2.1.1.1.0"), 100)
	if len(nodes) != 4 {
		t.Fatalf("BulkWalk(100) returned %d nodes, want remainder 4", len(nodes))
	}

	if nodes := tr.BulkWalk(MustParseOID("1.3.6.9"), 5); len(nodes) != 0 {
		t.Fatalf("BulkWalk past end = %v", nodes)
	}
	if nodes := tr.BulkWalk(MustParseOID("1.3"), 0); nodes != nil {
		t.Fatalf("BulkWalk with max 0 = %v", nodes)
	}
}

func TestTreeLastInsertWins(t *testing.T) {
	tr := NewTree()
	oid := MustParseOID("1.3.6.1.2.1.1.5.0")
	tr.Insert(oid, &Entry{Type: gosnmp.OctetString, Value: "first"})
	tr.Insert(oid, &Entry{Type: gosnmp.OctetString, Value: "second"})
	tr.Sort()

	if tr.Len() != 1 {
		t.Fatalf("Len = %d after duplicate insert, want 1", tr.Len())
	}
	e, ok := tr.GetOID(oid)
	if !ok || e.Value != "second" {
		t.Fatalf("duplicate insert kept %v, want last write", e)
	}
}

func TestTreeHasSubtree(t *testing.T) {
	tr := buildTree(t, "1.3.6.1.2.1.2.2.1.1.1", "1.3.6.1.2.1.2.2.1.1.2")
	if !tr.HasSubtree(MustParseOID("1.3.6.1.2.1.2.2.1.1")) {
		t.Fatalf("expected subtree below column oid")
	}
	if tr.HasSubtree(MustParseOID("1.3.6.1.2.1.2.2.1.1.1")) {
		t.Fatalf("leaf oid has no subtree")
	}
	if tr.HasSubtree(MustParseOID("1.3.6.1.2.1.4")) {
		t.Fatalf("unrelated prefix has no subtree")
	}
}

func TestTreeListOIDsOrdered(t *testing.T) {
	tr := buildTree(t, "1.3.6.1.2.1.2.2.1.1.10", "1.3.6.1.2.1.1.1.0", "1.3.6.1.2.1.2.2.1.1.2")
	oids := tr.ListOIDs()
	for i := 1; i < len(oids); i++ {
		if !oids[i-1].Less(oids[i]) {
			t.Fatalf("ListOIDs out of order at %d: %s !< %s", i, oids[i-1], oids[i])
		}
	}
	if oids[1].String() != "1.3.6.1.2.1.2.2.1.1.2" {
		t.Fatalf("numeric ordering broken: %v", oids)
	}
}

func TestTreeWithEntryLeavesOriginal(t *testing.T) {
	tr := buildTree(t, "1.3.6.1.2.1.1.1.0")
	derived := tr.WithEntry(MustParseOID("1.3.6.1.2.1.1.5.0"), &Entry{Type: gosnmp.OctetString, Value: "cm-1"})

	if tr.Len() != 1 {
		t.Fatalf("original tree grew to %d entries", tr.Len())
	}
	if derived.Len() != 2 {
		t.Fatalf("derived tree has %d entries, want 2", derived.Len())
	}
	if _, ok := derived.Get("1.3.6.1.2.1.1.5.0"); !ok {
		t.Fatalf("derived tree missing new entry")
	}
}

func TestTreeFirst(t *testing.T) {
	tr := buildTree(t, "1.3.6.1.2.1.1.3.0", "1.3.6.1.2.1.1.1.0")
	n, ok := tr.First()
	if !ok || n.Key != "1.3.6.1.2.1.1.1.0" {
		t.Fatalf("First = %q", n.Key)
	}
	if _, ok := NewTree().First(); ok {
		t.Fatalf("empty tree has no first entry")
	}
}
