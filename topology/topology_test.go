package topology

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestAssignTokensSingleDCEvenSplit(t *testing.T) {
	c := NewCluster("test")
	dc := NewDataCenter("dc1")
	for i := 0; i < 4; i++ {
		dc.AddNode(NewNode())
	}
	c.AddDataCenter(dc)

	AssignTokens(c)

	step := new(big.Int).Div(two64, big.NewInt(4))
	for n, node := range dc.Nodes {
		want := new(big.Int).Mul(step, big.NewInt(int64(n))).String()
		if node.Token != want {
			t.Errorf("node %d: got token %s, want %s", n, node.Token, want)
		}
	}
}

func TestAssignTokensMultiDCOffset(t *testing.T) {
	c := NewCluster("test")
	dc0 := NewDataCenter("dc0")
	dc0.AddNode(NewNode())
	dc1 := NewDataCenter("dc1")
	dc1.AddNode(NewNode())
	c.AddDataCenter(dc0)
	c.AddDataCenter(dc1)

	AssignTokens(c)

	if dc0.Nodes[0].Token != "0" {
		t.Errorf("dc0 node0 token = %s, want 0", dc0.Nodes[0].Token)
	}
	if dc1.Nodes[0].Token != "100" {
		t.Errorf("dc1 node0 token = %s, want 100", dc1.Nodes[0].Token)
	}
}

func TestAssignTokensPreservesExplicitToken(t *testing.T) {
	c := NewCluster("test")
	dc := NewDataCenter("dc1")
	explicit := NewNode()
	explicit.Token = "42"
	dc.AddNode(explicit)
	dc.AddNode(NewNode())
	c.AddDataCenter(dc)

	AssignTokens(c)

	if dc.Nodes[0].Token != "42" {
		t.Errorf("explicit token overwritten: got %s", dc.Nodes[0].Token)
	}
}

func TestStandaloneNodeEffectiveTokenIsZero(t *testing.T) {
	n := NewNode()
	if got := n.EffectiveToken(); got != "0" {
		t.Errorf("EffectiveToken() = %s, want 0", got)
	}
}

func TestDataCenterCopyStartsEmpty(t *testing.T) {
	dc := NewDataCenter("dc1")
	dc.AddNode(NewNode())
	dc.AddNode(NewNode())

	cp := dc.Copy()
	if len(cp.Nodes) != 0 {
		t.Errorf("Copy() has %d nodes, want 0", len(cp.Nodes))
	}
	if cp.Name != dc.Name {
		t.Errorf("Copy() name = %s, want %s", cp.Name, dc.Name)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewCluster("test")
	dc := NewDataCenter("dc1")
	dc.AddNode(NewNode())
	c.AddDataCenter(dc)

	clone := c.Clone()
	clone.DataCenters[0].Nodes[0].Token = "999"

	if c.DataCenters[0].Nodes[0].Token == "999" {
		t.Fatal("mutating clone affected original")
	}
	if diff := cmp.Diff(c, clone, cmp.AllowUnexported(Node{}), cmpopts.IgnoreFields(Node{}, "Token")); diff != "" {
		t.Errorf("clone diverges from original beyond mutated field: %s", diff)
	}
}

func TestNodeHasParent(t *testing.T) {
	n := NewNode()
	if n.HasParent() {
		t.Fatal("fresh node reports a parent")
	}
	dc := NewDataCenter("dc1")
	dc.AddNode(n)
	if !n.HasParent() {
		t.Fatal("node added to a data center should report a parent")
	}
}
