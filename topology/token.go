package topology

import "math/big"

// two64 is 2^64, used by the token formula below; it does not fit in a
// uint64 so the arithmetic is done with math/big.
var two64 = new(big.Int).Lsh(big.NewInt(1), 64)

// AssignTokens computes a deterministic token for every node in c that does
// not already have one explicitly set, using the rule: node n of data center
// d (both 0-indexed, d counted across the cluster's DataCenters, n counted
// within its own DataCenter which has N_d nodes) gets token
//
//	(n * floor(2^64 / N_d)) + d * 100
//
// Nodes are addressed by this formula only through AssignTokens; a Node
// created without ever being attached to a DataCenter keeps the empty Token
// it was constructed with, which EffectiveToken reports as "0".
func AssignTokens(c *Cluster) {
	for d, dc := range c.DataCenters {
		nd := len(dc.Nodes)
		if nd == 0 {
			continue
		}
		step := new(big.Int).Div(two64, big.NewInt(int64(nd)))
		dcOffset := big.NewInt(int64(d) * 100)
		for n, node := range dc.Nodes {
			if node.Token != "" {
				continue
			}
			t := new(big.Int).Mul(step, big.NewInt(int64(n)))
			t.Add(t, dcOffset)
			node.Token = t.String()
		}
	}
}
