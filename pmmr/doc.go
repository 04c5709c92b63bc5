// Package pmmr implements the pure navigational algebra of a positional
// Merkle Mountain Range: a forest of perfect binary trees laid out in
// postorder, addressed by a single monotonically increasing position.
//
// # Postorder and peaks
//
// Every node of the forest — leaf or interior — is assigned the position at
// which it was appended. Appending node N is always preceded by appending
// its left subtree then its right subtree, so the natural append order of an
// MMR is exactly the postorder traversal of the (conceptual, never
// materialized) full forest:
//
//	       6
//	     /   \
//	    2     5      9
//	   / \   / \    / \
//	  0   1 3   4  7   8 10
//
// A forest of size n (n nodes appended so far) decomposes into a sequence
// of "peaks" — roots of perfect binary subtrees — whose sizes are 2^k - 1
// for the bits k set in the binary "peak map" of n. All of this package's
// navigation (parent, sibling, family branch to peak, leftmost/rightmost
// leaf, left-sibling predicate) is pure arithmetic over that encoding: no
// tree is ever built or walked node-by-node.
//
// Positions in this package are zero-based, matching a Go slice index and
// matching the grin reference implementation this algebra is ported from
// (https://github.com/mimblewimble/grin/blob/master/core/src/core/pmmr/pmmr.rs).
// This is the one deliberate point of departure from the one-based
// convention used elsewhere in this family of libraries: the zero-based
// forms are what let the testable scenarios in the accompanying
// specification (e.g. peaks(7) == [6]) be checked against this code
// character for character.
package pmmr
