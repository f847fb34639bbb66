// Copyright 2025 Certen Protocol
//
// Merkle Builder and Proof Verifier (spec.md §4.2, §4.3).
//
// Node combination is canonical: for two children a, b the parent is
// H(min(a,b) || max(a,b)) by lexicographic byte comparison. This lets the
// Proof Verifier fold without carrying a sibling-side bit, because the
// on-chain verifier never receives one (§4.2). Odd levels duplicate their
// last node: parent = H(last || last).
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Size is the width, in bytes, of every node in the tree.
const Size = 32

// Hash is one 32-byte Merkle node (leaf, intermediate, or root).
type Hash [Size]byte

var (
	// ErrEmptyLeaves is returned when building a tree from zero leaves.
	ErrEmptyLeaves = errors.New("merkle: cannot build a tree from zero leaves")
	// ErrIndexOutOfRange is returned for a proof request outside [0, n).
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// Tree is the built, in-memory form of a fixed sequence of leaves. It is
// a pure function of its leaf sequence: the same leaves in the same order
// always build the same root and proofs, in this implementation or any
// other that follows §4.2.
type Tree struct {
	levels [][]Hash // levels[0] is the leaves, levels[len-1] is [root]
}

// Build constructs a Tree from an ordered leaf sequence. Leaves are never
// reordered; index i in leaves corresponds to index i in every proof.
func Build(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyLeaves
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	levels := make([][]Hash, 0, 1)
	levels = append(levels, level)

	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				// Odd node: duplicate it against itself (§4.2).
				next = append(next, combine(level[i], level[i]))
			}
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// combine folds two sibling nodes into their parent using the canonical
// min||max rule, so folding is commutative: combine(a,b) == combine(b,a).
func combine(a, b Hash) Hash {
	var left, right Hash
	if lessOrEqual(a, b) {
		left, right = a, b
	} else {
		left, right = b, a
	}

	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func lessOrEqual(a, b Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

// Root returns the single top-level node. For a single-leaf tree the root
// equals that leaf's digest (§4.2 edge case).
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof generates the ordered sibling sequence for the leaf at index i,
// walking bottom-up. Length is ceil(log2(n)) for n > 1, zero for n == 1.
// When a level has an odd length and i is the last index at that level,
// the recorded sibling is the node itself — this is what keeps the
// verifier's folding rule unconditional (no side bit, no branch).
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= t.LeafCount() {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, t.LeafCount())
	}

	proof := make([]Hash, 0, len(t.levels)-1)
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]

		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
		} else {
			siblingIdx = idx - 1
		}

		if siblingIdx < len(nodes) {
			proof = append(proof, nodes[siblingIdx])
		} else {
			// Last node in an odd-length level: self-sibling.
			proof = append(proof, nodes[idx])
		}

		idx /= 2
	}

	return proof, nil
}

// Verify folds leaf through proof and accepts iff the result equals root.
// Single loop, O(|proof|) time, constant memory, no branch on sibling
// side — this is the exact procedure the on-chain verifier runs (§4.3,
// §4.7 step 2).
func Verify(leaf Hash, proof []Hash, root Hash) bool {
	current := leaf
	for _, sibling := range proof {
		current = combine(current, sibling)
	}
	return current == root
}
