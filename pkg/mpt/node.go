// Copyright 2025 Certen Protocol
//
// Merkle-Patricia Trie Nodes

package mpt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// node is one of five structural kinds: nil (null), leaf, extension, branch,
// or digest. A digest stands for an unresolved subtree known only by hash;
// tries reconstructed from proofs contain digests everywhere the proof did
// not descend.
type node interface {
	// cachedHash returns the Keccak hash of the node's RLP encoding, or nil
	// if it has not been computed yet.
	cachedHash() []byte
}

type (
	leafNode struct {
		path  []byte // remaining key nibbles
		value []byte
		hash  []byte
	}
	extensionNode struct {
		path  []byte // shared key nibbles
		child node
		hash  []byte
	}
	branchNode struct {
		children [16]node
		value    []byte
		hash     []byte
	}
	digestNode common.Hash
)

func (n *leafNode) cachedHash() []byte      { return n.hash }
func (n *extensionNode) cachedHash() []byte { return n.hash }
func (n *branchNode) cachedHash() []byte    { return n.hash }
func (n digestNode) cachedHash() []byte     { return n[:] }

// hashNode computes (and memoizes) the Keccak hash of the node's encoding.
func hashNode(n node) common.Hash {
	if n == nil {
		return EmptyRootHash
	}
	if h := n.cachedHash(); h != nil {
		return common.BytesToHash(h)
	}
	h := crypto.Keccak256Hash(encodeNode(n))
	switch n := n.(type) {
	case *leafNode:
		n.hash = h.Bytes()
	case *extensionNode:
		n.hash = h.Bytes()
	case *branchNode:
		n.hash = h.Bytes()
	}
	return h
}

// encodeNode returns the RLP encoding of a single node. Child nodes are
// referenced by their full encoding when shorter than 32 bytes and by their
// Keccak digest otherwise.
func encodeNode(n node) []byte {
	w := rlp.NewEncoderBuffer(nil)
	writeNode(n, w)
	return w.ToBytes()
}

func writeNode(n node, w rlp.EncoderBuffer) {
	switch n := n.(type) {
	case nil:
		w.WriteBytes(nil)
	case *leafNode:
		l := w.List()
		w.WriteBytes(compactEncode(n.path, true))
		w.WriteBytes(n.value)
		w.ListEnd(l)
	case *extensionNode:
		l := w.List()
		w.WriteBytes(compactEncode(n.path, false))
		writeNodeRef(n.child, w)
		w.ListEnd(l)
	case *branchNode:
		l := w.List()
		for _, child := range n.children {
			writeNodeRef(child, w)
		}
		w.WriteBytes(n.value)
		w.ListEnd(l)
	case digestNode:
		w.WriteBytes(n[:])
	}
}

// writeNodeRef writes a child reference: the inlined encoding when it is
// shorter than a hash, the 32-byte digest otherwise.
func writeNodeRef(n node, w rlp.EncoderBuffer) {
	if n == nil {
		w.WriteBytes(nil)
		return
	}
	if d, ok := n.(digestNode); ok {
		w.WriteBytes(d[:])
		return
	}
	enc := encodeNode(n)
	if len(enc) < 32 {
		w.Write(enc)
		return
	}
	w.WriteBytes(hashNode(n).Bytes())
}

// rlpNodes appends the encodings of n and every resolved descendant to out.
// Digest subtrees contribute nothing; they are already pruned.
func rlpNodes(n node, out *[][]byte) {
	switch n := n.(type) {
	case nil, digestNode:
		return
	case *leafNode:
		*out = append(*out, encodeNode(n))
	case *extensionNode:
		*out = append(*out, encodeNode(n))
		rlpNodes(n.child, out)
	case *branchNode:
		*out = append(*out, encodeNode(n))
		for _, child := range n.children {
			rlpNodes(child, out)
		}
	}
}

func countNodes(n node) int {
	switch n := n.(type) {
	case nil, digestNode:
		return 0
	case *leafNode:
		return 1
	case *extensionNode:
		return 1 + countNodes(n.child)
	case *branchNode:
		total := 1
		for _, child := range n.children {
			total += countNodes(child)
		}
		return total
	}
	return 0
}
