// Copyright 2025 Certen Protocol
//
// Trie Proof Extraction and Reconstruction

package mpt

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Prove returns the minimum proof for key: the RLP encodings of the nodes on
// the path from the root towards the key, ending at the leaf holding it or at
// the node that witnesses its absence. Embedded (shorter-than-hash) children
// are carried inside their parent's encoding and not repeated.
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	var proof [][]byte
	n := t.root
	path := keyToNibbles(key)
	for {
		switch cur := n.(type) {
		case nil:
			return proof, nil
		case digestNode:
			return nil, fmt.Errorf("%w: %x", ErrNodeNotResolved, cur[:])
		case *leafNode:
			proof = appendProofNode(proof, cur)
			return proof, nil
		case *extensionNode:
			proof = appendProofNode(proof, cur)
			if len(path) < len(cur.path) || !bytes.Equal(cur.path, path[:len(cur.path)]) {
				return proof, nil
			}
			path = path[len(cur.path):]
			n = cur.child
		case *branchNode:
			proof = appendProofNode(proof, cur)
			if len(path) == 0 {
				return proof, nil
			}
			n = cur.children[path[0]]
			path = path[1:]
		default:
			return nil, ErrMalformedNode
		}
	}
}

// appendProofNode adds the node encoding unless it is embedded in its parent,
// in which case the parent encoding already carries it.
func appendProofNode(proof [][]byte, n node) [][]byte {
	enc := encodeNode(n)
	if len(proof) > 0 && len(enc) < 32 {
		return proof
	}
	return append(proof, enc)
}

// WalkProof collects the minimum proof for key out of a node store, fetching
// nodes by hash on demand. Embedded children are carried inside their
// parent's encoding and contribute no separate proof entry.
func WalkProof(root common.Hash, key []byte, fetch func(common.Hash) ([]byte, error)) ([][]byte, error) {
	if root == EmptyRootHash {
		return nil, nil
	}
	enc, err := fetch(root)
	if err != nil {
		return nil, err
	}
	proof := [][]byte{enc}
	n, err := decodeNode(enc)
	if err != nil {
		return nil, err
	}
	path := keyToNibbles(key)
	for {
		switch cur := n.(type) {
		case nil, *leafNode:
			return proof, nil
		case digestNode:
			child, err := fetch(common.Hash(cur))
			if err != nil {
				return nil, err
			}
			proof = append(proof, child)
			if n, err = decodeNode(child); err != nil {
				return nil, err
			}
		case *extensionNode:
			if len(path) < len(cur.path) || !bytes.Equal(cur.path, path[:len(cur.path)]) {
				return proof, nil
			}
			path = path[len(cur.path):]
			n = cur.child
		case *branchNode:
			if len(path) == 0 {
				return proof, nil
			}
			n = cur.children[path[0]]
			path = path[1:]
		default:
			return nil, ErrMalformedNode
		}
	}
}

// FromProofNodes reassembles a sparse trie from a set of RLP-encoded nodes
// (typically the concatenation of one or more EIP-1186 proofs). Nodes are
// linked by hash; references with no matching node stay digests. The result's
// root must hash to root.
func FromProofNodes(root common.Hash, encodedNodes [][]byte) (*Trie, error) {
	byHash := make(map[common.Hash][]byte, len(encodedNodes))
	for _, enc := range encodedNodes {
		byHash[crypto.Keccak256Hash(enc)] = enc
	}
	rootEnc, ok := byHash[root]
	if !ok {
		if root == EmptyRootHash {
			return New(), nil
		}
		return nil, fmt.Errorf("%w: root %x not among proof nodes", ErrNodeNotResolved, root)
	}
	n, err := resolveNode(rootEnc, byHash)
	if err != nil {
		return nil, err
	}
	trie := &Trie{root: n}
	if h := trie.Hash(); h != root {
		return nil, fmt.Errorf("%w: reassembled root %x, want %x", ErrMalformedNode, h, root)
	}
	return trie, nil
}

func resolveNode(enc []byte, byHash map[common.Hash][]byte) (node, error) {
	n, err := decodeNode(enc)
	if err != nil {
		return nil, err
	}
	return resolveChildren(n, byHash)
}

func resolveChildren(n node, byHash map[common.Hash][]byte) (node, error) {
	switch n := n.(type) {
	case digestNode:
		if enc, ok := byHash[common.Hash(n)]; ok {
			return resolveNode(enc, byHash)
		}
		return n, nil
	case *extensionNode:
		child, err := resolveChildren(n.child, byHash)
		if err != nil {
			return nil, err
		}
		n.child = child
		return n, nil
	case *branchNode:
		for i, child := range n.children {
			resolved, err := resolveChildren(child, byHash)
			if err != nil {
				return nil, err
			}
			n.children[i] = resolved
		}
		return n, nil
	default:
		return n, nil
	}
}
