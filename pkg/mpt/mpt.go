// Copyright 2025 Certen Protocol
//
// Merkle-Patricia Trie
//
// RLP-encoded, Keccak-hashed trie over arbitrary byte keys. Supports sparse
// tries reconstructed from EIP-1186 style proofs: unresolved subtrees are
// kept as 32-byte digests and any operation that would need to descend into
// one reports ErrNodeNotResolved instead of guessing.

package mpt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EmptyRootHash is the hash of an empty trie, Keccak(RLP("")).
var EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// Common errors
var (
	ErrMalformedNode   = errors.New("malformed trie node")
	ErrEmptyValue      = errors.New("empty values are not allowed in the trie")
	ErrNodeNotResolved = errors.New("trie node not resolved")
	ErrKeyNotFound     = errors.New("key not found in trie")
)

// Trie is a Merkle-Patricia trie. The zero value is an empty trie.
// It is not safe for concurrent mutation.
type Trie struct {
	root node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{}
}

// FromRLP rebuilds a single-node trie from an RLP encoding. Used for roots
// shipped inside witnesses; descendants referenced by hash stay digests.
func FromRLP(encoded []byte) (*Trie, error) {
	root, err := decodeNode(encoded)
	if err != nil {
		return nil, err
	}
	return &Trie{root: root}, nil
}

// Hash returns the Keccak hash of the root node's encoding, or EmptyRootHash
// for an empty trie.
func (t *Trie) Hash() common.Hash {
	return hashNode(t.root)
}

// Get returns the value stored under key, or nil if the key is absent.
// Reaching an unresolved digest on the lookup path is an ErrNodeNotResolved.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return get(t.root, keyToNibbles(key))
}

func get(n node, path []byte) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *leafNode:
		if bytes.Equal(n.path, path) {
			return n.value, nil
		}
		return nil, nil
	case *extensionNode:
		if len(path) < len(n.path) || !bytes.Equal(n.path, path[:len(n.path)]) {
			return nil, nil
		}
		return get(n.child, path[len(n.path):])
	case *branchNode:
		if len(path) == 0 {
			return n.value, nil
		}
		return get(n.children[path[0]], path[1:])
	case digestNode:
		return nil, fmt.Errorf("%w: %x", ErrNodeNotResolved, n[:])
	}
	return nil, ErrMalformedNode
}

// Insert stores value under key, replacing any previous value. Empty values
// are rejected; use Delete to remove a key.
func (t *Trie) Insert(key, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	root, err := insert(t.root, keyToNibbles(key), value)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func insert(n node, path []byte, value []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return &leafNode{path: path, value: value}, nil

	case *leafNode:
		prefix := commonPrefixLen(n.path, path)
		if prefix == len(n.path) && prefix == len(path) {
			return &leafNode{path: path, value: value}, nil
		}
		branch := &branchNode{}
		if err := branchInsert(branch, n.path[prefix:], n.value); err != nil {
			return nil, err
		}
		if err := branchInsert(branch, path[prefix:], value); err != nil {
			return nil, err
		}
		return wrapPrefix(path[:prefix], branch), nil

	case *extensionNode:
		prefix := commonPrefixLen(n.path, path)
		if prefix == len(n.path) {
			child, err := insert(n.child, path[prefix:], value)
			if err != nil {
				return nil, err
			}
			return &extensionNode{path: n.path, child: child}, nil
		}
		branch := &branchNode{}
		branch.children[n.path[prefix]] = wrapPrefix(n.path[prefix+1:], n.child)
		if err := branchInsert(branch, path[prefix:], value); err != nil {
			return nil, err
		}
		return wrapPrefix(path[:prefix], branch), nil

	case *branchNode:
		next := &branchNode{children: n.children, value: n.value}
		if len(path) == 0 {
			next.value = value
			return next, nil
		}
		child, err := insert(next.children[path[0]], path[1:], value)
		if err != nil {
			return nil, err
		}
		next.children[path[0]] = child
		return next, nil

	case digestNode:
		return nil, fmt.Errorf("%w: %x", ErrNodeNotResolved, n[:])
	}
	return nil, ErrMalformedNode
}

// branchInsert places a value into a branch under its first nibble, or as the
// branch value when the remaining path is empty.
func branchInsert(branch *branchNode, path []byte, value []byte) error {
	if len(path) == 0 {
		branch.value = value
		return nil
	}
	child, err := insert(branch.children[path[0]], path[1:], value)
	if err != nil {
		return err
	}
	branch.children[path[0]] = child
	return nil
}

// wrapPrefix prepends a nibble path to a node, merging with leaves and
// extensions to keep the trie canonical.
func wrapPrefix(prefix []byte, n node) node {
	if len(prefix) == 0 {
		return n
	}
	switch n := n.(type) {
	case *leafNode:
		return &leafNode{path: append(append([]byte{}, prefix...), n.path...), value: n.value}
	case *extensionNode:
		return &extensionNode{path: append(append([]byte{}, prefix...), n.path...), child: n.child}
	default:
		return &extensionNode{path: append([]byte{}, prefix...), child: n}
	}
}

// Delete removes key from the trie. Removing an absent key is an
// ErrKeyNotFound.
func (t *Trie) Delete(key []byte) error {
	root, err := del(t.root, keyToNibbles(key))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func del(n node, path []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return nil, ErrKeyNotFound

	case *leafNode:
		if !bytes.Equal(n.path, path) {
			return nil, ErrKeyNotFound
		}
		return nil, nil

	case *extensionNode:
		if len(path) < len(n.path) || !bytes.Equal(n.path, path[:len(n.path)]) {
			return nil, ErrKeyNotFound
		}
		child, err := del(n.child, path[len(n.path):])
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		return wrapPrefix(n.path, child), nil

	case *branchNode:
		next := &branchNode{children: n.children, value: n.value}
		if len(path) == 0 {
			if next.value == nil {
				return nil, ErrKeyNotFound
			}
			next.value = nil
		} else {
			child, err := del(next.children[path[0]], path[1:])
			if err != nil {
				return nil, err
			}
			next.children[path[0]] = child
		}
		return collapseBranch(next)

	case digestNode:
		return nil, fmt.Errorf("%w: %x", ErrNodeNotResolved, n[:])
	}
	return nil, ErrMalformedNode
}

// collapseBranch restores canonical form after a deletion: a branch with a
// single remaining child (and no value) folds into that child, a branch with
// only a value becomes a leaf.
func collapseBranch(branch *branchNode) (node, error) {
	var (
		lastIdx  = -1
		children = 0
	)
	for i, child := range branch.children {
		if child != nil {
			children++
			lastIdx = i
		}
	}
	switch {
	case children == 0 && branch.value == nil:
		return nil, nil
	case children == 0:
		return &leafNode{path: nil, value: branch.value}, nil
	case children == 1 && branch.value == nil:
		child := branch.children[lastIdx]
		if _, ok := child.(digestNode); ok {
			// The collapsed shape depends on the child's kind, which is
			// unknown behind a digest.
			return nil, fmt.Errorf("%w: cannot collapse into unresolved child", ErrNodeNotResolved)
		}
		return wrapPrefix([]byte{byte(lastIdx)}, child), nil
	default:
		return branch, nil
	}
}

// RLPNodes returns the encodings of the root and every resolved descendant,
// pre-order. Digest subtrees contribute nothing.
func (t *Trie) RLPNodes() [][]byte {
	var out [][]byte
	rlpNodes(t.root, &out)
	return out
}

// Size returns the number of resolved nodes.
func (t *Trie) Size() int {
	return countNodes(t.root)
}
