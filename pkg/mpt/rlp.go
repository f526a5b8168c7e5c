// Copyright 2025 Certen Protocol
//
// Merkle-Patricia Trie Node Decoding

package mpt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// decodeNode parses a single RLP-encoded trie node. The empty string decodes
// to a null node, a 32-byte string to a digest, a 2-item list to a leaf or
// extension depending on the path flag, and a 17-item list to a branch.
func decodeNode(buf []byte) (node, error) {
	if len(buf) == 0 {
		return nil, ErrMalformedNode
	}
	kind, val, _, err := rlp.Split(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	switch kind {
	case rlp.String:
		switch len(val) {
		case 0:
			return nil, nil
		case 32:
			var d digestNode
			copy(d[:], val)
			return d, nil
		default:
			return nil, fmt.Errorf("%w: string node of %d bytes", ErrMalformedNode, len(val))
		}
	case rlp.List:
		n, err := rlp.CountValues(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
		}
		switch n {
		case 2:
			return decodeShort(val)
		case 17:
			return decodeBranch(val)
		default:
			return nil, fmt.Errorf("%w: list node with %d items", ErrMalformedNode, n)
		}
	default:
		return nil, ErrMalformedNode
	}
}

func decodeShort(items []byte) (node, error) {
	compact, rest, err := rlp.SplitString(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	path, leaf, err := compactDecode(compact)
	if err != nil {
		return nil, err
	}
	if leaf {
		value, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
		}
		if len(value) == 0 {
			return nil, ErrEmptyValue
		}
		return &leafNode{path: path, value: value}, nil
	}
	child, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("%w: extension with null child", ErrMalformedNode)
	}
	return &extensionNode{path: path, child: child}, nil
}

func decodeBranch(items []byte) (node, error) {
	branch := &branchNode{}
	rest := items
	var err error
	for i := 0; i < 16; i++ {
		branch.children[i], rest, err = decodeRef(rest)
		if err != nil {
			return nil, err
		}
	}
	value, _, err := rlp.SplitString(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	if len(value) > 0 {
		branch.value = value
	}
	return branch, nil
}

// decodeRef parses a child reference: an inlined node (list shorter than a
// hash), the empty string (no child), or a 32-byte digest.
func decodeRef(buf []byte) (node, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	switch {
	case kind == rlp.List:
		size := len(buf) - len(rest)
		if size > 32 {
			return nil, nil, fmt.Errorf("%w: oversized embedded node", ErrMalformedNode)
		}
		n, err := decodeNode(buf[:size])
		return n, rest, err
	case len(val) == 0:
		return nil, rest, nil
	case len(val) == 32:
		var d digestNode
		copy(d[:], val)
		return d, rest, nil
	default:
		return nil, nil, fmt.Errorf("%w: child reference of %d bytes", ErrMalformedNode, len(val))
	}
}
