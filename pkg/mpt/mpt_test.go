// Copyright 2025 Certen Protocol
//
// Merkle-Patricia Trie Tests

package mpt

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEmptyTrieHash(t *testing.T) {
	trie := New()
	if got := trie.Hash(); got != EmptyRootHash {
		t.Errorf("empty trie hash mismatch: got %x, want %x", got, EmptyRootHash)
	}
}

// Reference vector from the Ethereum trie test suite.
func TestKnownRootHash(t *testing.T) {
	entries := map[string]string{
		"do":    "verb",
		"dog":   "puppy",
		"doge":  "coin",
		"horse": "stallion",
	}
	trie := New()
	for k, v := range entries {
		if err := trie.Insert([]byte(k), []byte(v)); err != nil {
			t.Fatalf("insert %q: %v", k, err)
		}
	}
	want := common.HexToHash("5991bb8c6514148a29db676a14ac506cd2cd5775ace63c30a4fe457715e9ac84")
	if got := trie.Hash(); got != want {
		t.Errorf("root hash mismatch: got %x, want %x", got, want)
	}
}

func TestGetInsertedValues(t *testing.T) {
	trie := New()
	for i := 0; i < 64; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		value := []byte(fmt.Sprintf("value-%d", i))
		if err := trie.Insert(key, value); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for i := 0; i < 64; i++ {
		got, err := trie.Get([]byte(fmt.Sprintf("key-%d", i)))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if want := fmt.Sprintf("value-%d", i); string(got) != want {
			t.Errorf("value mismatch for key-%d: got %q, want %q", i, got, want)
		}
	}
	if got, err := trie.Get([]byte("missing")); err != nil || got != nil {
		t.Errorf("missing key: got (%q, %v), want (nil, nil)", got, err)
	}
}

func TestInsertRejectsEmptyValue(t *testing.T) {
	trie := New()
	if err := trie.Insert([]byte("key"), nil); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
}

// Semantically equal tries must produce the same root hash regardless of
// insertion order.
func TestHashIndependentOfInsertionOrder(t *testing.T) {
	keys := make([][]byte, 128)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("some/longer/key/%d", i*7))
	}

	build := func(order []int) common.Hash {
		trie := New()
		for _, i := range order {
			if err := trie.Insert(keys[i], []byte(fmt.Sprintf("val%d", i))); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		return trie.Hash()
	}

	forward := make([]int, len(keys))
	for i := range forward {
		forward[i] = i
	}
	shuffled := append([]int{}, forward...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if a, b := build(forward), build(shuffled); a != b {
		t.Errorf("root hash depends on insertion order: %x vs %x", a, b)
	}
}

func TestDeleteRestoresPriorRoot(t *testing.T) {
	trie := New()
	if err := trie.Insert([]byte("do"), []byte("verb")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := trie.Insert([]byte("dog"), []byte("puppy")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	before := trie.Hash()

	if err := trie.Insert([]byte("doge"), []byte("coin")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := trie.Delete([]byte("doge")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := trie.Hash(); got != before {
		t.Errorf("root after delete: got %x, want %x", got, before)
	}

	if err := trie.Delete([]byte("doge")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("double delete: expected ErrKeyNotFound, got %v", err)
	}
}

func TestDeleteToEmpty(t *testing.T) {
	trie := New()
	if err := trie.Insert([]byte("only"), []byte("entry")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := trie.Delete([]byte("only")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := trie.Hash(); got != EmptyRootHash {
		t.Errorf("hash after deleting last key: got %x, want %x", got, EmptyRootHash)
	}
}

// decode(encode(n)) == n, observed through re-encoding every node of a
// populated trie.
func TestNodeEncodingRoundTrip(t *testing.T) {
	trie := New()
	for i := 0; i < 32; i++ {
		if err := trie.Insert([]byte(fmt.Sprintf("roundtrip-%d", i)), bytes.Repeat([]byte{byte(i + 1)}, 40)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for _, enc := range trie.RLPNodes() {
		n, err := decodeNode(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := encodeNode(n); !bytes.Equal(got, enc) {
			t.Errorf("re-encoding differs:\n got %x\nwant %x", got, enc)
		}
	}
}

func TestProveAndRebuildSparse(t *testing.T) {
	trie := New()
	for i := 0; i < 100; i++ {
		if err := trie.Insert([]byte(fmt.Sprintf("account-%03d", i)), []byte(fmt.Sprintf("balance-%d", i))); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	root := trie.Hash()

	proof, err := trie.Prove([]byte("account-042"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	sparse, err := FromProofNodes(root, proof)
	if err != nil {
		t.Fatalf("rebuild from proof: %v", err)
	}
	if got := sparse.Hash(); got != root {
		t.Fatalf("sparse root mismatch: got %x, want %x", got, root)
	}
	value, err := sparse.Get([]byte("account-042"))
	if err != nil {
		t.Fatalf("get on sparse trie: %v", err)
	}
	if string(value) != "balance-42" {
		t.Errorf("sparse value mismatch: got %q", value)
	}

	// A key outside the proven path must hit an unresolved digest rather
	// than silently reading absent.
	if _, err := sparse.Get([]byte("account-099")); !errors.Is(err, ErrNodeNotResolved) {
		t.Errorf("expected ErrNodeNotResolved for unproven key, got %v", err)
	}
}

func TestAbsenceProof(t *testing.T) {
	trie := New()
	if err := trie.Insert([]byte("present"), []byte("yes")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	proof, err := trie.Prove([]byte("absent"))
	if err != nil {
		t.Fatalf("prove absent key: %v", err)
	}
	sparse, err := FromProofNodes(trie.Hash(), proof)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	value, err := sparse.Get([]byte("absent"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != nil {
		t.Errorf("absent key returned value %q", value)
	}
}
