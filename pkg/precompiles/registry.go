// Copyright 2025 Certen Protocol
//
// Precompile Registry
//
// Host-provided oracle precompiles live in a dedicated address block starting
// at 0x100, one address per function. Every precompile is a pure
// bytes -> bytes function with gas cost base + perWord * ceil(len/32); a
// failure is fatal for the surrounding preflight, never a plain revert.

package precompiles

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Precompile tags, used for gas-meter metadata.
const (
	TagJSONGetString      = "json_get_string"
	TagJSONGetInt         = "json_get_int"
	TagJSONGetBool        = "json_get_bool"
	TagJSONGetArrayLength = "json_get_array_length"
	TagJSONGetFloatAsInt  = "json_get_float_as_int"
	TagRegexMatch         = "regex_match"
	TagRegexCapture       = "regex_capture"
	TagEmailPreverify     = "email_preverify"
	TagWebProofPreverify  = "web_proof_preverify"
)

const (
	baseCost    = 10
	perWordCost = 1
)

// RunFunc executes one precompile.
type RunFunc func(input []byte) ([]byte, error)

// Precompile describes one registered oracle function.
type Precompile struct {
	Tag     string
	Address common.Address
	// BaseCost and PerWordCost determine the gas charge.
	BaseCost    uint64
	PerWordCost uint64
	// TimeDependent precompiles must not run after a travel directive: their
	// result would not be reproducible at the guest's fixed block.
	TimeDependent bool
	Run           RunFunc
}

// Gas returns the charge for an input of inputLen bytes.
func (p *Precompile) Gas(inputLen int) uint64 {
	words := (uint64(inputLen) + 31) / 32
	return p.BaseCost + p.PerWordCost*words
}

func addr(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// Registry maps precompile addresses to their implementations.
type Registry struct {
	byAddress map[common.Address]*Precompile
	ordered   []*Precompile
}

// NewRegistry builds the default oracle suite. The email and web-proof
// preverifiers take their external dependencies (DNS resolver, notary key
// allowlist) from the supplied verifiers.
func NewRegistry(email *EmailPreverifier, web *WebProofPreverifier) *Registry {
	entries := []*Precompile{
		{Tag: TagJSONGetString, Address: addr(0x100), BaseCost: baseCost, PerWordCost: perWordCost, Run: jsonGetString},
		{Tag: TagJSONGetInt, Address: addr(0x101), BaseCost: baseCost, PerWordCost: perWordCost, Run: jsonGetInt},
		{Tag: TagJSONGetBool, Address: addr(0x102), BaseCost: baseCost, PerWordCost: perWordCost, Run: jsonGetBool},
		{Tag: TagJSONGetArrayLength, Address: addr(0x103), BaseCost: baseCost, PerWordCost: perWordCost, Run: jsonGetArrayLength},
		{Tag: TagJSONGetFloatAsInt, Address: addr(0x104), BaseCost: baseCost, PerWordCost: perWordCost, Run: jsonGetFloatAsInt},
		{Tag: TagRegexMatch, Address: addr(0x110), BaseCost: baseCost, PerWordCost: perWordCost, Run: regexMatch},
		{Tag: TagRegexCapture, Address: addr(0x111), BaseCost: baseCost, PerWordCost: perWordCost, Run: regexCapture},
	}
	if email != nil {
		entries = append(entries, &Precompile{
			Tag: TagEmailPreverify, Address: addr(0x120),
			BaseCost: baseCost, PerWordCost: perWordCost,
			Run: email.Run,
		})
	}
	if web != nil {
		entries = append(entries, &Precompile{
			Tag: TagWebProofPreverify, Address: addr(0x121),
			BaseCost: baseCost, PerWordCost: perWordCost,
			TimeDependent: true,
			Run:           web.Run,
		})
	}

	byAddress := make(map[common.Address]*Precompile, len(entries))
	for _, p := range entries {
		byAddress[p.Address] = p
	}
	return &Registry{byAddress: byAddress, ordered: entries}
}

// ByAddress looks up the precompile registered at address.
func (r *Registry) ByAddress(address common.Address) (*Precompile, bool) {
	p, ok := r.byAddress[address]
	return p, ok
}

// All returns the registered precompiles.
func (r *Registry) All() []*Precompile {
	return r.ordered
}
