// Copyright 2025 Certen Protocol
//
// Precompile ABI Helpers

package precompiles

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	stringPairType abi.Arguments
	floatInputType abi.Arguments
	stringType     abi.Arguments
	int256Type     abi.Arguments
	boolType       abi.Arguments
	stringListType abi.Arguments
	stringDuoType  abi.Arguments
)

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		return typ
	}
	stringPair := mustType("string[2]")
	str := mustType("string")
	int256 := mustType("int256")
	boolean := mustType("bool")
	uint8T := mustType("uint8")
	stringList := mustType("string[]")

	stringPairType = abi.Arguments{{Type: stringPair}}
	floatInputType = abi.Arguments{{Type: str}, {Type: str}, {Type: uint8T}}
	stringType = abi.Arguments{{Type: str}}
	int256Type = abi.Arguments{{Type: int256}}
	boolType = abi.Arguments{{Type: boolean}}
	stringListType = abi.Arguments{{Type: stringList}}
	stringDuoType = abi.Arguments{{Type: str}, {Type: str}}
}

// decodeStringPair unpacks a string[2] input.
func decodeStringPair(input []byte) (string, string, error) {
	values, err := stringPairType.Unpack(input)
	if err != nil {
		return "", "", fmt.Errorf("abi decoding error: %w", err)
	}
	pair, ok := values[0].([2]string)
	if !ok {
		return "", "", fmt.Errorf("abi decoding error: unexpected type %T", values[0])
	}
	return pair[0], pair[1], nil
}

func encodeString(v string) ([]byte, error) {
	return stringType.Pack(v)
}

func encodeInt256(v *big.Int) ([]byte, error) {
	return int256Type.Pack(v)
}

func encodeBool(v bool) ([]byte, error) {
	return boolType.Pack(v)
}

func encodeStringList(v []string) ([]byte, error) {
	return stringListType.Pack(v)
}

func encodeStringDuo(a, b string) ([]byte, error) {
	return stringDuoType.Pack(a, b)
}
