// Copyright 2025 Certen Protocol
//
// JSON Precompile Tests

package precompiles

import (
	"math/big"
	"strings"
	"testing"
)

const testJSON = `{
	"root": {
		"nested_level": {
			"field_string": "field_string_value",
			"field_number": 12,
			"field_boolean": true,
			"field_array": ["val1", "val2"],
			"field_array_of_objects": [{"key": "val01"}, {"key": "val02"}],
			"field_array_of_numbers": [1, 2, 3]
		}
	}
}`

const testJSONArray = `[{"key": 1}, {"key": 2}, {"key": 3}]`

func packPair(t *testing.T, body, path string) []byte {
	t.Helper()
	input, err := stringPairType.Pack([2]string{body, path})
	if err != nil {
		t.Fatalf("pack input: %v", err)
	}
	return input
}

func unpackInt(t *testing.T, output []byte) *big.Int {
	t.Helper()
	values, err := int256Type.Unpack(output)
	if err != nil {
		t.Fatalf("unpack int256: %v", err)
	}
	return values[0].(*big.Int)
}

func TestJSONGetInt(t *testing.T) {
	output, err := jsonGetInt(packPair(t, testJSON, "root.nested_level.field_number"))
	if err != nil {
		t.Fatalf("get int: %v", err)
	}
	if got := unpackInt(t, output); got.Cmp(big.NewInt(12)) != 0 {
		t.Errorf("value: got %v, want 12", got)
	}
}

func TestJSONGetIntMissingPath(t *testing.T) {
	_, err := jsonGetInt(packPair(t, testJSON, "root.nested_level.field_missing"))
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	if want := "Missing value at path root.nested_level.field_missing"; err.Error() != want {
		t.Errorf("error: got %q, want %q", err, want)
	}
}

func TestJSONGetIntTypeMismatch(t *testing.T) {
	_, err := jsonGetInt(packPair(t, testJSON, "root.nested_level.field_boolean"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Expected type 'Number' at root.nested_level.field_boolean") {
		t.Errorf("error does not name path and expected type: %q", err)
	}
	if !strings.Contains(err.Error(), "Bool(true)") {
		t.Errorf("error does not name found type: %q", err)
	}
}

func TestJSONGetString(t *testing.T) {
	output, err := jsonGetString(packPair(t, testJSON, "root.nested_level.field_string"))
	if err != nil {
		t.Fatalf("get string: %v", err)
	}
	values, err := stringType.Unpack(output)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := values[0].(string); got != "field_string_value" {
		t.Errorf("value: got %q", got)
	}
}

func TestJSONGetStringFromArrayOfObjects(t *testing.T) {
	output, err := jsonGetString(packPair(t, testJSON, "root.nested_level.field_array_of_objects[1].key"))
	if err != nil {
		t.Fatalf("get string: %v", err)
	}
	values, _ := stringType.Unpack(output)
	if got := values[0].(string); got != "val02" {
		t.Errorf("value: got %q, want val02", got)
	}
}

func TestJSONGetIntTopLevelArray(t *testing.T) {
	output, err := jsonGetInt(packPair(t, testJSONArray, "[2].key"))
	if err != nil {
		t.Fatalf("get int: %v", err)
	}
	if got := unpackInt(t, output); got.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("value: got %v, want 3", got)
	}
}

func TestJSONGetBool(t *testing.T) {
	output, err := jsonGetBool(packPair(t, testJSON, "root.nested_level.field_boolean"))
	if err != nil {
		t.Fatalf("get bool: %v", err)
	}
	values, _ := boolType.Unpack(output)
	if got := values[0].(bool); !got {
		t.Error("value: got false, want true")
	}
}

func TestJSONGetArrayLength(t *testing.T) {
	output, err := jsonGetArrayLength(packPair(t, testJSON, "root.nested_level.field_array"))
	if err != nil {
		t.Fatalf("get array length: %v", err)
	}
	if got := unpackInt(t, output); got.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("length: got %v, want 2", got)
	}
}

func TestJSONInvalidBody(t *testing.T) {
	_, err := jsonGetInt(packPair(t, "a string", "field"))
	if err == nil || !strings.Contains(err.Error(), "Error converting string body to json") {
		t.Errorf("expected json parse error, got %v", err)
	}
}

func TestScaleFloatToInt(t *testing.T) {
	cases := []struct {
		value     float64
		precision uint8
		want      int64
	}{
		{3.4, 0, 3},
		{3.4, 1, 34},
		{3.4, 2, 340},
		{1.5, 1, 15},
		{-2.25, 2, -225},
	}
	for _, tc := range cases {
		got, err := ScaleFloatToInt(tc.value, tc.precision)
		if err != nil {
			t.Fatalf("scale(%v, %d): %v", tc.value, tc.precision, err)
		}
		if got != tc.want {
			t.Errorf("scale(%v, %d): got %d, want %d", tc.value, tc.precision, got, tc.want)
		}
	}
}

func TestScaleFloatToIntRejectsPrecision(t *testing.T) {
	_, err := ScaleFloatToInt(1.0, maxFloatPrecision+1)
	if err == nil || !strings.Contains(err.Error(), "Invalid precision value") {
		t.Errorf("expected precision error, got %v", err)
	}
}

func TestScaleFloatToIntRejectsUnsafeValue(t *testing.T) {
	_, err := ScaleFloatToInt(maxSafeFloat+2, 0)
	if err == nil || !strings.Contains(err.Error(), "maximum safe value") {
		t.Errorf("expected range error, got %v", err)
	}
}

func TestScaleFloatToIntRejectsOverflowingScale(t *testing.T) {
	_, err := ScaleFloatToInt(maxSafeFloat, 4)
	if err == nil || !strings.Contains(err.Error(), "exceeds i64::MAX") {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestJSONGetFloatAsInt(t *testing.T) {
	input, err := floatInputType.Pack(`{"field": 1.5}`, "field", uint8(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	output, err := jsonGetFloatAsInt(input)
	if err != nil {
		t.Fatalf("get float as int: %v", err)
	}
	if got := unpackInt(t, output); got.Cmp(big.NewInt(15)) != 0 {
		t.Errorf("value: got %v, want 15", got)
	}
}

func TestJSONGetFloatAsIntMissingValue(t *testing.T) {
	input, _ := floatInputType.Pack(`{"field": 1}`, "wrong_path", uint8(0))
	_, err := jsonGetFloatAsInt(input)
	if err == nil || !strings.Contains(err.Error(), "Expected numeric type at wrong_path, found Null") {
		t.Errorf("expected missing value error, got %v", err)
	}
}
