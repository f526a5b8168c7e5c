// Copyright 2025 Certen Protocol
//
// JSON Extraction Precompiles
//
// Input is [body, dotted path]; paths support key.subkey, key[index] and
// top-level [index]. Type mismatches name the path and the found type.

package precompiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

func jsonGetString(input []byte) ([]byte, error) {
	value, path, err := jsonValueAtPath(input)
	if err != nil {
		return nil, err
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("Expected type 'String' at %s, but found %s", path, describeJSON(value))
	}
	return encodeString(s)
}

func jsonGetInt(input []byte) ([]byte, error) {
	value, path, err := jsonValueAtPath(input)
	if err != nil {
		return nil, err
	}
	num, ok := value.(json.Number)
	if !ok {
		return nil, fmt.Errorf("Expected type 'Number' at %s, but found %s", path, describeJSON(value))
	}
	i, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("Expected type 'Number' at %s, but found %s", path, describeJSON(value))
	}
	return encodeInt256(big.NewInt(i))
}

func jsonGetBool(input []byte) ([]byte, error) {
	value, path, err := jsonValueAtPath(input)
	if err != nil {
		return nil, err
	}
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("Expected type 'Bool' at %s, but found %s", path, describeJSON(value))
	}
	return encodeBool(b)
}

func jsonGetArrayLength(input []byte) ([]byte, error) {
	body, path, err := decodeStringPair(input)
	if err != nil {
		return nil, err
	}
	root, err := parseJSONBody(body)
	if err != nil {
		return nil, err
	}
	value := root
	if path != "" {
		value = valueAtPath(root, path)
		if value == nil {
			return nil, fmt.Errorf("Missing value at path %s", path)
		}
	}
	arr, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("Expected type 'Array' at %s, but found %s", path, describeJSON(value))
	}
	return encodeInt256(big.NewInt(int64(len(arr))))
}

const maxFloatPrecision = 18

// maxSafeFloat is 2^53 - 1, the largest integer a float64 represents exactly.
var maxSafeFloat = math.Pow(2, 53) - 1

func jsonGetFloatAsInt(input []byte) ([]byte, error) {
	values, err := floatInputType.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("abi decoding error: %w", err)
	}
	body, _ := values[0].(string)
	path, _ := values[1].(string)
	precision, _ := values[2].(uint8)

	root, err := parseJSONBody(body)
	if err != nil {
		return nil, err
	}
	value := valueAtPath(root, path)
	if value == nil {
		return nil, fmt.Errorf("Expected numeric type at %s, found Null", path)
	}
	num, ok := value.(json.Number)
	if !ok {
		return nil, fmt.Errorf("Expected numeric type at %s, found %s", path, describeJSON(value))
	}
	floatVal, err := strconv.ParseFloat(num.String(), 64)
	if err != nil {
		return nil, fmt.Errorf("Number %s at path `%s` cannot be represented as f64", num, path)
	}
	// The JSON grammar cannot produce NaN, but the conversion below must
	// never see one, so check instead of assuming.
	if math.IsNaN(floatVal) {
		return nil, fmt.Errorf("Non-finite number at path %s", path)
	}
	scaled, err := ScaleFloatToInt(floatVal, precision)
	if err != nil {
		return nil, err
	}
	return encodeInt256(big.NewInt(scaled))
}

// ScaleFloatToInt validates precision and range, then returns
// value * 10^precision truncated to an integer.
func ScaleFloatToInt(value float64, precision uint8) (int64, error) {
	if precision > maxFloatPrecision {
		return 0, fmt.Errorf("Invalid precision value: %d. Precision must be between 0 and %d (inclusive).", precision, maxFloatPrecision)
	}
	if math.Abs(value) > maxSafeFloat {
		return 0, fmt.Errorf("Float value %v exceeds the maximum safe value for precise conversion to i64 (limit: %v).", value, maxSafeFloat)
	}
	scaled := value * math.Pow(10, float64(precision))
	if math.Abs(scaled) > float64(math.MaxInt64) {
		return 0, fmt.Errorf("Scaled value %v exceeds i64::MAX (%d)", scaled, int64(math.MaxInt64))
	}
	return int64(scaled), nil
}

// jsonValueAtPath decodes the [body, path] input and walks the path.
func jsonValueAtPath(input []byte) (interface{}, string, error) {
	body, path, err := decodeStringPair(input)
	if err != nil {
		return nil, "", err
	}
	root, err := parseJSONBody(body)
	if err != nil {
		return nil, "", err
	}
	value := valueAtPath(root, path)
	if value == nil {
		return nil, "", fmt.Errorf("Missing value at path %s", path)
	}
	return value, path, nil
}

func parseJSONBody(body string) (interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()
	var root interface{}
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("Error converting string body to json: %v", err)
	}
	return root, nil
}

// valueAtPath resolves key.subkey, key[index] and top-level [index] segments.
// nil means no value at the path.
func valueAtPath(root interface{}, path string) interface{} {
	current := root
	for _, segment := range strings.Split(path, ".") {
		key, index, indexed := splitIndex(segment)
		if key != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil
			}
			current, ok = obj[key]
			if !ok {
				return nil
			}
		}
		if indexed {
			arr, ok := current.([]interface{})
			if !ok || index < 0 || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}
	}
	return current
}

// splitIndex parses "key[3]" into ("key", 3, true), "[3]" into ("", 3, true)
// and "key" into ("key", 0, false).
func splitIndex(segment string) (string, int, bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, 0, false
	}
	index, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil {
		return segment, 0, false
	}
	return segment[:open], index, true
}

// describeJSON renders a found value for error messages.
func describeJSON(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "Null"
	case string:
		return fmt.Sprintf("String(%q)", v)
	case bool:
		return fmt.Sprintf("Bool(%t)", v)
	case json.Number:
		return fmt.Sprintf("Number(%s)", v)
	case []interface{}:
		return "Array"
	case map[string]interface{}:
		if len(v) == 0 {
			return "Object {}"
		}
		var buf bytes.Buffer
		buf.WriteString("Object")
		return buf.String()
	default:
		return fmt.Sprintf("%T", value)
	}
}
