// Copyright 2025 Certen Protocol
//
// Regex Precompiles
//
// Patterns must be anchored with a "^"..."$" pair so a match always covers
// the whole source string. Capture returns the whole match followed by each
// group's content, with empty strings for groups that did not participate.

package precompiles

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errUnanchored = errors.New(`Regex must be surrounded by "^" and "$" pair to match the whole string`)

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "^") || !strings.HasSuffix(pattern, "$") {
		return nil, errUnanchored
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %v", err)
	}
	return re, nil
}

func regexMatch(input []byte) ([]byte, error) {
	source, pattern, err := decodeStringPair(input)
	if err != nil {
		return nil, err
	}
	re, err := compileAnchored(pattern)
	if err != nil {
		return nil, err
	}
	return encodeBool(re.MatchString(source))
}

func regexCapture(input []byte) ([]byte, error) {
	source, pattern, err := decodeStringPair(input)
	if err != nil {
		return nil, err
	}
	re, err := compileAnchored(pattern)
	if err != nil {
		return nil, err
	}
	groups := re.FindStringSubmatchIndex(source)
	if groups == nil {
		return nil, errors.New("No match found")
	}
	captures := make([]string, 0, len(groups)/2)
	for i := 0; i < len(groups); i += 2 {
		if groups[i] < 0 {
			captures = append(captures, "")
			continue
		}
		captures = append(captures, source[groups[i]:groups[i+1]])
	}
	return encodeStringList(captures)
}
