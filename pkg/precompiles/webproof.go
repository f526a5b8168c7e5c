// Copyright 2025 Certen Protocol
//
// Web-Proof Preverification Precompile
//
// Opens a TLS-Notary presentation: checks the notary key against the
// allowlist and enforces the redaction discipline on the committed
// transcript. Redacted bytes (0x00) are substituted twice, once with '*' and
// once with 'X'; both transcripts must parse to structurally identical
// requests/responses whose differences are exactly the substitution
// characters in permitted positions.

package precompiles

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// URL test modes.
const (
	URLTestModeFull   = "full"
	URLTestModePrefix = "prefix"
)

// Response-body redaction modes.
const (
	BodyRedactionDisabled      = "disabled"
	BodyRedactionEnabledUnsafe = "enabled_unsafe"
)

// Presentation is the serialized TLS-Notary presentation this precompile
// consumes. Redacted transcript bytes are literal zeros.
type Presentation struct {
	NotaryPubKey      hexutil.Bytes `json:"notary_pub_key"`
	ServerName        string        `json:"server_name"`
	Request           hexutil.Bytes `json:"request"`
	Response          hexutil.Bytes `json:"response"`
	URLTestMode       string        `json:"url_test_mode"`
	BodyRedactionMode string        `json:"body_redaction_mode"`
}

// WebProofPreverifier validates presentations against a notary allowlist.
type WebProofPreverifier struct {
	allowedNotaries map[string]struct{}
}

// NewWebProofPreverifier accepts presentations notarized by any of keys.
func NewWebProofPreverifier(keys []hexutil.Bytes) *WebProofPreverifier {
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		allowed[string(key)] = struct{}{}
	}
	return &WebProofPreverifier{allowedNotaries: allowed}
}

// Run implements the precompile: input is the ABI-encoded presentation JSON,
// output is the ABI-encoded ('*'-substituted request, response body) pair.
func (p *WebProofPreverifier) Run(input []byte) ([]byte, error) {
	values, err := stringType.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("abi decoding error: %w", err)
	}
	raw, _ := values[0].(string)

	var presentation Presentation
	if err := json.Unmarshal([]byte(raw), &presentation); err != nil {
		return nil, fmt.Errorf("malformed web proof presentation: %v", err)
	}
	request, body, err := p.Open(&presentation)
	if err != nil {
		return nil, err
	}
	return encodeStringDuo(request, body)
}

// Open validates the presentation and returns the revealed request and
// response body with redactions shown as '*'.
func (p *WebProofPreverifier) Open(presentation *Presentation) (string, string, error) {
	if _, ok := p.allowedNotaries[string(presentation.NotaryPubKey)]; !ok {
		return "", "", fmt.Errorf("unknown notary public key %x", []byte(presentation.NotaryPubKey))
	}

	reqStar := substituteRedactions(presentation.Request, '*')
	reqX := substituteRedactions(presentation.Request, 'X')
	if err := verifyRequestRedaction(reqStar, reqX, presentation.URLTestMode); err != nil {
		return "", "", err
	}

	respStar := substituteRedactions(presentation.Response, '*')
	respX := substituteRedactions(presentation.Response, 'X')
	body, err := verifyResponseRedaction(respStar, respX, presentation.BodyRedactionMode)
	if err != nil {
		return "", "", err
	}
	return string(reqStar), body, nil
}

func substituteRedactions(transcript []byte, replacement byte) []byte {
	out := make([]byte, len(transcript))
	for i, b := range transcript {
		if b == 0 {
			out[i] = replacement
		} else {
			out[i] = b
		}
	}
	return out
}

// diffOnlyAtRedactions checks that a and b differ exactly at substitution
// positions: '*' in a facing 'X' in b.
func diffOnlyAtRedactions(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i] == b[i] {
			continue
		}
		if a[i] != '*' || b[i] != 'X' {
			return false
		}
	}
	return true
}

// fullyRedacted reports whether the pair encodes a completely redacted token.
func fullyRedacted(a, b string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	return a == strings.Repeat("*", len(a)) && b == strings.Repeat("X", len(b))
}

func verifyRequestRedaction(star, x []byte, urlTestMode string) error {
	reqStar, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(star)))
	if err != nil {
		return fmt.Errorf("redacted request does not parse: %v", err)
	}
	reqX, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(x)))
	if err != nil {
		return fmt.Errorf("redacted request does not parse: %v", err)
	}

	// The first line is never redactable in full URL-test mode; in prefix
	// mode only parameter values may differ.
	if reqStar.Method != reqX.Method || reqStar.Proto != reqX.Proto {
		return fmt.Errorf("request method or version is redacted")
	}
	switch urlTestMode {
	case URLTestModeFull:
		if reqStar.URL.String() != reqX.URL.String() {
			return fmt.Errorf("request URL is redacted in full URL-test mode")
		}
	case URLTestModePrefix:
		if err := verifyURLRedaction(reqStar.URL, reqX.URL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown URL test mode %q", urlTestMode)
	}

	return verifyHeaderRedaction(headerLines(star), headerLines(x))
}

// verifyURLRedaction allows redaction only inside parameter values; the path
// and every parameter name must survive both substitutions unchanged.
func verifyURLRedaction(star, x *url.URL) error {
	if star.Path != x.Path {
		return fmt.Errorf("request path is redacted")
	}
	starParams := star.Query()
	xParams := x.Query()
	if len(starParams) != len(xParams) {
		return fmt.Errorf("URL parameter name is redacted")
	}
	for name, starValues := range starParams {
		xValues, ok := xParams[name]
		if !ok {
			return fmt.Errorf("URL parameter name is redacted")
		}
		if len(starValues) != len(xValues) {
			return fmt.Errorf("URL parameter %q value count differs", name)
		}
		for i := range starValues {
			if !diffOnlyAtRedactions(starValues[i], xValues[i]) {
				return fmt.Errorf("URL parameter %q has a malformed redaction", name)
			}
		}
	}
	return nil
}

// headerLines extracts the raw header lines (after the first line, before
// the blank separator).
func headerLines(transcript []byte) []string {
	text := strings.ReplaceAll(string(transcript), "\r\n", "\n")
	sections := strings.SplitN(text, "\n\n", 2)
	lines := strings.Split(sections[0], "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

// verifyHeaderRedaction enforces the header-name rule: a name is either
// untouched or fully redacted; partial redaction is fatal. Values may be
// redacted freely as long as both substitutions stay aligned.
func verifyHeaderRedaction(star, x []string) error {
	if len(star) != len(x) {
		return fmt.Errorf("redaction altered the header structure")
	}
	for i := range star {
		starName, starValue, okStar := strings.Cut(star[i], ":")
		xName, xValue, okX := strings.Cut(x[i], ":")
		if !okStar || !okX {
			return fmt.Errorf("redaction altered the header structure")
		}
		if starName != xName && !fullyRedacted(starName, xName) {
			return fmt.Errorf("partially redacted header name %q", starName)
		}
		if !diffOnlyAtRedactions(starValue, xValue) {
			return fmt.Errorf("malformed redaction in header %q", starName)
		}
	}
	return nil
}

// verifyResponseRedaction checks the response transcript and returns the
// revealed body. The body must be UTF-8 JSON served as application/json;
// string values may be redacted only in enabled_unsafe mode, and numbers,
// booleans and keys never.
func verifyResponseRedaction(star, x []byte, bodyMode string) (string, error) {
	starHead, starBody, err := splitResponse(star)
	if err != nil {
		return "", err
	}
	xHead, xBody, err := splitResponse(x)
	if err != nil {
		return "", err
	}
	if starHead[0] != xHead[0] {
		return "", fmt.Errorf("response status line is redacted")
	}
	if err := verifyHeaderRedaction(starHead[1:], xHead[1:]); err != nil {
		return "", err
	}

	contentType := responseHeader(starHead, "Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		return "", fmt.Errorf("response content type %q is not application/json", contentType)
	}
	if charset, ok := params["charset"]; ok && !strings.EqualFold(charset, "utf-8") {
		return "", fmt.Errorf("response charset %q is not utf-8", charset)
	}
	if !utf8.Valid(starBody) || !utf8.Valid(xBody) {
		return "", fmt.Errorf("response body is not valid UTF-8")
	}

	starJSON, err := parseJSONBody(string(starBody))
	if err != nil {
		return "", fmt.Errorf("response body is not valid JSON: %v", err)
	}
	xJSON, err := parseJSONBody(string(xBody))
	if err != nil {
		return "", fmt.Errorf("response body is not valid JSON: %v", err)
	}
	if err := compareRedactedJSON(starJSON, xJSON, "", bodyMode); err != nil {
		return "", err
	}
	return string(starBody), nil
}

func splitResponse(transcript []byte) ([]string, []byte, error) {
	text := strings.ReplaceAll(string(transcript), "\r\n", "\n")
	head, body, found := strings.Cut(text, "\n\n")
	if !found {
		return nil, nil, fmt.Errorf("response transcript has no header/body separator")
	}
	lines := strings.Split(head, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "HTTP/") {
		return nil, nil, fmt.Errorf("response transcript has no status line")
	}
	return lines, []byte(body), nil
}

func responseHeader(headLines []string, name string) string {
	for _, line := range headLines[1:] {
		if headerName, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(headerName), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// compareRedactedJSON walks both substituted bodies in lockstep.
func compareRedactedJSON(star, x interface{}, path, bodyMode string) error {
	switch starValue := star.(type) {
	case map[string]interface{}:
		xValue, ok := x.(map[string]interface{})
		if !ok || len(starValue) != len(xValue) {
			return fmt.Errorf("redaction altered the JSON structure at %q", path)
		}
		for key, starChild := range starValue {
			xChild, ok := xValue[key]
			if !ok {
				// The key exists in one substitution only: it was redacted.
				return fmt.Errorf("redacted JSON key at %q", path)
			}
			if err := compareRedactedJSON(starChild, xChild, joinPath(path, key), bodyMode); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		xValue, ok := x.([]interface{})
		if !ok || len(starValue) != len(xValue) {
			return fmt.Errorf("redaction altered the JSON structure at %q", path)
		}
		for i := range starValue {
			if err := compareRedactedJSON(starValue[i], xValue[i], fmt.Sprintf("%s[%d]", path, i), bodyMode); err != nil {
				return err
			}
		}
		return nil
	case string:
		xStr, ok := x.(string)
		if !ok {
			return fmt.Errorf("redaction altered the JSON structure at %q", path)
		}
		if starValue == xStr {
			return nil
		}
		if bodyMode != BodyRedactionEnabledUnsafe {
			return fmt.Errorf("redacted JSON string value at %q with body redaction disabled", path)
		}
		if !diffOnlyAtRedactions(starValue, xStr) {
			return fmt.Errorf("malformed redaction in JSON string at %q", path)
		}
		return nil
	case json.Number:
		xNum, ok := x.(json.Number)
		if !ok || starValue != xNum {
			return fmt.Errorf("redacted JSON number at %q", path)
		}
		return nil
	case bool:
		xBool, ok := x.(bool)
		if !ok || starValue != xBool {
			return fmt.Errorf("redacted JSON boolean at %q", path)
		}
		return nil
	case nil:
		if x != nil {
			return fmt.Errorf("redaction altered the JSON structure at %q", path)
		}
		return nil
	default:
		return fmt.Errorf("unsupported JSON value at %q", path)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
