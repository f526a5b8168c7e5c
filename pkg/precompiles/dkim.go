// Copyright 2025 Certen Protocol
//
// DKIM Parsing, Canonicalization and Verification

package precompiles

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// DKIMSignature holds the tags of a DKIM-Signature header this pipeline
// consumes.
type DKIMSignature struct {
	Version     string
	Algorithm   string
	Selector    string   // s=
	Domain      string   // d=
	Headers     []string // h=, in signing order
	HeaderCanon string   // c= left side, "simple" or "relaxed"
	BodyCanon   string   // c= right side
	BodyHash    []byte   // bh=
	Signature   []byte   // b=
}

// ParseDKIMSignature parses the tag=value list of a DKIM-Signature header.
func ParseDKIMSignature(header string) (*DKIMSignature, error) {
	tags := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed DKIM tag: %q", part)
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.Map(dropFoldingSpace, part[eq+1:])
		tags[name] = value
	}

	sig := &DKIMSignature{
		Version:     tags["v"],
		Algorithm:   tags["a"],
		Selector:    tags["s"],
		Domain:      tags["d"],
		HeaderCanon: "simple",
		BodyCanon:   "simple",
	}
	if sig.Selector == "" || sig.Domain == "" {
		return nil, fmt.Errorf("DKIM-Signature missing s= or d= tag")
	}
	if h := tags["h"]; h != "" {
		for _, name := range strings.Split(h, ":") {
			sig.Headers = append(sig.Headers, strings.TrimSpace(name))
		}
	}
	if c := tags["c"]; c != "" {
		parts := strings.SplitN(c, "/", 2)
		sig.HeaderCanon = parts[0]
		if len(parts) == 2 {
			sig.BodyCanon = parts[1]
		}
	}
	var err error
	if bh := tags["bh"]; bh != "" {
		if sig.BodyHash, err = base64.StdEncoding.DecodeString(bh); err != nil {
			return nil, fmt.Errorf("malformed bh= tag: %v", err)
		}
	}
	if b := tags["b"]; b != "" {
		if sig.Signature, err = base64.StdEncoding.DecodeString(b); err != nil {
			return nil, fmt.Errorf("malformed b= tag: %v", err)
		}
	}
	return sig, nil
}

func dropFoldingSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\r', '\n':
		return -1
	}
	return r
}

var wspRun = regexp.MustCompile(`[ \t]+`)

// CanonicalizeHeaderRelaxed applies the relaxed header canonicalization:
// lowercase name, unfolded and whitespace-collapsed value.
func CanonicalizeHeaderRelaxed(name, value string) string {
	value = strings.ReplaceAll(value, "\r\n", "")
	value = wspRun.ReplaceAllString(value, " ")
	return strings.ToLower(name) + ":" + strings.TrimSpace(value) + "\r\n"
}

// CanonicalizeHeaderSimple leaves the header as transmitted.
func CanonicalizeHeaderSimple(name, value string) string {
	return name + ":" + value + "\r\n"
}

// CanonicalizeBody canonicalizes a message body per the named scheme.
func CanonicalizeBody(body string, canon string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")
	if canon == "relaxed" {
		for i, line := range lines {
			lines[i] = wspRun.ReplaceAllString(strings.TrimRight(line, " \t"), " ")
		}
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// VerifyDKIM checks the message's DKIM signature against the public key in
// the DNS record: the body hash must match bh= and the RSA-SHA256 signature
// over the canonicalized signed headers must verify.
func VerifyDKIM(rawEmail, dnsRecord string) error {
	headers, body, err := splitMessage(rawEmail)
	if err != nil {
		return err
	}
	sigValue := headerValue(headers, "DKIM-Signature")
	if sigValue == "" {
		return fmt.Errorf("email has no DKIM-Signature header")
	}
	sig, err := ParseDKIMSignature(sigValue)
	if err != nil {
		return err
	}
	if sig.Algorithm != "" && sig.Algorithm != "rsa-sha256" {
		return fmt.Errorf("unsupported DKIM algorithm %q", sig.Algorithm)
	}

	bodyHash := sha256.Sum256([]byte(CanonicalizeBody(body, sig.BodyCanon)))
	if sig.BodyHash == nil || !strings.EqualFold(base64.StdEncoding.EncodeToString(bodyHash[:]), base64.StdEncoding.EncodeToString(sig.BodyHash)) {
		return fmt.Errorf("DKIM body hash mismatch")
	}

	pub, err := parseDKIMPublicKey(dnsRecord)
	if err != nil {
		return err
	}

	signed := signedHeaderBlock(headers, sig)
	digest := sha256.Sum256([]byte(signed))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig.Signature); err != nil {
		return fmt.Errorf("DKIM signature verification failed: %v", err)
	}
	return nil
}

// signedHeaderBlock reproduces the byte sequence the signer hashed: each
// header named in h= (last occurrence first match order), then the
// DKIM-Signature header itself with an emptied b= tag and no trailing CRLF.
func signedHeaderBlock(headers []headerField, sig *DKIMSignature) string {
	var block strings.Builder
	used := make(map[int]bool)
	for _, name := range sig.Headers {
		for i := len(headers) - 1; i >= 0; i-- {
			if used[i] || !strings.EqualFold(headers[i].name, name) {
				continue
			}
			used[i] = true
			block.WriteString(canonicalizeHeader(headers[i].name, headers[i].value, sig.HeaderCanon))
			break
		}
	}
	sigValue := headerValue(headers, "DKIM-Signature")
	stripped := stripBTag(sigValue)
	entry := canonicalizeHeader("DKIM-Signature", stripped, sig.HeaderCanon)
	block.WriteString(strings.TrimSuffix(entry, "\r\n"))
	return block.String()
}

func canonicalizeHeader(name, value, canon string) string {
	if canon == "relaxed" {
		return CanonicalizeHeaderRelaxed(name, value)
	}
	return CanonicalizeHeaderSimple(name, value)
}

var bTag = regexp.MustCompile(`(^|;)([ \t\r\n]*b=)[^;]*`)

func stripBTag(sigHeader string) string {
	return bTag.ReplaceAllString(sigHeader, "${1}${2}")
}

// parseDKIMPublicKey extracts the p= tag and parses the DER public key.
func parseDKIMPublicKey(record string) (*rsa.PublicKey, error) {
	var encoded string
	for _, part := range strings.Split(record, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "p=") {
			encoded = strings.Map(dropFoldingSpace, part[2:])
		}
	}
	if encoded == "" {
		return nil, fmt.Errorf("DKIM record has no p= tag")
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed DKIM public key: %v", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DKIM public key: %v", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("DKIM public key is not RSA")
	}
	return rsaKey, nil
}

type headerField struct {
	name  string
	value string
}

// splitMessage separates the header block from the body, unfolding continued
// header lines.
func splitMessage(rawEmail string) ([]headerField, string, error) {
	normalized := strings.ReplaceAll(rawEmail, "\r\n", "\n")
	sep := strings.Index(normalized, "\n\n")
	var head, body string
	if sep < 0 {
		head = normalized
	} else {
		head, body = normalized[:sep], normalized[sep+2:]
	}

	var headers []headerField
	for _, line := range strings.Split(head, "\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(headers) == 0 {
				return nil, "", fmt.Errorf("malformed header block: continuation before first header")
			}
			headers[len(headers)-1].value += "\r\n" + line
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, "", fmt.Errorf("malformed header line: %q", line)
		}
		headers = append(headers, headerField{name: line[:colon], value: line[colon+1:]})
	}
	return headers, body, nil
}

func headerValue(headers []headerField, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.name, name) {
			return h.value
		}
	}
	return ""
}
