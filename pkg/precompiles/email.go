// Copyright 2025 Certen Protocol
//
// Email Preverification Precompile
//
// Parses an RFC 5322 message, extracts the DKIM-Signature selector and
// domain, resolves the corresponding DNS TXT record and returns both the
// message and the record. The actual DKIM verification re-runs inside the
// guest; fetching the record is the only part that needs the network.

package precompiles

import (
	"fmt"
	"net"
	"net/mail"
	"strings"
)

// TXTResolver resolves DNS TXT records. The production implementation is the
// system resolver; tests substitute a fixture.
type TXTResolver interface {
	LookupTXT(name string) ([]string, error)
}

// NetResolver resolves through the operating system.
type NetResolver struct{}

func (NetResolver) LookupTXT(name string) ([]string, error) {
	return net.LookupTXT(name)
}

// EmailPreverifier runs the email precompile.
type EmailPreverifier struct {
	Resolver TXTResolver
}

// NewEmailPreverifier uses the system resolver.
func NewEmailPreverifier() *EmailPreverifier {
	return &EmailPreverifier{Resolver: NetResolver{}}
}

// Run implements the precompile: input is the ABI-encoded raw message,
// output is the ABI-encoded (message, dns record) pair.
func (p *EmailPreverifier) Run(input []byte) ([]byte, error) {
	values, err := stringType.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("abi decoding error: %w", err)
	}
	rawEmail, _ := values[0].(string)

	record, err := p.Preverify(rawEmail)
	if err != nil {
		return nil, err
	}
	return encodeStringDuo(rawEmail, record)
}

// Preverify parses the message, validates its From address and fetches the
// DKIM public-key record.
func (p *EmailPreverifier) Preverify(rawEmail string) (string, error) {
	msg, err := mail.ReadMessage(strings.NewReader(rawEmail))
	if err != nil {
		return "", fmt.Errorf("failed to parse email: %v", err)
	}

	from := msg.Header.Get("From")
	if from == "" {
		return "", fmt.Errorf("email has no From header")
	}
	parsedFrom, err := mail.ParseAddress(from)
	if err != nil {
		return "", fmt.Errorf("invalid From header: %v", err)
	}
	if err := ValidateEmailAddress(parsedFrom.Address); err != nil {
		return "", err
	}

	sigHeader := msg.Header.Get("DKIM-Signature")
	if sigHeader == "" {
		return "", fmt.Errorf("email has no DKIM-Signature header")
	}
	sig, err := ParseDKIMSignature(sigHeader)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s._domainkey.%s", sig.Selector, sig.Domain)
	records, err := p.Resolver.LookupTXT(name)
	if err != nil {
		return "", fmt.Errorf("DNS lookup of %s failed: %v", name, err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no DKIM record at %s", name)
	}
	return strings.Join(records, ""), nil
}

// localAtext is the RFC 5321 local-part character set besides dots.
const localAtext = "!#$%&'*+-/=?^_`{|}~"

// ValidateEmailAddress enforces RFC 5321 bounds and character sets: local
// part up to 64 bytes of atext with no leading/trailing/adjacent dots, domain
// up to 255 bytes of letter-digit-hyphen labels.
func ValidateEmailAddress(address string) error {
	at := strings.LastIndexByte(address, '@')
	if at <= 0 || at == len(address)-1 {
		return fmt.Errorf("invalid email address: %q", address)
	}
	local, domain := address[:at], address[at+1:]

	if len(local) > 64 {
		return fmt.Errorf("invalid email address: local part exceeds 64 characters")
	}
	if err := validateDotted(local, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune(localAtext, r)
	}); err != nil {
		return fmt.Errorf("invalid email address local part: %w", err)
	}

	if len(domain) > 255 {
		return fmt.Errorf("invalid email address: domain exceeds 255 characters")
	}
	if err := validateDotted(domain, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-'
	}); err != nil {
		return fmt.Errorf("invalid email address domain: %w", err)
	}
	for _, label := range strings.Split(domain, ".") {
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("invalid email address domain: label %q starts or ends with a hyphen", label)
		}
	}
	return nil
}

// validateDotted rejects leading/trailing/adjacent dots and any rune outside
// the allowed set.
func validateDotted(s string, allowed func(rune) bool) error {
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return fmt.Errorf("%q has a leading or trailing dot", s)
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("%q has adjacent dots", s)
	}
	for _, r := range s {
		if r != '.' && !allowed(r) {
			return fmt.Errorf("%q contains forbidden character %q", s, r)
		}
	}
	return nil
}
