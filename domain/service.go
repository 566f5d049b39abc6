package domain

import (
	"regexp"
	"strings"
)

// Wildcard tokens as they appear in BusinessFlow service definitions.
// The protocol and port fields use the same token on the wire but are
// distinct grants: "TCP/*" allows every TCP port, while "*" alone allows
// all traffic on every protocol.
const (
	AnyProtocol = "*"
	AnyPort     = "*"
)

// serviceLiteralPattern matches a protocol/port service string after
// uppercasing, e.g. "TCP/80" or "UDP/*". Only TCP and UDP are recognized
// by BusinessFlow.
var serviceLiteralPattern = regexp.MustCompile(`^(TCP|UDP)/(\d+|\*)$`)

// LiteralService is the canonical form of a protocol/port service string.
// Both fields are normalized to uppercase, so two LiteralService values
// built from differently-cased input compare equal and collapse to a single
// map key.
type LiteralService struct {
	Protocol string
	Port     string
}

// NewLiteralService parses and normalizes a service string such as
// "tcp/80", "UDP/*" or "*". It returns an UnrecognizedServiceStringError
// when the string matches neither the universal wildcard nor a recognized
// protocol/port pattern.
func NewLiteralService(raw string) (LiteralService, error) {
	protocol, port, err := parseServiceString(raw)
	if err != nil {
		return LiteralService{}, err
	}
	return LiteralService{Protocol: protocol, Port: port}, nil
}

// IsProtocolString reports whether raw would parse as a service literal.
// Callers use it to tell literal protocol/port strings apart from named
// service object references.
func IsProtocolString(raw string) bool {
	_, _, err := parseServiceString(raw)
	return err == nil
}

func parseServiceString(raw string) (protocol, port string, err error) {
	normalized := strings.ToUpper(raw)
	if normalized == AnyProtocol {
		return AnyProtocol, AnyPort, nil
	}
	match := serviceLiteralPattern.FindStringSubmatch(normalized)
	if match == nil {
		return "", "", &UnrecognizedServiceStringError{Raw: raw}
	}
	return match[1], match[2], nil
}

// IsAny reports whether the literal is the universal wildcard permitting
// all traffic.
func (s LiteralService) IsAny() bool {
	return s.Protocol == AnyProtocol && s.Port == AnyPort
}

// IsAllPorts reports whether the literal grants every port of a single
// protocol, e.g. "TCP/*".
func (s LiteralService) IsAllPorts() bool {
	return s.Protocol != AnyProtocol && s.Port == AnyPort
}

// String returns the normalized service string, e.g. "TCP/80", or "*" for
// the universal wildcard.
func (s LiteralService) String() string {
	if s.IsAny() {
		return AnyProtocol
	}
	return s.Protocol + "/" + s.Port
}
