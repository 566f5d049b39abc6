package domain

import (
	"errors"
	"testing"
)

func TestNewLiteralService(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    LiteralService
		wantErr bool
	}{
		{"tcp port", "TCP/80", LiteralService{Protocol: "TCP", Port: "80"}, false},
		{"udp port", "UDP/53", LiteralService{Protocol: "UDP", Port: "53"}, false},
		{"lowercase normalized", "tcp/80", LiteralService{Protocol: "TCP", Port: "80"}, false},
		{"mixed case normalized", "Udp/514", LiteralService{Protocol: "UDP", Port: "514"}, false},
		{"protocol wildcard", "TCP/*", LiteralService{Protocol: "TCP", Port: "*"}, false},
		{"universal wildcard", "*", LiteralService{Protocol: "*", Port: "*"}, false},
		{"named service", "HTTPS", LiteralService{}, true},
		{"unsupported protocol", "ICMP/8", LiteralService{}, true},
		{"missing port", "TCP/", LiteralService{}, true},
		{"non numeric port", "TCP/http", LiteralService{}, true},
		{"wildcard protocol with port", "*/80", LiteralService{}, true},
		{"empty", "", LiteralService{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLiteralService(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLiteralService(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NewLiteralService(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNewLiteralServiceErrorType(t *testing.T) {
	_, err := NewLiteralService("not-a-service")
	var unrecognized *UnrecognizedServiceStringError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("expected UnrecognizedServiceStringError, got %T: %v", err, err)
	}
	if unrecognized.Raw != "not-a-service" {
		t.Errorf("Raw = %q, want %q", unrecognized.Raw, "not-a-service")
	}
}

func TestIsProtocolString(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"TCP/80", true},
		{"udp/53", true},
		{"*", true},
		{"TCP/*", true},
		{"HTTPS", false},
		{"ssh", false},
		{"ICMP/8", false},
	}

	for _, tt := range tests {
		if got := IsProtocolString(tt.raw); got != tt.want {
			t.Errorf("IsProtocolString(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestLiteralServiceEquality(t *testing.T) {
	a, err := NewLiteralService("tcp/80")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLiteralService("TCP/80")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("differently cased inputs should compare equal: %+v != %+v", a, b)
	}

	// Equal values collapse to a single set member.
	set := ServiceSet{a: true, b: true}
	if len(set) != 1 {
		t.Errorf("expected a single set member, got %d", len(set))
	}
}

func TestLiteralServiceWildcards(t *testing.T) {
	universal, _ := NewLiteralService("*")
	allTCP, _ := NewLiteralService("TCP/*")
	plain, _ := NewLiteralService("TCP/80")

	if !universal.IsAny() || universal.IsAllPorts() {
		t.Errorf("universal wildcard: IsAny=%v IsAllPorts=%v", universal.IsAny(), universal.IsAllPorts())
	}
	if allTCP.IsAny() || !allTCP.IsAllPorts() {
		t.Errorf("protocol wildcard: IsAny=%v IsAllPorts=%v", allTCP.IsAny(), allTCP.IsAllPorts())
	}
	if plain.IsAny() || plain.IsAllPorts() {
		t.Errorf("plain literal: IsAny=%v IsAllPorts=%v", plain.IsAny(), plain.IsAllPorts())
	}

	// The universal wildcard is not the same value as a protocol wildcard.
	if universal == allTCP {
		t.Error("universal wildcard must differ from a protocol wildcard")
	}
}

func TestLiteralServiceString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"tcp/80", "TCP/80"},
		{"UDP/*", "UDP/*"},
		{"*", "*"},
	}

	for _, tt := range tests {
		service, err := NewLiteralService(tt.raw)
		if err != nil {
			t.Fatalf("NewLiteralService(%q): %v", tt.raw, err)
		}
		if got := service.String(); got != tt.want {
			t.Errorf("String() of %q = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
