// Package validation provides input validation for flow and change
// request payloads before they are sent to the AlgoSec services.
package validation

import (
	"net/netip"

	"github.com/algosec/algosec-go/domain"
)

// IsIPOrSubnet reports whether the string is an IPv4 address or a strict
// IPv4 subnet in CIDR form. Host addresses with a mask ("10.0.0.1/24")
// are rejected; BusinessFlow object content requires the network address.
func IsIPOrSubnet(s string) bool {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Is4()
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return false
	}
	return prefix.Addr().Is4() && prefix.Masked() == prefix
}

// ValidateRequestedFlow checks that a flow request carries everything the
// flows API requires.
func ValidateRequestedFlow(flow *domain.RequestedFlow) error {
	var errs ValidationErrors
	if flow.Name == "" {
		errs = append(errs, &FieldError{Field: "name", Message: "flow name is required"})
	}
	if len(flow.Sources) == 0 {
		errs = append(errs, &FieldError{Field: "sources", Message: "at least one source is required"})
	}
	if len(flow.Destinations) == 0 {
		errs = append(errs, &FieldError{Field: "destinations", Message: "at least one destination is required"})
	}
	if len(flow.NetworkServices) == 0 {
		errs = append(errs, &FieldError{Field: "services", Message: "at least one network service is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateTrafficLine checks that a change request traffic line is
// complete and that its action is one of the two API values.
func ValidateTrafficLine(line *domain.TrafficLine) error {
	var errs ValidationErrors
	if line.Action != domain.ActionAllow && line.Action != domain.ActionDrop {
		errs = append(errs, &FieldError{Field: "action", Message: "action must be allow or drop"})
	}
	if len(line.Sources) == 0 {
		errs = append(errs, &FieldError{Field: "sources", Message: "at least one source is required"})
	}
	if len(line.Destinations) == 0 {
		errs = append(errs, &FieldError{Field: "destinations", Message: "at least one destination is required"})
	}
	if len(line.Services) == 0 {
		errs = append(errs, &FieldError{Field: "services", Message: "at least one service is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
