package domain

import "strings"

// NetworkObjectSearchType selects how the BusinessFlow object search
// relates candidate objects to the searched IP or subnet.
type NetworkObjectSearchType string

// Search types accepted by the network objects find API.
const (
	SearchIntersect  NetworkObjectSearchType = "INTERSECT"
	SearchContained  NetworkObjectSearchType = "CONTAINED"
	SearchContaining NetworkObjectSearchType = "CONTAINING"
	SearchExact      NetworkObjectSearchType = "EXACT"
)

// NetworkObjectType is the type of a BusinessFlow network object.
type NetworkObjectType string

// Network object types as defined in the API guide. Group creation is not
// currently supported by the create-object API.
const (
	ObjectTypeHost     NetworkObjectType = "Host"
	ObjectTypeRange    NetworkObjectType = "Range"
	ObjectTypeGroup    NetworkObjectType = "Group"
	ObjectTypeAbstract NetworkObjectType = ""
)

// NetworkObject is a network object as returned by the BusinessFlow API.
type NetworkObject struct {
	ObjectID    string   `json:"objectID"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	IPAddresses []string `json:"ipAddresses"`
}

// NetworkService is a named service object as returned by the BusinessFlow
// API, exposing its literal protocol/port members.
type NetworkService struct {
	Name     string   `json:"name"`
	Services []string `json:"services"`
}

// DeviceAllowanceState is the per-device traffic verdict reported by
// Firewall Analyzer simulation queries.
type DeviceAllowanceState string

// Allowance states as shown on Firewall Analyzer.
const (
	StatePartiallyBlocked DeviceAllowanceState = "Partially Blocked"
	StateBlocked          DeviceAllowanceState = "Blocked"
	StateAllowed          DeviceAllowanceState = "Allowed"
	StateNotRouted        DeviceAllowanceState = "Not Routed"
)

// AllowanceStateFromString matches a state string reported by the server
// to a DeviceAllowanceState. Matching is by prefix and case-insensitive;
// the server decorates states with device counts and markup.
func AllowanceStateFromString(s string) (DeviceAllowanceState, error) {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "partially"):
		return StatePartiallyBlocked, nil
	case strings.HasPrefix(lower, "blocked"):
		return StateBlocked, nil
	case strings.HasPrefix(lower, "allowed"):
		return StateAllowed, nil
	case strings.HasPrefix(lower, "not routed"):
		return StateNotRouted, nil
	default:
		return "", &UnrecognizedAllowanceStateError{State: s}
	}
}

// ChangeRequestAction marks whether a change request should allow or drop
// the described traffic.
type ChangeRequestAction string

// API values for change request actions.
const (
	ActionAllow ChangeRequestAction = "1"
	ActionDrop  ChangeRequestAction = "0"
)

// TrafficLine describes one line of traffic in a FireFlow change request.
type TrafficLine struct {
	Action       ChangeRequestAction
	Sources      []string
	Destinations []string
	Services     []string
}
