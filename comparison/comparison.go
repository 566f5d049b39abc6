// Package comparison decides how a requested flow relates to flows already
// defined on the BusinessFlow server.
//
// Two relations are exposed. IsIncludedIn is the containment relation used
// to skip creating flows that are already covered by a broader existing
// flow: it works on resolved object IDs and literal services, so it is
// tolerant of naming differences. IsEqualTo is the exact-identity relation
// used for idempotency checks: it compares the declared name sets only.
// The two are deliberately not interchangeable.
//
// Both functions are pure: they never error, mutate nothing, and assume a
// fully resolved RequestedFlow and a well-formed server Flow.
package comparison

import "github.com/algosec/algosec-go/domain"

// IsIncludedIn reports whether every attribute of the requested flow is
// already covered by the existing flow: each source and destination is
// contained in at least one object attached to the flow, each requested
// service is granted literally or through a wildcard, and the requested
// applications and users are listed on the flow or the flow is
// unrestricted.
func IsIncludedIn(requested *domain.RequestedFlow, flow *domain.Flow) bool {
	return sourcesIncluded(requested.SourceContainment, flow.Sources) &&
		sourcesIncluded(requested.DestinationContainment, flow.Destinations) &&
		servicesIncluded(requested.AggregatedServices, flow.Services) &&
		entitiesIncluded(requested.NetworkApplications, flow.NetworkApplications) &&
		entitiesIncluded(requested.NetworkUsers, flow.NetworkUsers)
}

// IsEqualTo reports whether the requested flow declares exactly the same
// source, destination, service, application and user name sets as the
// existing flow.
func IsEqualTo(requested *domain.RequestedFlow, flow *domain.Flow) bool {
	return namesEqual(requested.Sources, objectNames(flow.Sources)) &&
		namesEqual(requested.Destinations, objectNames(flow.Destinations)) &&
		namesEqual(requested.NetworkServices, serviceNames(flow.Services)) &&
		entitiesEqual(requested.NetworkApplications, flow.NetworkApplications) &&
		entitiesEqual(requested.NetworkUsers, flow.NetworkUsers)
}

// sourcesIncluded holds when every source (or destination) is contained in
// at least one network object attached to the existing flow. Containment
// is by object ID intersection: the source need not be listed itself, only
// covered by something that is.
func sourcesIncluded(containment map[string]domain.IDSet, flowObjects []domain.FlowObject) bool {
	flowIDs := make(map[string]bool, len(flowObjects))
	for _, object := range flowObjects {
		flowIDs[object.ObjectID] = true
	}
	for _, containingIDs := range containment {
		if !intersects(containingIDs, flowIDs) {
			return false
		}
	}
	return true
}

func intersects(a domain.IDSet, b map[string]bool) bool {
	for id := range a {
		if b[id] {
			return true
		}
	}
	return false
}

// servicesIncluded holds when every requested literal service is granted
// by the existing flow's service groups. A universal wildcard on the flow
// grants everything. A protocol wildcard such as TCP/* covers any port of
// that protocol; remaining services need an exact literal match.
func servicesIncluded(requested domain.ServiceSet, groups []domain.FlowService) bool {
	allowedProtocols := make(map[string]bool)
	flowServices := make(domain.ServiceSet)
	for _, group := range groups {
		for _, raw := range group.Services {
			literal, err := domain.NewLiteralService(raw)
			if err != nil {
				// Named members that are not protocol/port strings cannot
				// grant a literal service.
				continue
			}
			if literal.IsAny() {
				return true
			}
			if literal.IsAllPorts() {
				allowedProtocols[literal.Protocol] = true
			}
			flowServices[literal] = true
		}
	}
	for service := range requested {
		if allowedProtocols[service.Protocol] {
			continue
		}
		if !flowServices[service] {
			return false
		}
	}
	return true
}

// entitiesIncluded holds when the flow is unrestricted or every requested
// name appears among the flow's names.
func entitiesIncluded(requested []string, entities domain.FlowEntities) bool {
	if entities.Unrestricted {
		return true
	}
	names := toSet(entities.Names)
	for _, name := range requested {
		if !names[name] {
			return false
		}
	}
	return true
}

// entitiesEqual holds when the declared names match the flow's names
// exactly. An unrestricted flow equals only an empty request.
func entitiesEqual(requested []string, entities domain.FlowEntities) bool {
	if entities.Unrestricted {
		return len(requested) == 0
	}
	return namesEqual(requested, entities.Names)
}

func namesEqual(a, b []string) bool {
	setA, setB := toSet(a), toSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for name := range setA {
		if !setB[name] {
			return false
		}
	}
	return true
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func objectNames(objects []domain.FlowObject) []string {
	names := make([]string, len(objects))
	for i, object := range objects {
		names[i] = object.Name
	}
	return names
}

func serviceNames(groups []domain.FlowService) []string {
	names := make([]string, len(groups))
	for i, group := range groups {
		names[i] = group.Name
	}
	return names
}
