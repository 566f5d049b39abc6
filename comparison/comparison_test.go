package comparison

import (
	"testing"

	"github.com/algosec/algosec-go/domain"
)

// resolvedFlow builds a RequestedFlow whose resolution state is under
// test control. containment maps each source/destination to the object
// IDs that contain it.
func resolvedFlow(sources, destinations map[string][]string, services []string) *domain.RequestedFlow {
	flow := &domain.RequestedFlow{
		SourceContainment:      make(map[string]domain.IDSet),
		DestinationContainment: make(map[string]domain.IDSet),
		AggregatedServices:     make(domain.ServiceSet),
	}
	for source, ids := range sources {
		flow.Sources = append(flow.Sources, source)
		flow.SourceContainment[source] = domain.NewIDSet(ids...)
	}
	for destination, ids := range destinations {
		flow.Destinations = append(flow.Destinations, destination)
		flow.DestinationContainment[destination] = domain.NewIDSet(ids...)
	}
	for _, raw := range services {
		literal, err := domain.NewLiteralService(raw)
		if err != nil {
			panic(err)
		}
		flow.AggregatedServices[literal] = true
		flow.NetworkServices = append(flow.NetworkServices, literal.String())
	}
	return flow
}

func serverFlow(sourceIDs, destinationIDs []string, serviceLiterals []string) *domain.Flow {
	flow := &domain.Flow{
		Name:     "existing",
		FlowType: domain.FlowTypeApplication,
		Services: []domain.FlowService{{Name: "svc-group", Services: serviceLiterals}},
	}
	for _, id := range sourceIDs {
		flow.Sources = append(flow.Sources, domain.FlowObject{ObjectID: id, Name: "obj-" + id})
	}
	for _, id := range destinationIDs {
		flow.Destinations = append(flow.Destinations, domain.FlowObject{ObjectID: id, Name: "obj-" + id})
	}
	return flow
}

func TestIsIncludedInSources(t *testing.T) {
	tests := []struct {
		name        string
		containment []string
		flowObjects []string
		want        bool
	}{
		{"source object attached directly", []string{"s1"}, []string{"s1"}, true},
		{"source covered by broader object", []string{"s1", "subnet-9"}, []string{"subnet-9"}, true},
		{"no containing object attached", []string{"s1"}, []string{"other"}, false},
		{"ip contained in nothing", nil, []string{"other"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requested := resolvedFlow(
				map[string][]string{"192.168.1.1": tt.containment},
				map[string][]string{"10.0.0.1": {"d1"}},
				[]string{"TCP/80"},
			)
			flow := serverFlow(tt.flowObjects, []string{"d1"}, []string{"TCP/80"})
			if got := IsIncludedIn(requested, flow); got != tt.want {
				t.Errorf("IsIncludedIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIncludedInServices(t *testing.T) {
	tests := []struct {
		name         string
		requested    []string
		flowServices []string
		want         bool
	}{
		{"exact literal match", []string{"TCP/80"}, []string{"TCP/80"}, true},
		{"case insensitive match", []string{"tcp/80"}, []string{"TCP/80"}, true},
		{"missing literal", []string{"TCP/443"}, []string{"TCP/80"}, false},
		{"universal wildcard grants everything", []string{"TCP/443", "UDP/53"}, []string{"*"}, true},
		{"protocol wildcard covers its protocol", []string{"TCP/443"}, []string{"TCP/*"}, true},
		{"protocol wildcard does not cross protocols", []string{"UDP/53"}, []string{"TCP/*"}, false},
		{"mixed wildcard and literal", []string{"TCP/22", "UDP/53"}, []string{"TCP/*", "UDP/53"}, true},
		{"named members cannot grant literals", []string{"TCP/80"}, []string{"HTTPS"}, false},
		{"named members are skipped not fatal", []string{"TCP/80"}, []string{"HTTPS", "TCP/80"}, true},
		{"requested protocol wildcard needs one on the flow", []string{"TCP/*"}, []string{"TCP/80"}, false},
		{"requested protocol wildcard against same", []string{"TCP/*"}, []string{"TCP/*"}, true},
		{"empty request is covered", nil, []string{"TCP/80"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requested := resolvedFlow(
				map[string][]string{"192.168.1.1": {"s1"}},
				map[string][]string{"10.0.0.1": {"d1"}},
				tt.requested,
			)
			flow := serverFlow([]string{"s1"}, []string{"d1"}, tt.flowServices)
			if got := IsIncludedIn(requested, flow); got != tt.want {
				t.Errorf("IsIncludedIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIncludedInEntities(t *testing.T) {
	base := func() *domain.RequestedFlow {
		return resolvedFlow(
			map[string][]string{"192.168.1.1": {"s1"}},
			map[string][]string{"10.0.0.1": {"d1"}},
			[]string{"TCP/80"},
		)
	}

	t.Run("unrestricted flow covers any requested users", func(t *testing.T) {
		requested := base()
		requested.NetworkUsers = []string{"alice", "bob"}
		flow := serverFlow([]string{"s1"}, []string{"d1"}, []string{"TCP/80"})
		flow.NetworkUsers = domain.UnrestrictedEntities()
		flow.NetworkApplications = domain.UnrestrictedEntities()
		if !IsIncludedIn(requested, flow) {
			t.Error("expected inclusion under an unrestricted flow")
		}
	})

	t.Run("restricted flow must list every requested user", func(t *testing.T) {
		requested := base()
		requested.NetworkUsers = []string{"alice", "bob"}
		flow := serverFlow([]string{"s1"}, []string{"d1"}, []string{"TCP/80"})
		flow.NetworkUsers = domain.NamedEntities("alice")
		flow.NetworkApplications = domain.UnrestrictedEntities()
		if IsIncludedIn(requested, flow) {
			t.Error("expected no inclusion when a requested user is missing")
		}
	})

	t.Run("restricted applications must cover the request", func(t *testing.T) {
		requested := base()
		requested.NetworkApplications = []string{"mysql"}
		flow := serverFlow([]string{"s1"}, []string{"d1"}, []string{"TCP/80"})
		flow.NetworkUsers = domain.UnrestrictedEntities()
		flow.NetworkApplications = domain.NamedEntities("mysql", "postgres")
		if !IsIncludedIn(requested, flow) {
			t.Error("expected inclusion when all requested applications are listed")
		}
	})
}

func TestIsEqualTo(t *testing.T) {
	flow := &domain.Flow{
		Name:     "existing",
		FlowType: domain.FlowTypeApplication,
		Sources: []domain.FlowObject{
			{ObjectID: "1", Name: "web-servers"},
			{ObjectID: "2", Name: "192.168.1.1"},
		},
		Destinations: []domain.FlowObject{
			{ObjectID: "3", Name: "db-servers"},
		},
		Services: []domain.FlowService{
			{Name: "TCP/3306", Services: []string{"TCP/3306"}},
		},
		NetworkApplications: domain.NamedEntities("mysql"),
		NetworkUsers:        domain.UnrestrictedEntities(),
	}

	base := func() *domain.RequestedFlow {
		return &domain.RequestedFlow{
			Sources:             []string{"web-servers", "192.168.1.1"},
			Destinations:        []string{"db-servers"},
			NetworkServices:     []string{"TCP/3306"},
			NetworkApplications: []string{"mysql"},
		}
	}

	t.Run("identical name sets are equal", func(t *testing.T) {
		if !IsEqualTo(base(), flow) {
			t.Error("expected equality")
		}
	})

	t.Run("order and duplicates are ignored", func(t *testing.T) {
		requested := base()
		requested.Sources = []string{"192.168.1.1", "web-servers", "web-servers"}
		if !IsEqualTo(requested, flow) {
			t.Error("expected equality regardless of order and duplicates")
		}
	})

	t.Run("extra source breaks equality", func(t *testing.T) {
		requested := base()
		requested.Sources = append(requested.Sources, "app-servers")
		if IsEqualTo(requested, flow) {
			t.Error("expected inequality with an extra source")
		}
	})

	t.Run("different service name breaks equality", func(t *testing.T) {
		requested := base()
		requested.NetworkServices = []string{"TCP/3307"}
		if IsEqualTo(requested, flow) {
			t.Error("expected inequality with a different service")
		}
	})

	t.Run("unrestricted entities equal only an empty request", func(t *testing.T) {
		requested := base()
		if !IsEqualTo(requested, flow) {
			t.Fatal("baseline should be equal")
		}
		requested.NetworkUsers = []string{"alice"}
		if IsEqualTo(requested, flow) {
			t.Error("expected inequality when users are requested against an unrestricted flow")
		}
	})
}

// Equality compares declared names while inclusion compares resolved
// literals, so a flow can include a request without being equal to it
// and the other way around.
func TestInclusionAndEqualityDiffer(t *testing.T) {
	t.Run("broader flow includes but does not equal", func(t *testing.T) {
		requested := resolvedFlow(
			map[string][]string{"192.168.1.1": {"subnet-9"}},
			map[string][]string{"10.0.0.1": {"d1"}},
			[]string{"TCP/80"},
		)
		flow := serverFlow([]string{"subnet-9"}, []string{"d1"}, []string{"TCP/*"})
		flow.NetworkApplications = domain.UnrestrictedEntities()
		flow.NetworkUsers = domain.UnrestrictedEntities()

		if !IsIncludedIn(requested, flow) {
			t.Error("expected broader flow to include the request")
		}
		if IsEqualTo(requested, flow) {
			t.Error("expected broader flow not to equal the request")
		}
	})

	t.Run("same names with named service group are equal but not included", func(t *testing.T) {
		// The service group name matches the declared service, but its
		// members are named objects which never grant literals.
		requested := resolvedFlow(
			map[string][]string{"web-servers": nil},
			map[string][]string{"db-servers": {"3"}},
			[]string{"TCP/80"},
		)
		requested.Sources = []string{"web-servers"}
		requested.Destinations = []string{"db-servers"}
		requested.NetworkServices = []string{"web-group"}

		flow := &domain.Flow{
			Sources:      []domain.FlowObject{{ObjectID: "1", Name: "web-servers"}},
			Destinations: []domain.FlowObject{{ObjectID: "3", Name: "db-servers"}},
			Services:     []domain.FlowService{{Name: "web-group", Services: []string{"some-object"}}},
		}

		if !IsEqualTo(requested, flow) {
			t.Error("expected equality on declared names")
		}
		if IsIncludedIn(requested, flow) {
			t.Error("expected no inclusion when nothing grants the literal")
		}
	})
}
